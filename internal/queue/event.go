// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into an append-only audit
// log. Transactions carry no consumed flag (consumption is deletion), so
// the event stream is the only durable record that a payment was ever
// verified.
package queue

// PaymentVerifiedEvent is published when a merchant successfully consumes
// a transaction. It carries the full public view of the consumed record
// so downstream consumers can audit or notify without querying the
// primary database.
type PaymentVerifiedEvent struct {
	TelegramID  int64  `json:"telegram_id"`
	APIKey      string `json:"api_key"`
	Provider    string `json:"provider"`
	Sender      string `json:"sender"`
	AmountPaisa int64  `json:"amount_paisa"`
	TrxID       string `json:"trx_id"`
	CreatedAt   string `json:"created_at"`
	VerifiedAt  string `json:"verified_at"`
}
