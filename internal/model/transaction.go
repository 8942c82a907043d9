package model

import "time"

// Transaction records a payment notification reported by a user's
// device. It lives in the `sms_transactions` table until a merchant
// verifies it, at which point the row is deleted: there is no
// consumed flag, existence is equivalent to "not yet consumed".
// The pair (telegram_id, trx_id) is unique for the lifetime of the
// record, which makes ingestion idempotent at the storage layer.
//
// Fields:
//  ID          – primary key identifier.
//  TelegramID  – owner's external identity (denormalized at ingest).
//  APIKey      – owner's api key (denormalized at ingest).
//  Provider    – normalized lowercase payment provider token.
//  Sender      – sender field of the SMS, trimmed.
//  Message     – raw SMS text.
//  AmountPaisa – amount in minor currency units, always positive.
//  TrxID       – normalized uppercase transaction id.
//  CreatedAt   – timestamp of ingestion.
type Transaction struct {
	ID          uint64    `json:"-"`
	TelegramID  int64     `json:"telegram_id"`
	APIKey      string    `json:"api_key"`
	Provider    string    `json:"provider"`
	Sender      string    `json:"sender"`
	Message     string    `json:"message,omitempty"`
	AmountPaisa int64     `json:"amount_paisa"`
	TrxID       string    `json:"trx_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// DashboardEntry is a Transaction as exposed on the dashboard: the
// message body is omitted for size and privacy.
type DashboardEntry struct {
	TelegramID  int64     `json:"telegram_id"`
	APIKey      string    `json:"api_key"`
	Provider    string    `json:"provider"`
	Sender      string    `json:"sender"`
	AmountPaisa int64     `json:"amount_paisa"`
	TrxID       string    `json:"trx_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// DashboardView is the cached projection served by the dashboard
// endpoint: a summary of the owning user, the count of pending
// (unconsumed) transactions and the ten most recent of them.
type DashboardView struct {
	OK    bool `json:"ok"`
	User  struct {
		TelegramID      int64      `json:"telegram_id"`
		Name            *string    `json:"name"`
		IsActive        bool       `json:"is_active"`
		SubscriptionEnd *time.Time `json:"subscription_end"`
	} `json:"user"`
	Stats struct {
		PendingTransactions int64 `json:"pending_transactions"`
	} `json:"stats"`
	LatestTransactions []DashboardEntry `json:"latest_transactions"`
}
