package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/paylite/payment-gateway/internal/model"
)

const txColumns = "id,telegram_id,api_key,provider,sender,message,amount_paisa,trx_id,created_at"

// TransactionRepo provides data access to the 'sms_transactions' table.
// The table carries a unique index on (telegram_id, trx_id) which makes
// Insert idempotent, and consumption is modeled as deletion: a row
// exists exactly as long as the payment is unconsumed.
type TransactionRepo struct{ DB *sql.DB }

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{DB: db} }

// Insert stores a new transaction and populates its generated ID.
// A violation of the (telegram_id, trx_id) unique index maps to
// ErrDuplicateTransaction with no state mutated.
func (r *TransactionRepo) Insert(ctx context.Context, t *model.Transaction) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO sms_transactions (telegram_id, api_key, provider, sender, message, amount_paisa, trx_id) VALUES (?,?,?,?,?,?,?)",
		t.TelegramID, t.APIKey, t.Provider, t.Sender, t.Message, t.AmountPaisa, t.TrxID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateTransaction
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return r.DB.QueryRowContext(ctx,
		"SELECT created_at FROM sms_transactions WHERE id=?", t.ID).Scan(&t.CreatedAt)
}

// Consume atomically finds and deletes the transaction matching exactly
// (api_key, trx_id, amount_paisa) and returns the removed record. The
// row lock taken by SELECT ... FOR UPDATE makes the row-then-delete pair
// a single serialization point: under concurrent Consume calls for the
// same transaction exactly one caller commits the delete, every other
// one finds no row and gets ErrNotFound.
func (r *TransactionRepo) Consume(ctx context.Context, apiKey, trxID string, amountPaisa int64) (model.Transaction, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var t model.Transaction
	err = tx.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM sms_transactions WHERE api_key=? AND trx_id=? AND amount_paisa=? LIMIT 1 FOR UPDATE",
		apiKey, trxID, amountPaisa).Scan(
		&t.ID, &t.TelegramID, &t.APIKey, &t.Provider, &t.Sender, &t.Message,
		&t.AmountPaisa, &t.TrxID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, ErrNotFound
	}
	if err != nil {
		return model.Transaction{}, err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sms_transactions WHERE id=?", t.ID); err != nil {
		return model.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}

// CountByAPIKey returns the number of unconsumed transactions owned by
// the api key.
func (r *TransactionRepo) CountByAPIKey(ctx context.Context, apiKey string) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sms_transactions WHERE api_key=?", apiKey).Scan(&n)
	return n, err
}

// RecentByAPIKey returns up to limit unconsumed transactions for the api
// key, newest first. The message column is not selected; dashboard
// consumers never see raw SMS bodies.
func (r *TransactionRepo) RecentByAPIKey(ctx context.Context, apiKey string, limit int) ([]model.DashboardEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT telegram_id,api_key,provider,sender,amount_paisa,trx_id,created_at FROM sms_transactions WHERE api_key=? ORDER BY created_at DESC, id DESC LIMIT ?",
		apiKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.DashboardEntry, 0, limit)
	for rows.Next() {
		var e model.DashboardEntry
		if err := rows.Scan(&e.TelegramID, &e.APIKey, &e.Provider, &e.Sender,
			&e.AmountPaisa, &e.TrxID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
