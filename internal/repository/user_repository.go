package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/paylite/payment-gateway/internal/model"
)

const userColumns = "id,telegram_id,name,email,api_key,device_key,is_active,subscription_end,created_at,updated_at"

// UserRepo provides data access to the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and populates the generated ID on the record.
// Collisions on telegram_id, api_key or device_key map to ErrUserExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (telegram_id, name, email, api_key, device_key, is_active, subscription_end) VALUES (?,?,?,?,?,?,?)",
		u.TelegramID, u.Name, u.Email, u.APIKey, u.DeviceKey, u.IsActive, u.SubscriptionEnd)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrUserExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return r.reload(ctx, u)
}

// GetByAPIKey fetches a user by its unique api key.
func (r *UserRepo) GetByAPIKey(ctx context.Context, apiKey string) (model.User, error) {
	return r.getBy(ctx, "api_key", apiKey)
}

// GetByDeviceKey fetches a user by its unique device key.
func (r *UserRepo) GetByDeviceKey(ctx context.Context, deviceKey string) (model.User, error) {
	return r.getBy(ctx, "device_key", deviceKey)
}

// GetByTelegramID fetches a user by its unique external identity.
func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (model.User, error) {
	return r.getBy(ctx, "telegram_id", telegramID)
}

// UpdateProfile applies the non-nil fields of the patch to the user and
// returns the updated record. An empty patch is a no-op returning the
// current record.
func (r *UserRepo) UpdateProfile(ctx context.Context, telegramID int64, name, email *string, isActive *bool) (model.User, error) {
	set := "updated_at=UTC_TIMESTAMP()"
	args := []interface{}{}
	if name != nil {
		set += ", name=?"
		args = append(args, *name)
	}
	if email != nil {
		set += ", email=?"
		args = append(args, *email)
	}
	if isActive != nil {
		set += ", is_active=?"
		args = append(args, *isActive)
	}
	args = append(args, telegramID)
	if err := r.update(ctx, "UPDATE users SET "+set+" WHERE telegram_id=?", args...); err != nil {
		return model.User{}, err
	}
	return r.GetByTelegramID(ctx, telegramID)
}

// SetAPIKey assigns a freshly generated api key to the user. The old key
// is orphaned, never reassigned.
func (r *UserRepo) SetAPIKey(ctx context.Context, telegramID int64, apiKey string) (model.User, error) {
	if err := r.update(ctx,
		"UPDATE users SET api_key=?, updated_at=UTC_TIMESTAMP() WHERE telegram_id=?",
		apiKey, telegramID); err != nil {
		return model.User{}, err
	}
	return r.GetByTelegramID(ctx, telegramID)
}

// SetDeviceKey assigns a freshly generated device key to the user.
func (r *UserRepo) SetDeviceKey(ctx context.Context, telegramID int64, deviceKey string) (model.User, error) {
	if err := r.update(ctx,
		"UPDATE users SET device_key=?, updated_at=UTC_TIMESTAMP() WHERE telegram_id=?",
		deviceKey, telegramID); err != nil {
		return model.User{}, err
	}
	return r.GetByTelegramID(ctx, telegramID)
}

// SetTelegramID reassigns the user's external identity. The new id must
// not collide with another user.
func (r *UserRepo) SetTelegramID(ctx context.Context, oldID, newID int64) (model.User, error) {
	if err := r.update(ctx,
		"UPDATE users SET telegram_id=?, updated_at=UTC_TIMESTAMP() WHERE telegram_id=?",
		newID, oldID); err != nil {
		return model.User{}, err
	}
	return r.GetByTelegramID(ctx, newID)
}

// SetSubscriptionEnd sets the subscription expiry to the given instant.
func (r *UserRepo) SetSubscriptionEnd(ctx context.Context, telegramID int64, end time.Time) (model.User, error) {
	if err := r.update(ctx,
		"UPDATE users SET subscription_end=?, updated_at=UTC_TIMESTAMP() WHERE telegram_id=?",
		end.UTC(), telegramID); err != nil {
		return model.User{}, err
	}
	return r.GetByTelegramID(ctx, telegramID)
}

// Delete removes the user and, in the same transaction, every
// transaction they own. Deleting a missing user returns ErrNotFound.
func (r *UserRepo) Delete(ctx context.Context, telegramID int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sms_transactions WHERE telegram_id=?", telegramID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE telegram_id=?", telegramID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (r *UserRepo) getBy(ctx context.Context, column string, value interface{}) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+column+"=? LIMIT 1", value)
	return scanUser(row)
}

func (r *UserRepo) reload(ctx context.Context, u *model.User) error {
	got, err := r.getBy(ctx, "id", u.ID)
	if err != nil {
		return err
	}
	*u = got
	return nil
}

// update runs an UPDATE, mapping duplicate key violations to
// ErrUserExists. A missing row is not detected here; every caller
// re-selects the record afterwards and surfaces ErrNotFound from there.
func (r *UserRepo) update(ctx context.Context, query string, args ...interface{}) error {
	_, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u      model.User
		name   sql.NullString
		email  sql.NullString
		subEnd sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TelegramID, &name, &email, &u.APIKey, &u.DeviceKey,
		&u.IsActive, &subEnd, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if name.Valid {
		u.Name = &name.String
	}
	if email.Valid {
		u.Email = &email.String
	}
	if subEnd.Valid {
		t := subEnd.Time.UTC()
		u.SubscriptionEnd = &t
	}
	return u, nil
}
