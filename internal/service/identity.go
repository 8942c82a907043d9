package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/paylite/payment-gateway/internal/cache"
	"github.com/paylite/payment-gateway/internal/model"
	"github.com/paylite/payment-gateway/internal/repository"
	"github.com/paylite/payment-gateway/internal/utils"
)

// UserStore is the slice of the user repository the identity service
// depends on.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByAPIKey(ctx context.Context, apiKey string) (model.User, error)
	GetByDeviceKey(ctx context.Context, deviceKey string) (model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (model.User, error)
	UpdateProfile(ctx context.Context, telegramID int64, name, email *string, isActive *bool) (model.User, error)
	SetAPIKey(ctx context.Context, telegramID int64, apiKey string) (model.User, error)
	SetDeviceKey(ctx context.Context, telegramID int64, deviceKey string) (model.User, error)
	SetTelegramID(ctx context.Context, oldID, newID int64) (model.User, error)
	SetSubscriptionEnd(ctx context.Context, telegramID int64, end time.Time) (model.User, error)
	Delete(ctx context.Context, telegramID int64) error
}

// Identity resolves opaque credentials to users, consulting the cache
// before the database, and owns every user mutation so that the
// invalidate-old-then-cache-new ordering is applied in exactly one
// place. The cached projections (by api key, telegram id and device
// key) are always written together, keeping them mutually consistent.
type Identity struct {
	Users   UserStore
	Cache   cache.Store
	UserTTL time.Duration

	now func() time.Time
}

// NewIdentity wires an identity service. userTTL bounds how long a
// cached user projection may serve reads before the database is
// consulted again.
func NewIdentity(users UserStore, c cache.Store, userTTL time.Duration) *Identity {
	return &Identity{Users: users, Cache: c, UserTTL: userTTL, now: func() time.Time { return time.Now().UTC() }}
}

// ByAPIKey resolves a user by api key, cache first. A missing user is
// ErrUnauthorized: the api key is a credential, not a lookup parameter.
func (s *Identity) ByAPIKey(ctx context.Context, apiKey string) (model.User, error) {
	return s.resolve(ctx, userAPICacheKey(apiKey), func() (model.User, error) {
		return s.Users.GetByAPIKey(ctx, apiKey)
	})
}

// ByDeviceKey resolves a user by device key, cache first.
func (s *Identity) ByDeviceKey(ctx context.Context, deviceKey string) (model.User, error) {
	return s.resolve(ctx, userDeviceCacheKey(deviceKey), func() (model.User, error) {
		return s.Users.GetByDeviceKey(ctx, deviceKey)
	})
}

// ByTelegramID resolves a user by external identity, bypassing the
// cache. This is the session-token path: tokens are short-lived and
// infrequent, and reading the store directly means a deactivated user
// is rejected even while stale projections are still cached.
func (s *Identity) ByTelegramID(ctx context.Context, telegramID int64) (model.User, error) {
	u, err := s.Users.GetByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUnauthorized
	}
	return u, err
}

// EnsureActive rejects inactive users and lapsed subscriptions.
func (s *Identity) EnsureActive(u model.User) error {
	if !u.IsActive {
		return ErrUserInactive
	}
	if u.SubscriptionEnd != nil && u.SubscriptionEnd.Before(s.now()) {
		return ErrSubscriptionExpired
	}
	return nil
}

func (s *Identity) resolve(ctx context.Context, cacheKey string, fetch func() (model.User, error)) (model.User, error) {
	if raw, ok, err := s.Cache.Get(ctx, cacheKey); err != nil {
		return model.User{}, err
	} else if ok {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return u, nil
		}
		// Undecodable entry: fall through to the store, which re-caches.
	}
	u, err := fetch()
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUnauthorized
	}
	if err != nil {
		return model.User{}, err
	}
	if err := s.cacheUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// cacheUser writes all three credential-keyed projections of the user.
func (s *Identity) cacheUser(ctx context.Context, u model.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	payload := string(raw)
	for _, key := range []string{
		userAPICacheKey(u.APIKey),
		userTGCacheKey(u.TelegramID),
		userDeviceCacheKey(u.DeviceKey),
	} {
		if err := s.Cache.SetEX(ctx, key, payload, s.UserTTL); err != nil {
			return err
		}
	}
	return nil
}

// invalidate deletes every projection keyed by the given (pre-mutation)
// record, including the dashboard projection for its api key.
func (s *Identity) invalidate(ctx context.Context, u model.User) error {
	return s.Cache.Delete(ctx,
		userAPICacheKey(u.APIKey),
		userTGCacheKey(u.TelegramID),
		userDeviceCacheKey(u.DeviceKey),
		dashboardCacheKey(u.APIKey),
	)
}

// ---- administrative mutations ----
//
// Every mutation follows the same shape: read the current record (to
// know which cache keys to invalidate), apply the atomic update,
// invalidate the projections keyed by the pre-update values, then
// re-cache the post-update record. Invalidate-old before cache-new must
// hold, otherwise a rotation race can resurrect a stale projection.

// CreateUser provisions a user with freshly generated credentials and a
// subscription running subscriptionDays from now.
func (s *Identity) CreateUser(ctx context.Context, telegramID int64, name, email *string, subscriptionDays int) (model.User, error) {
	if telegramID <= 0 {
		return model.User{}, validationErr("telegram_id must be positive")
	}
	if subscriptionDays <= 0 || subscriptionDays > 3650 {
		return model.User{}, validationErr("subscription_days must be between 1 and 3650")
	}
	apiKey, err := utils.NewAPIKey()
	if err != nil {
		return model.User{}, err
	}
	deviceKey, err := utils.NewDeviceKey()
	if err != nil {
		return model.User{}, err
	}
	end := s.now().Add(time.Duration(subscriptionDays) * 24 * time.Hour)
	u := model.User{
		TelegramID:      telegramID,
		Name:            name,
		Email:           email,
		APIKey:          apiKey,
		DeviceKey:       deviceKey,
		IsActive:        true,
		SubscriptionEnd: &end,
	}
	if err := s.Users.Create(ctx, &u); err != nil {
		return model.User{}, err
	}
	if err := s.cacheUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// DeleteUser removes the user and all their transactions and drops
// every cached projection.
func (s *Identity) DeleteUser(ctx context.Context, telegramID int64) error {
	old, err := s.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	if err := s.Users.Delete(ctx, telegramID); err != nil {
		return err
	}
	return s.invalidate(ctx, old)
}

// UpdateUser patches name/email/is_active. At least one field must be
// set.
func (s *Identity) UpdateUser(ctx context.Context, telegramID int64, name, email *string, isActive *bool) (model.User, error) {
	if name == nil && email == nil && isActive == nil {
		return model.User{}, validationErr("no fields to update")
	}
	return s.mutate(ctx, telegramID, func() (model.User, error) {
		return s.Users.UpdateProfile(ctx, telegramID, name, email, isActive)
	})
}

// RotateAPIKey replaces the user's api key with a fresh one. The old
// key is orphaned; cached projections under it are deleted before the
// new record is cached.
func (s *Identity) RotateAPIKey(ctx context.Context, telegramID int64) (model.User, error) {
	apiKey, err := utils.NewAPIKey()
	if err != nil {
		return model.User{}, err
	}
	return s.mutate(ctx, telegramID, func() (model.User, error) {
		return s.Users.SetAPIKey(ctx, telegramID, apiKey)
	})
}

// RotateDeviceKey replaces the user's device key (and with it the HMAC
// shared secret) with a fresh one.
func (s *Identity) RotateDeviceKey(ctx context.Context, telegramID int64) (model.User, error) {
	deviceKey, err := utils.NewDeviceKey()
	if err != nil {
		return model.User{}, err
	}
	return s.mutate(ctx, telegramID, func() (model.User, error) {
		return s.Users.SetDeviceKey(ctx, telegramID, deviceKey)
	})
}

// ReassignTelegramID moves the account to a new external identity.
func (s *Identity) ReassignTelegramID(ctx context.Context, oldID, newID int64) (model.User, error) {
	if newID <= 0 {
		return model.User{}, validationErr("new telegram_id must be positive")
	}
	return s.mutate(ctx, oldID, func() (model.User, error) {
		return s.Users.SetTelegramID(ctx, oldID, newID)
	})
}

// ExtendSubscription pushes the subscription end out by the given
// number of days, counted from the current end or from now when the
// subscription already lapsed.
func (s *Identity) ExtendSubscription(ctx context.Context, telegramID int64, days int) (model.User, error) {
	if days <= 0 || days > 3650 {
		return model.User{}, validationErr("days must be between 1 and 3650")
	}
	old, err := s.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return model.User{}, err
	}
	base := s.now()
	if old.SubscriptionEnd != nil && old.SubscriptionEnd.After(base) {
		base = *old.SubscriptionEnd
	}
	end := base.Add(time.Duration(days) * 24 * time.Hour)
	return s.applyMutation(ctx, old, func() (model.User, error) {
		return s.Users.SetSubscriptionEnd(ctx, telegramID, end)
	})
}

// SetSubscriptionEnd sets the subscription expiry to an explicit
// instant.
func (s *Identity) SetSubscriptionEnd(ctx context.Context, telegramID int64, end time.Time) (model.User, error) {
	return s.mutate(ctx, telegramID, func() (model.User, error) {
		return s.Users.SetSubscriptionEnd(ctx, telegramID, end)
	})
}

func (s *Identity) mutate(ctx context.Context, telegramID int64, apply func() (model.User, error)) (model.User, error) {
	old, err := s.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return model.User{}, err
	}
	return s.applyMutation(ctx, old, apply)
}

func (s *Identity) applyMutation(ctx context.Context, old model.User, apply func() (model.User, error)) (model.User, error) {
	updated, err := apply()
	if err != nil {
		return model.User{}, err
	}
	if err := s.invalidate(ctx, old); err != nil {
		return model.User{}, err
	}
	if err := s.cacheUser(ctx, updated); err != nil {
		return model.User{}, err
	}
	return updated, nil
}
