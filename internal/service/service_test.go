package service

// Shared test scaffolding: in-memory implementations of the store
// interfaces and a miniredis-backed cache. The fakes keep the same
// atomicity contract as the real repositories (one mutex around every
// operation stands in for the database's row locks and unique indexes),
// so the concurrency properties exercised here are the ones the
// services actually rely on.

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/paylite/payment-gateway/internal/cache"
	"github.com/paylite/payment-gateway/internal/model"
	"github.com/paylite/payment-gateway/internal/queue"
	"github.com/paylite/payment-gateway/internal/repository"
)

func newTestCache(t *testing.T) (cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewRedisStore(rdb), mr
}

// ---- users ----

type fakeUserStore struct {
	mu     sync.Mutex
	users  map[int64]model.User
	nextID uint64
	reads  int // number of lookups that reached the "store"
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[int64]model.User{}}
}

func (f *fakeUserStore) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.TelegramID == u.TelegramID || existing.APIKey == u.APIKey || existing.DeviceKey == u.DeviceKey {
			return repository.ErrUserExists
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.users[u.TelegramID] = *u
	return nil
}

func (f *fakeUserStore) find(pred func(model.User) bool) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	for _, u := range f.users {
		if pred(u) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUserStore) GetByAPIKey(_ context.Context, apiKey string) (model.User, error) {
	return f.find(func(u model.User) bool { return u.APIKey == apiKey })
}

func (f *fakeUserStore) GetByDeviceKey(_ context.Context, deviceKey string) (model.User, error) {
	return f.find(func(u model.User) bool { return u.DeviceKey == deviceKey })
}

func (f *fakeUserStore) GetByTelegramID(_ context.Context, telegramID int64) (model.User, error) {
	return f.find(func(u model.User) bool { return u.TelegramID == telegramID })
}

func (f *fakeUserStore) modify(telegramID int64, apply func(*model.User)) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	apply(&u)
	u.UpdatedAt = time.Now().UTC()
	delete(f.users, telegramID)
	f.users[u.TelegramID] = u
	return u, nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, telegramID int64, name, email *string, isActive *bool) (model.User, error) {
	return f.modify(telegramID, func(u *model.User) {
		if name != nil {
			u.Name = name
		}
		if email != nil {
			u.Email = email
		}
		if isActive != nil {
			u.IsActive = *isActive
		}
	})
}

func (f *fakeUserStore) SetAPIKey(_ context.Context, telegramID int64, apiKey string) (model.User, error) {
	return f.modify(telegramID, func(u *model.User) { u.APIKey = apiKey })
}

func (f *fakeUserStore) SetDeviceKey(_ context.Context, telegramID int64, deviceKey string) (model.User, error) {
	return f.modify(telegramID, func(u *model.User) { u.DeviceKey = deviceKey })
}

func (f *fakeUserStore) SetTelegramID(_ context.Context, oldID, newID int64) (model.User, error) {
	return f.modify(oldID, func(u *model.User) { u.TelegramID = newID })
}

func (f *fakeUserStore) SetSubscriptionEnd(_ context.Context, telegramID int64, end time.Time) (model.User, error) {
	return f.modify(telegramID, func(u *model.User) { e := end.UTC(); u.SubscriptionEnd = &e })
}

func (f *fakeUserStore) Delete(_ context.Context, telegramID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[telegramID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, telegramID)
	return nil
}

// ---- transactions ----

type fakeTxStore struct {
	mu     sync.Mutex
	rows   []model.Transaction
	nextID uint64
	clock  time.Time
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTxStore) Insert(_ context.Context, t *model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.TelegramID == t.TelegramID && row.TrxID == t.TrxID {
			return repository.ErrDuplicateTransaction
		}
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	t.ID = f.nextID
	t.CreatedAt = f.clock
	f.rows = append(f.rows, *t)
	return nil
}

func (f *fakeTxStore) Consume(_ context.Context, apiKey, trxID string, amountPaisa int64) (model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.APIKey == apiKey && row.TrxID == trxID && row.AmountPaisa == amountPaisa {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return row, nil
		}
	}
	return model.Transaction{}, repository.ErrNotFound
}

func (f *fakeTxStore) CountByAPIKey(_ context.Context, apiKey string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, row := range f.rows {
		if row.APIKey == apiKey {
			n++
		}
	}
	return n, nil
}

func (f *fakeTxStore) RecentByAPIKey(_ context.Context, apiKey string, limit int) ([]model.DashboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []model.Transaction
	for _, row := range f.rows {
		if row.APIKey == apiKey {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	entries := make([]model.DashboardEntry, 0, len(matched))
	for _, row := range matched {
		entries = append(entries, model.DashboardEntry{
			TelegramID:  row.TelegramID,
			APIKey:      row.APIKey,
			Provider:    row.Provider,
			Sender:      row.Sender,
			AmountPaisa: row.AmountPaisa,
			TrxID:       row.TrxID,
			CreatedAt:   row.CreatedAt,
		})
	}
	return entries, nil
}

// ---- events ----

type fakePublisher struct {
	events chan queue.PaymentVerifiedEvent
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(chan queue.PaymentVerifiedEvent, 8)}
}

func (f *fakePublisher) PublishPaymentVerified(_ context.Context, event queue.PaymentVerifiedEvent) error {
	f.events <- event
	return nil
}

// testUser returns a plausible active user.
func testUser(telegramID int64) model.User {
	end := time.Now().UTC().Add(30 * 24 * time.Hour)
	name := "Test Merchant"
	return model.User{
		TelegramID:      telegramID,
		Name:            &name,
		APIKey:          "API_0000000000000000000000000000000000000000",
		DeviceKey:       "DEV_00000000000000000000000000000000",
		IsActive:        true,
		SubscriptionEnd: &end,
	}
}
