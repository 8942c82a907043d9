package handler_test

// End-to-end tests over the real router, middleware and services, with
// in-memory stores behind the service interfaces and miniredis behind
// the cache and rate limiter. Only the database and the message broker
// are faked; every HTTP-visible behavior runs the production code path.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/paylite/payment-gateway/internal/cache"
	"github.com/paylite/payment-gateway/internal/config"
	"github.com/paylite/payment-gateway/internal/handler"
	"github.com/paylite/payment-gateway/internal/model"
	"github.com/paylite/payment-gateway/internal/repository"
	"github.com/paylite/payment-gateway/internal/router"
	"github.com/paylite/payment-gateway/internal/service"
)

const (
	testJWTSecret   = "integration-test-secret-0123456789ab"
	testAdminSecret = "integration-admin-secret-xyz"
)

type env struct {
	e     *echo.Echo
	users *memUserStore
	txs   *memTxStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Config{
		AppName:      "payment-gateway",
		AppVersion:   "test",
		JWTSecret:    testJWTSecret,
		AdminSecret:  testAdminSecret,
		AccessTTLMin: 60,
		UserCacheTTL: 5 * time.Minute,
		DashboardTTL: 10 * time.Second,
		TxHintTTL:    15 * time.Minute,
	}

	store := cache.NewRedisStore(rdb)
	users := newMemUserStore()
	txs := newMemTxStore()

	identity := service.NewIdentity(users, store, cfg.UserCacheTTL)
	ledger := service.NewLedger(txs, store, nil, cfg.DashboardTTL, cfg.TxHintTTL)
	replay := service.NewReplayGuard(store, false)

	e := echo.New()
	router.RegisterAPI(e, cfg, rdb,
		handler.NewAuthHandler(cfg, identity),
		handler.NewSMSHandler(identity, replay, ledger),
		handler.NewPaymentHandler(identity, ledger))
	router.RegisterAdmin(e, cfg, handler.NewAdminHandler(identity))

	return &env{e: e, users: users, txs: txs}
}

func (te *env) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	te.e.ServeHTTP(rec, req)
	return rec
}

func (te *env) seedUser(t *testing.T, telegramID int64, apiKey, deviceKey string) model.User {
	t.Helper()
	end := time.Now().UTC().Add(30 * 24 * time.Hour)
	u := model.User{
		TelegramID:      telegramID,
		APIKey:          apiKey,
		DeviceKey:       deviceKey,
		IsActive:        true,
		SubscriptionEnd: &end,
	}
	require.NoError(t, te.users.Create(context.Background(), &u))
	return u
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestLoginIssuesUsableToken(t *testing.T) {
	te := newEnv(t)
	te.seedUser(t, 100, "API_aaa", "DEV_device-key-1")

	rec := te.do(http.MethodPost, "/api/v1/auth/login", `{"device_key":"DEV_device-key-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "bearer", body["token_type"])
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)

	// The token works against the ingest endpoint.
	rec = te.do(http.MethodPost, "/api/v1/sms",
		`{"provider":"bkash","sender":"bKash","message":"received Tk 500 TrxID TXN1","amount_paisa":50000,"trx_id":"TXN1"}`,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "saved", decode(t, rec)["status"])
}

func TestLoginRejectsUnknownDeviceKey(t *testing.T) {
	te := newEnv(t)

	rec := te.do(http.MethodPost, "/api/v1/auth/login", `{"device_key":"DEV_who-is-this"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, false, decode(t, rec)["ok"])
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	te := newEnv(t)
	u := te.seedUser(t, 100, "API_aaa", "DEV_device-key-1")
	te.users.setActive(u.TelegramID, false)

	rec := te.do(http.MethodPost, "/api/v1/auth/login", `{"device_key":"DEV_device-key-1"}`, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitRequiresBearerToken(t *testing.T) {
	te := newEnv(t)

	rec := te.do(http.MethodPost, "/api/v1/sms", `{"trx_id":"TXN1"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = te.do(http.MethodPost, "/api/v1/sms", `{"trx_id":"TXN1"}`,
		map[string]string{"Authorization": "Bearer not-a-token"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitDuplicateIsOK(t *testing.T) {
	te := newEnv(t)
	te.seedUser(t, 100, "API_aaa", "DEV_device-key-1")
	token := te.login(t, "DEV_device-key-1")

	payload := `{"provider":"bkash","sender":"bKash","message":"received Tk 500 TrxID TXN1","amount_paisa":50000,"trx_id":"TXN1"}`
	auth := map[string]string{"Authorization": "Bearer " + token}

	rec := te.do(http.MethodPost, "/api/v1/sms", payload, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "saved", decode(t, rec)["status"])

	rec = te.do(http.MethodPost, "/api/v1/sms", payload, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "duplicate", decode(t, rec)["status"])
}

func TestVerifyPaymentFlow(t *testing.T) {
	te := newEnv(t)
	te.seedUser(t, 100, "API_aaa", "DEV_device-key-1")
	token := te.login(t, "DEV_device-key-1")

	rec := te.do(http.MethodPost, "/api/v1/sms",
		`{"provider":"bkash","sender":"bKash","message":"received Tk 500 TrxID TXN1","amount_paisa":50000,"trx_id":"TXN1"}`,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)

	// No api key: unauthorized before anything else.
	rec = te.do(http.MethodPost, "/api/v1/verify-payment", `{"trx_id":"TXN1","amount_paisa":50000}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	merchant := map[string]string{"X-Api-Key": "API_aaa"}

	// Wrong amount: the payment is not consumed.
	rec = te.do(http.MethodPost, "/api/v1/verify-payment", `{"trx_id":"TXN1","amount_paisa":49999}`, merchant)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = te.do(http.MethodPost, "/api/v1/verify-payment", `{"trx_id":"TXN1","amount_paisa":50000}`, merchant)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["ok"])
	trx, _ := body["transaction"].(map[string]any)
	require.Equal(t, "TXN1", trx["trx_id"])

	// Consumed exactly once.
	rec = te.do(http.MethodPost, "/api/v1/verify-payment", `{"trx_id":"TXN1","amount_paisa":50000}`, merchant)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard(t *testing.T) {
	te := newEnv(t)
	te.seedUser(t, 100, "API_aaa", "DEV_device-key-1")
	token := te.login(t, "DEV_device-key-1")

	for _, trx := range []string{"TXNA", "TXNB"} {
		rec := te.do(http.MethodPost, "/api/v1/sms",
			`{"provider":"bkash","sender":"bKash","message":"received Tk 500 TrxID `+trx+`","amount_paisa":50000,"trx_id":"`+trx+`"}`,
			map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := te.do(http.MethodGet, "/api/v1/user/dashboard", "", map[string]string{"X-Api-Key": "API_aaa"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["ok"])
	stats, _ := body["stats"].(map[string]any)
	require.EqualValues(t, 2, stats["pending_transactions"])
}

func TestAdminRequiresSecret(t *testing.T) {
	te := newEnv(t)

	rec := te.do(http.MethodPost, "/api/admin/users", `{"telegram_id":100}`, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = te.do(http.MethodPost, "/api/admin/users", `{"telegram_id":100}`,
		map[string]string{"X-Admin-Secret": "wrong"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = te.do(http.MethodPost, "/api/admin/users", `{"telegram_id":100}`,
		map[string]string{"X-Admin-Secret": testAdminSecret})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	user, _ := body["user"].(map[string]any)
	apiKey, _ := user["api_key"].(string)
	require.True(t, strings.HasPrefix(apiKey, "API_"))
}

func TestAdminRotateDeviceKeyCutsOldLogin(t *testing.T) {
	te := newEnv(t)
	te.seedUser(t, 100, "API_aaa", "DEV_device-key-1")
	te.login(t, "DEV_device-key-1") // primes the cached projection

	rec := te.do(http.MethodPost, "/api/admin/users/update-device-key", `{"telegram_id":100}`,
		map[string]string{"X-Admin-Secret": testAdminSecret})
	require.Equal(t, http.StatusOK, rec.Code)
	newKey, _ := decode(t, rec)["device_key"].(string)
	require.True(t, strings.HasPrefix(newKey, "DEV_"))

	rec = te.do(http.MethodPost, "/api/v1/auth/login", `{"device_key":"DEV_device-key-1"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = te.do(http.MethodPost, "/api/v1/auth/login", `{"device_key":"`+newKey+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func (te *env) login(t *testing.T, deviceKey string) string {
	t.Helper()
	rec := te.do(http.MethodPost, "/api/v1/auth/login", `{"device_key":"`+deviceKey+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decode(t, rec)["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// ---- in-memory stores ----

type memUserStore struct {
	mu    sync.Mutex
	users map[int64]model.User
	seq   uint64
}

func newMemUserStore() *memUserStore { return &memUserStore{users: map[int64]model.User{}} }

func (m *memUserStore) setActive(telegramID int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[telegramID]
	u.IsActive = active
	m.users[telegramID] = u
}

func (m *memUserStore) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.TelegramID]; ok {
		return repository.ErrUserExists
	}
	m.seq++
	u.ID = m.seq
	m.users[u.TelegramID] = *u
	return nil
}

func (m *memUserStore) find(pred func(model.User) bool) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if pred(u) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUserStore) GetByAPIKey(_ context.Context, apiKey string) (model.User, error) {
	return m.find(func(u model.User) bool { return u.APIKey == apiKey })
}

func (m *memUserStore) GetByDeviceKey(_ context.Context, deviceKey string) (model.User, error) {
	return m.find(func(u model.User) bool { return u.DeviceKey == deviceKey })
}

func (m *memUserStore) GetByTelegramID(_ context.Context, telegramID int64) (model.User, error) {
	return m.find(func(u model.User) bool { return u.TelegramID == telegramID })
}

func (m *memUserStore) modify(telegramID int64, apply func(*model.User)) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	apply(&u)
	delete(m.users, telegramID)
	m.users[u.TelegramID] = u
	return u, nil
}

func (m *memUserStore) UpdateProfile(_ context.Context, telegramID int64, name, email *string, isActive *bool) (model.User, error) {
	return m.modify(telegramID, func(u *model.User) {
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

func (m *memUserStore) SetAPIKey(_ context.Context, telegramID int64, apiKey string) (model.User, error) {
	return m.modify(telegramID, func(u *model.User) { u.APIKey = apiKey })
}

func (m *memUserStore) SetDeviceKey(_ context.Context, telegramID int64, deviceKey string) (model.User, error) {
	return m.modify(telegramID, func(u *model.User) { u.DeviceKey = deviceKey })
}

func (m *memUserStore) SetTelegramID(_ context.Context, oldID, newID int64) (model.User, error) {
	return m.modify(oldID, func(u *model.User) { u.TelegramID = newID })
}

func (m *memUserStore) SetSubscriptionEnd(_ context.Context, telegramID int64, end time.Time) (model.User, error) {
	return m.modify(telegramID, func(u *model.User) { e := end.UTC(); u.SubscriptionEnd = &e })
}

func (m *memUserStore) Delete(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[telegramID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, telegramID)
	return nil
}

type memTxStore struct {
	mu   sync.Mutex
	rows []model.Transaction
	seq  uint64
}

func newMemTxStore() *memTxStore { return &memTxStore{} }

func (m *memTxStore) Insert(_ context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TelegramID == t.TelegramID && row.TrxID == t.TrxID {
			return repository.ErrDuplicateTransaction
		}
	}
	m.seq++
	t.ID = m.seq
	t.CreatedAt = time.Now().UTC()
	m.rows = append(m.rows, *t)
	return nil
}

func (m *memTxStore) Consume(_ context.Context, apiKey, trxID string, amountPaisa int64) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.APIKey == apiKey && row.TrxID == trxID && row.AmountPaisa == amountPaisa {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return row, nil
		}
	}
	return model.Transaction{}, repository.ErrNotFound
}

func (m *memTxStore) CountByAPIKey(_ context.Context, apiKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.APIKey == apiKey {
			n++
		}
	}
	return n, nil
}

func (m *memTxStore) RecentByAPIKey(_ context.Context, apiKey string, limit int) ([]model.DashboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]model.DashboardEntry, 0, limit)
	for i := len(m.rows) - 1; i >= 0 && len(entries) < limit; i-- {
		row := m.rows[i]
		if row.APIKey != apiKey {
			continue
		}
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
