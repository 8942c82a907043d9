package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"time"

	"github.com/paylite/payment-gateway/internal/cache"
	"github.com/paylite/payment-gateway/internal/model"
)

// signatureWindow bounds both the tolerated clock skew and the maximum
// exploitable replay window. Nonce ledger entries expire on the same
// window, so a nonce may legitimately reappear after one TTL cycle —
// an accepted risk, because the timestamp check already rejects
// requests older than the window.
const signatureWindow = 300 * time.Second

// ReplayGuard validates signed requests: freshness via a timestamp
// window, uniqueness via a single-use nonce ledger in the cache, and
// authenticity via an HMAC-SHA256 signature keyed by the caller's
// device key. It must run strictly after identity resolution (the
// secret is per-user) and strictly before any state-mutating effect of
// the request.
type ReplayGuard struct {
	Cache   cache.Store
	Enabled bool

	now func() time.Time
}

// NewReplayGuard wires a replay guard. When enabled is false, Check
// short-circuits to accept, matching deployments that terminate TLS on
// a trusted path and skip request signing.
func NewReplayGuard(c cache.Store, enabled bool) *ReplayGuard {
	return &ReplayGuard{Cache: c, Enabled: enabled, now: func() time.Time { return time.Now().UTC() }}
}

// Check validates the signature headers of a request against its raw
// body. It returns nil when the request is accepted and one of the
// rejection sentinels (ErrMissingSignatureHeaders, ErrInvalidTimestamp,
// ErrTimestampOutOfRange, ErrNonceReused, ErrInvalidSignature)
// otherwise.
func (g *ReplayGuard) Check(ctx context.Context, user model.User, signature, timestamp, nonce string, body []byte) error {
	if !g.Enabled {
		return nil
	}
	if signature == "" || timestamp == "" || nonce == "" {
		return ErrMissingSignatureHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	skew := math.Abs(float64(g.now().Unix() - ts))
	if skew > signatureWindow.Seconds() {
		return ErrTimestampOutOfRange
	}

	// One atomic set-if-absent claims the nonce: two concurrent requests
	// with the same nonce cannot both pass. The entry expires with the
	// freshness window, after which the timestamp check takes over.
	claimed, err := g.Cache.SetNX(ctx, nonceCacheKey(user.TelegramID, nonce), "1", signatureWindow)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrNonceReused
	}

	mac := hmac.New(sha256.New, []byte(user.DeviceKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
