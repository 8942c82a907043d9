package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/paylite/payment-gateway/internal/cache"
	"github.com/paylite/payment-gateway/internal/model"
	"github.com/paylite/payment-gateway/internal/queue"
	"github.com/paylite/payment-gateway/internal/repository"
)

// Input constraints. Transaction ids are normalized to uppercase and
// providers to lowercase before these patterns apply.
var (
	trxIDPattern    = regexp.MustCompile(`^[A-Z0-9]{3,80}$`)
	senderPattern   = regexp.MustCompile(`^[A-Za-z0-9\s\-\.]{1,50}$`)
	providerPattern = regexp.MustCompile(`^[a-z0-9\-]{2,30}$`)
)

const recentLimit = 10

// TransactionStore is the slice of the transaction repository the
// ledger depends on.
type TransactionStore interface {
	Insert(ctx context.Context, t *model.Transaction) error
	Consume(ctx context.Context, apiKey, trxID string, amountPaisa int64) (model.Transaction, error)
	CountByAPIKey(ctx context.Context, apiKey string) (int64, error)
	RecentByAPIKey(ctx context.Context, apiKey string, limit int) ([]model.DashboardEntry, error)
}

// EventPublisher emits audit events for consumed transactions.
type EventPublisher interface {
	PublishPaymentVerified(ctx context.Context, event queue.PaymentVerifiedEvent) error
}

// IngestStatus is the outcome of an ingest call. Duplicates are a
// success, never an error: the client may legitimately resubmit after a
// lost response.
type IngestStatus string

const (
	StatusSaved     IngestStatus = "saved"
	StatusDuplicate IngestStatus = "duplicate"
)

// IngestInput carries one SMS-detected payment notification as reported
// by the device.
type IngestInput struct {
	Provider    string `json:"provider"`
	Sender      string `json:"sender"`
	Message     string `json:"message"`
	AmountPaisa int64  `json:"amount_paisa"`
	TrxID       string `json:"trx_id"`
}

// normalize trims and case-folds the input in place and validates it
// against the documented charset and length constraints.
func (in *IngestInput) normalize() error {
	in.TrxID = strings.ToUpper(strings.TrimSpace(in.TrxID))
	in.Sender = strings.TrimSpace(in.Sender)
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	in.Message = strings.TrimSpace(in.Message)

	if !trxIDPattern.MatchString(in.TrxID) {
		return validationErr("invalid transaction ID format")
	}
	if !senderPattern.MatchString(in.Sender) {
		return validationErr("invalid sender format")
	}
	if !providerPattern.MatchString(in.Provider) {
		return validationErr("invalid provider format")
	}
	if len(in.Message) < 5 || len(in.Message) > 1000 {
		return validationErr("message must be between 5 and 1000 characters")
	}
	if in.AmountPaisa <= 0 {
		return validationErr("amount_paisa must be positive")
	}
	return nil
}

// normalizeTrxID applies the trx id normalization used by both ingest
// and verify so the two sides always compare the same canonical form.
func normalizeTrxID(raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if !trxIDPattern.MatchString(id) {
		return "", validationErr("invalid transaction ID format")
	}
	return id, nil
}

// Ledger owns the transaction lifecycle: idempotent ingest, atomic
// consume-on-verify and the cached dashboard projection.
type Ledger struct {
	Transactions TransactionStore
	Cache        cache.Store
	Events       EventPublisher // optional; nil disables audit events

	DashboardTTL time.Duration
	HintTTL      time.Duration
}

// NewLedger wires a ledger service.
func NewLedger(txs TransactionStore, c cache.Store, events EventPublisher, dashboardTTL, hintTTL time.Duration) *Ledger {
	return &Ledger{Transactions: txs, Cache: c, Events: events, DashboardTTL: dashboardTTL, HintTTL: hintTTL}
}

// Ingest records a payment notification for the user. The insert is
// keyed by the unique (telegram_id, trx_id) pair; a uniqueness violation
// is reported as StatusDuplicate with no state mutated, which makes the
// operation idempotent at the storage layer rather than merely at the
// API layer. On a fresh insert the dashboard projection is invalidated
// and a TTL-bounded lookup hint is written for fast duplicate
// pre-checks.
func (s *Ledger) Ingest(ctx context.Context, user model.User, in IngestInput) (IngestStatus, error) {
	if err := in.normalize(); err != nil {
		return "", err
	}
	t := model.Transaction{
		TelegramID:  user.TelegramID,
		APIKey:      user.APIKey,
		Provider:    in.Provider,
		Sender:      in.Sender,
		Message:     in.Message,
		AmountPaisa: in.AmountPaisa,
		TrxID:       in.TrxID,
	}
	if err := s.Transactions.Insert(ctx, &t); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			return StatusDuplicate, nil
		}
		return "", err
	}
	if err := s.Cache.SetEX(ctx, txHintCacheKey(user.APIKey, t.TrxID, t.AmountPaisa), "1", s.HintTTL); err != nil {
		return "", err
	}
	if err := s.Cache.Delete(ctx, dashboardCacheKey(user.APIKey)); err != nil {
		return "", err
	}
	return StatusSaved, nil
}

// Verify atomically consumes the transaction matching exactly (apiKey,
// trxID, amountPaisa) and returns the removed record — the caller's
// only chance to see it. Under concurrent calls for the same
// transaction exactly one succeeds; the store's atomic find-and-delete,
// not application locking, enforces at-most-once consumption. On
// success the lookup hint and dashboard projection are invalidated and
// an audit event is published best-effort.
func (s *Ledger) Verify(ctx context.Context, apiKey, trxID string, amountPaisa int64) (model.Transaction, error) {
	id, err := normalizeTrxID(trxID)
	if err != nil {
		return model.Transaction{}, err
	}
	if amountPaisa <= 0 {
		return model.Transaction{}, validationErr("amount_paisa must be positive")
	}
	t, err := s.Transactions.Consume(ctx, apiKey, id, amountPaisa)
	if err != nil {
		return model.Transaction{}, err
	}
	if err := s.Cache.Delete(ctx,
		txHintCacheKey(apiKey, id, amountPaisa),
		dashboardCacheKey(apiKey),
	); err != nil {
		return model.Transaction{}, err
	}
	if s.Events != nil {
		event := queue.PaymentVerifiedEvent{
			TelegramID:  t.TelegramID,
			APIKey:      t.APIKey,
			Provider:    t.Provider,
			Sender:      t.Sender,
			AmountPaisa: t.AmountPaisa,
			TrxID:       t.TrxID,
			CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
			VerifiedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		go func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Events.PublishPaymentVerified(pubCtx, event); err != nil {
				log.Printf("ledger: publish payment.verified failed: %v", err)
			}
		}()
	}
	return t, nil
}

// Dashboard returns the user's dashboard view, cache first. A hit
// serves the cached projection verbatim (bounded staleness, TTL is
// short); a miss computes the pending count and the ten most recent
// unconsumed transactions and re-caches the result.
func (s *Ledger) Dashboard(ctx context.Context, user model.User) (model.DashboardView, error) {
	key := dashboardCacheKey(user.APIKey)
	if raw, ok, err := s.Cache.Get(ctx, key); err != nil {
		return model.DashboardView{}, err
	} else if ok {
		var view model.DashboardView
		if err := json.Unmarshal([]byte(raw), &view); err == nil {
			return view, nil
		}
	}

	count, err := s.Transactions.CountByAPIKey(ctx, user.APIKey)
	if err != nil {
		return model.DashboardView{}, err
	}
	latest, err := s.Transactions.RecentByAPIKey(ctx, user.APIKey, recentLimit)
	if err != nil {
		return model.DashboardView{}, err
	}

	var view model.DashboardView
	view.OK = true
	view.User.TelegramID = user.TelegramID
	view.User.Name = user.Name
	view.User.IsActive = user.IsActive
	view.User.SubscriptionEnd = user.SubscriptionEnd
	view.Stats.PendingTransactions = count
	view.LatestTransactions = latest

	raw, err := json.Marshal(view)
	if err != nil {
		return model.DashboardView{}, err
	}
	if err := s.Cache.SetEX(ctx, key, string(raw), s.DashboardTTL); err != nil {
		return model.DashboardView{}, err
	}
	return view, nil
}
