package fee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/metrics"
	"github.com/congo-pay/remittance/internal/transfer"
	"github.com/congo-pay/remittance/internal/wallet"
)

// ErrInvalidFee is returned for an empty id or a non-positive amount.
var ErrInvalidFee = errors.New("invalid fee")

// Clock schedules one-shot callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Transferer moves the fee to the platform address.
type Transferer interface {
	Transfer(ctx context.Context, tx transfer.Transaction) (string, error)
}

// Config controls where fees go and how collection is retried.
type Config struct {
	Address     string
	Message     string
	BaseDelay   time.Duration
	Jitter      float64
	MaxAttempts int
}

// PendingFee is an uncollected fee and, when armed, the attempt it is on.
type PendingFee struct {
	ContributionID string          `json:"contribution_id"`
	Amount         decimal.Decimal `json:"amount"`
	Attempt        int             `json:"attempt,omitempty"`
	Armed          bool            `json:"armed"`
}

type armed struct {
	timer   Timer
	attempt int
	gen     uint64
}

// Scheduler owns the fee timers. The persisted fees map is the source of
// truth; timers only decide when collection is attempted.
type Scheduler struct {
	cfg       Config
	store     wallet.Store
	transfers Transferer
	clock     Clock
	rand      func() float64
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	timers   map[string]*armed
	inFlight map[string]bool
	gen      uint64
	stopped  bool
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(s *Scheduler) { s.rand = f }
}

// NewScheduler builds a fee scheduler.
func NewScheduler(cfg Config, store wallet.Store, transfers Transferer, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Scheduler {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 45 * time.Second
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = 0.5
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	s := &Scheduler{
		cfg:       cfg,
		store:     store,
		transfers: transfers,
		clock:     realClock{},
		rand:      rand.Float64,
		logger:    logging.Component(logger, "fee"),
		metrics:   m,
		timers:    make(map[string]*armed),
		inFlight:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register records an uncollected fee and schedules its first attempt.
// Registering an id again replaces its amount and restarts its timer.
func (s *Scheduler) Register(ctx context.Context, contributionID string, amount decimal.Decimal) error {
	if contributionID == "" || !amount.IsPositive() {
		return fmt.Errorf("%w: id=%q amount=%s", ErrInvalidFee, contributionID, amount)
	}

	err := s.store.Update(ctx, func(r *wallet.Record) error {
		if r.Fees == nil {
			r.Fees = make(map[string]decimal.Decimal)
		}
		r.Fees[contributionID] = amount
		return nil
	})
	if err != nil {
		return fmt.Errorf("record fee %s: %w", contributionID, err)
	}

	s.logger.Info("fee registered", "contribution_id", contributionID, "amount", amount.String())
	s.arm(contributionID, 1)
	return nil
}

// Initialize arms a first attempt for every persisted fee. It is called once
// at startup and may be called again to restart abandoned fees.
func (s *Scheduler) Initialize(ctx context.Context) error {
	record, err := s.store.Get(ctx)
	if errors.Is(err, wallet.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load fees: %w", err)
	}

	ids := make([]string, 0, len(record.Fees))
	for id := range record.Fees {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s.arm(id, 1)
	}
	s.logger.Info("fee scheduler initialized", "pending", len(ids))
	return nil
}

// Stop cancels every armed timer. Transfers already running are left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	s.metrics.SetFeeTimersArmed(0)
}

// Armed returns the number of armed timers.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Outstanding lists persisted fees together with their timer state.
func (s *Scheduler) Outstanding(ctx context.Context) ([]PendingFee, error) {
	record, err := s.store.Get(ctx)
	if errors.Is(err, wallet.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fees := make([]PendingFee, 0, len(record.Fees))
	for id, amount := range record.Fees {
		p := PendingFee{ContributionID: id, Amount: amount}
		if entry, ok := s.timers[id]; ok {
			p.Armed = true
			p.Attempt = entry.attempt
		}
		fees = append(fees, p)
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i].ContributionID < fees[j].ContributionID })
	return fees, nil
}

func (s *Scheduler) arm(id string, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	delay := s.delay()

	entry := &armed{attempt: attempt, gen: gen}
	entry.timer = s.clock.AfterFunc(delay, func() { s.fire(id, gen) })
	s.timers[id] = entry
	s.metrics.SetFeeTimersArmed(len(s.timers))

	s.logger.Debug("fee timer armed", "contribution_id", id, "attempt", attempt, "delay", delay.String())
}

// delay is uniform in [base*(1-jitter), base*(1+jitter)].
func (s *Scheduler) delay() time.Duration {
	base := float64(s.cfg.BaseDelay)
	lo := base * (1 - s.cfg.Jitter)
	hi := base * (1 + s.cfg.Jitter)
	return time.Duration(lo + s.rand()*(hi-lo))
}

func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	entry, ok := s.timers[id]
	if !ok || entry.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.metrics.SetFeeTimersArmed(len(s.timers))
	attempt := entry.attempt

	if s.inFlight[id] {
		s.mu.Unlock()
		s.logger.Debug("fee collection already in flight, rescheduling", "contribution_id", id)
		s.arm(id, attempt)
		return
	}
	s.inFlight[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}()

	s.collect(context.Background(), id, attempt)
}

func (s *Scheduler) collect(ctx context.Context, id string, attempt int) {
	logger := s.logger.With("contribution_id", id, "attempt", attempt)

	record, err := s.store.Get(ctx)
	if errors.Is(err, wallet.ErrNotFound) {
		logger.Debug("wallet gone, nothing to collect")
		return
	}
	if err != nil {
		logger.Error("store.Get", "error", err)
		s.retry(id, attempt, logger)
		return
	}
	amount, ok := record.Fees[id]
	if !ok {
		logger.Debug("fee already settled")
		return
	}

	txID, err := s.transfers.Transfer(ctx, transfer.Transaction{
		Address: s.cfg.Address,
		Amount:  amount,
		Message: s.cfg.Message,
		Kind:    transfer.KindFee,
	})
	if errors.Is(err, transfer.ErrExpiredCredential) {
		s.metrics.RecordFeeAttempt("expired")
		logger.Warn("fee collection stopped: credential expired")
		return
	}
	if err != nil {
		logger.Error("fee collection failed", "error", err)
		s.retry(id, attempt, logger)
		return
	}

	s.metrics.RecordFeeAttempt("success")
	err = s.store.Update(ctx, func(r *wallet.Record) error {
		delete(r.Fees, id)
		return nil
	})
	if err != nil && !errors.Is(err, wallet.ErrNotFound) {
		logger.Error("fee collected but not cleared", "transaction_id", txID, "error", err)
		return
	}
	logger.Info("fee collected", "transaction_id", txID, "amount", amount.String())
}

func (s *Scheduler) retry(id string, attempt int, logger *slog.Logger) {
	if attempt < s.cfg.MaxAttempts {
		s.metrics.RecordFeeAttempt("retry")
		s.arm(id, attempt+1)
		return
	}
	s.metrics.RecordFeeAttempt("abandoned")
	logger.Warn("fee collection abandoned until restart", "max_attempts", s.cfg.MaxAttempts)
}
