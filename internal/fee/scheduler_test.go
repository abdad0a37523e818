package fee

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/transfer"
	"github.com/congo-pay/remittance/internal/wallet"
)

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the callback even if the timer was stopped, which is what a
// timer that already elapsed before Stop looks like.
func (t *fakeTimer) Fire() {
	t.clock.mu.Lock()
	t.fired = true
	f := t.f
	t.clock.mu.Unlock()
	f()
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var active []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			active = append(active, t)
		}
	}
	return active
}

// FireNext fires the oldest active timer and reports whether one existed.
func (c *fakeClock) FireNext() bool {
	active := c.Active()
	if len(active) == 0 {
		return false
	}
	active[0].Fire()
	return true
}

type scriptedTransferer struct {
	mu      sync.Mutex
	results []error
	calls   []transfer.Transaction
	during  func()
}

func (t *scriptedTransferer) Transfer(_ context.Context, tx transfer.Transaction) (string, error) {
	t.mu.Lock()
	idx := len(t.calls)
	t.calls = append(t.calls, tx)
	var err error
	if idx < len(t.results) {
		err = t.results[idx]
	}
	during := t.during
	t.during = nil
	t.mu.Unlock()

	if during != nil {
		during()
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tx-%d", idx), nil
}

func (t *scriptedTransferer) Calls() []transfer.Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transfer.Transaction, len(t.calls))
	copy(out, t.calls)
	return out
}

type fixture struct {
	scheduler *Scheduler
	store     wallet.Store
	clock     *fakeClock
	transfers *scriptedTransferer
}

func newFixture(t *testing.T, results ...error) *fixture {
	t.Helper()
	store := wallet.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), &wallet.Record{
		Provider: "uphold",
		Status:   wallet.StatusVerified,
		Token:    "tok",
		Address:  "card-1",
	}))
	clock := &fakeClock{}
	transfers := &scriptedTransferer{results: results}
	scheduler := NewScheduler(Config{
		Address:     "fee-card",
		Message:     "5% transaction fee collected by Congo Remit",
		BaseDelay:   45 * time.Second,
		Jitter:      0.5,
		MaxAttempts: 3,
	}, store, transfers, logging.Discard(), nil, WithClock(clock), WithRand(func() float64 { return 0.5 }))
	return &fixture{scheduler: scheduler, store: store, clock: clock, transfers: transfers}
}

func (f *fixture) fees(t *testing.T) map[string]decimal.Decimal {
	t.Helper()
	record, err := f.store.Get(context.Background())
	require.NoError(t, err)
	return record.Fees
}

func TestRegisterThenCollect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
	assert.True(t, f.fees(t)["c-1"].Equal(decimal.NewFromInt(5)))

	active := f.clock.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 45*time.Second, active[0].delay)

	require.True(t, f.clock.FireNext())

	calls := f.transfers.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "fee-card", calls[0].Address)
	assert.Equal(t, transfer.KindFee, calls[0].Kind)
	assert.Equal(t, "5% transaction fee collected by Congo Remit", calls[0].Message)
	assert.True(t, calls[0].Amount.Equal(decimal.NewFromInt(5)))

	assert.Empty(t, f.fees(t))
	assert.Empty(t, f.clock.Active())
	assert.Zero(t, f.scheduler.Armed())
}

func TestRetriesUntilSuccess(t *testing.T) {
	boom := errors.New("provider down")
	f := newFixture(t, boom, boom, nil)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
	for f.clock.FireNext() {
	}

	assert.Len(t, f.transfers.Calls(), 3)
	assert.Empty(t, f.fees(t))
}

func TestAbandonsAfterMaxAttemptsUntilInitialize(t *testing.T) {
	boom := errors.New("provider down")
	f := newFixture(t, boom, boom, boom)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
	for f.clock.FireNext() {
	}

	assert.Len(t, f.transfers.Calls(), 3)
	assert.Contains(t, f.fees(t), "c-1")
	assert.Empty(t, f.clock.Active())

	outstanding, err := f.scheduler.Outstanding(ctx)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.False(t, outstanding[0].Armed)

	require.NoError(t, f.scheduler.Initialize(ctx))
	require.True(t, f.clock.FireNext())
	assert.Len(t, f.transfers.Calls(), 4)
	assert.Empty(t, f.fees(t))
}

func TestStaleTimerIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
	stale := f.clock.Active()[0]

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(6)))
	assert.True(t, stale.stopped, "re-registering must stop the previous timer")

	stale.Fire()
	assert.Empty(t, f.transfers.Calls())

	require.True(t, f.clock.FireNext())
	calls := f.transfers.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Amount.Equal(decimal.NewFromInt(6)))
}

func TestFireAfterFeeRemovedIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
	require.NoError(t, f.store.Update(ctx, func(r *wallet.Record) error {
		r.Fees = nil
		return nil
	}))

	require.True(t, f.clock.FireNext())
	assert.Empty(t, f.transfers.Calls())
	assert.Empty(t, f.clock.Active())
}

func TestExpiredCredentialStopsRetries(t *testing.T) {
	f := newFixture(t, transfer.ErrExpiredCredential)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
	require.True(t, f.clock.FireNext())

	assert.Len(t, f.transfers.Calls(), 1)
	assert.Empty(t, f.clock.Active())
}

func TestRegisterWithoutWallet(t *testing.T) {
	clock := &fakeClock{}
	scheduler := NewScheduler(Config{Address: "fee-card"}, wallet.NewMemoryStore(), &scriptedTransferer{}, logging.Discard(), nil, WithClock(clock))

	err := scheduler.Register(context.Background(), "c-1", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	assert.Empty(t, clock.Active())
}

func TestRegisterRejectsInvalidFee(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.scheduler.Register(context.Background(), "", decimal.NewFromInt(1)), ErrInvalidFee)
	assert.ErrorIs(t, f.scheduler.Register(context.Background(), "c-1", decimal.Zero), ErrInvalidFee)
	assert.Empty(t, f.clock.Active())
}

func TestOnlyOneTransferInFlightPerFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
	f.transfers.during = func() {
		require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))
		require.True(t, f.clock.FireNext())
	}

	require.True(t, f.clock.FireNext())
	assert.Len(t, f.transfers.Calls(), 1)

	// The rescheduled timer finds the fee settled.
	require.True(t, f.clock.FireNext())
	assert.Len(t, f.transfers.Calls(), 1)
	assert.Empty(t, f.fees(t))
}

func TestInitializeArmsEveryFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Update(ctx, func(r *wallet.Record) error {
		r.Fees = map[string]decimal.Decimal{
			"c-2": decimal.NewFromInt(2),
			"c-1": decimal.NewFromInt(1),
		}
		return nil
	}))

	require.NoError(t, f.scheduler.Initialize(ctx))
	assert.Equal(t, 2, f.scheduler.Armed())

	outstanding, err := f.scheduler.Outstanding(ctx)
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	assert.Equal(t, "c-1", outstanding[0].ContributionID)
	assert.Equal(t, 1, outstanding[0].Attempt)
	assert.True(t, outstanding[1].Armed)
}

func TestInitializeWithoutWallet(t *testing.T) {
	scheduler := NewScheduler(Config{}, wallet.NewMemoryStore(), &scriptedTransferer{}, logging.Discard(), nil, WithClock(&fakeClock{}))
	assert.NoError(t, scheduler.Initialize(context.Background()))
}

func TestStopCancelsTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.scheduler.Register(ctx, "c-1", decimal.NewFromInt(5)))

	f.scheduler.Stop()
	assert.Zero(t, f.scheduler.Armed())
	assert.Empty(t, f.clock.Active())

	require.NoError(t, f.scheduler.Register(ctx, "c-2", decimal.NewFromInt(5)))
	assert.Empty(t, f.clock.Active(), "no timers are armed after Stop")
	assert.Contains(t, f.fees(t), "c-2")
}

func TestDelayBounds(t *testing.T) {
	for _, tc := range []struct {
		r    float64
		want time.Duration
	}{
		{0, 22500 * time.Millisecond},
		{0.5, 45 * time.Second},
		{0.999999, 67499955 * time.Microsecond},
	} {
		s := NewScheduler(Config{BaseDelay: 45 * time.Second, Jitter: 0.5}, nil, nil, logging.Discard(), nil, WithRand(func() float64 { return tc.r }))
		got := s.delay()
		assert.InDelta(t, float64(tc.want), float64(got), float64(time.Millisecond), "r=%v", tc.r)
		assert.GreaterOrEqual(t, got, 22500*time.Millisecond)
		assert.LessOrEqual(t, got, 67500*time.Millisecond)
	}
}
