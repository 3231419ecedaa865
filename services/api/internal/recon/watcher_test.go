package recon

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/veridion/carbon-market/services/api/internal/clock"
	"github.com/veridion/carbon-market/services/api/internal/domain"
)

type scriptedLookup struct {
	mu        sync.Mutex
	misses    int
	errs      int
	transfer  domain.LedgerTransfer
	callCount int
}

func (l *scriptedLookup) FindTransfer(ctx context.Context, recipient string, amount decimal.Decimal, token string) (*domain.LedgerTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callCount++
	if l.errs > 0 {
		l.errs--
		return nil, errors.New("explorer unreachable")
	}
	if l.misses > 0 {
		l.misses--
		return nil, nil
	}
	tr := l.transfer
	return &tr, nil
}

func (l *scriptedLookup) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.callCount
}

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newFakeStore(orders ...domain.Order) *fakeStore {
	s := &fakeStore{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *fakeStore) ListPending(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.Status = domain.OrderStatusExpired
	s.orders[id] = o
	return true, nil
}

func (s *fakeStore) status(id string) domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

type fakeFinalizer struct {
	mu    sync.Mutex
	store *fakeStore
	calls int
	err   error
}

func (f *fakeFinalizer) Finalize(ctx context.Context, orderID string, transfer domain.LedgerTransfer) (domain.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Certificate{}, f.err
	}
	f.store.mu.Lock()
	o := f.store.orders[orderID]
	o.Status = domain.OrderStatusFinalized
	o.ProofTxID = transfer.TxID
	f.store.orders[orderID] = o
	f.store.mu.Unlock()
	return domain.Certificate{Code: "CR-TEST", OrderID: orderID, ProofTxID: transfer.TxID}, nil
}

func (f *fakeFinalizer) finalizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func watchedOrder(now time.Time) domain.Order {
	return domain.Order{
		ID:           "order-1",
		ListingID:    "listing-1",
		Status:       domain.OrderStatusPending,
		UniqueAmount: decimal.RequireFromString("12.503700"),
		PayAddress:   "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		TokenSymbol:  "MATIC",
		ExpiresAt:    now.Add(time.Hour),
	}
}

func quietLogger() *log.Logger {
	return log.New(&strings.Builder{}, "", 0)
}

func TestWatcher_FinalizesAfterMisses(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	order := watchedOrder(now)
	store := newFakeStore(order)
	finalizer := &fakeFinalizer{store: store}
	lookup := &scriptedLookup{misses: 3, transfer: domain.LedgerTransfer{TxID: "0xabc", Amount: order.UniqueAmount}}

	w := New(lookup, finalizer, store, clock.NewFixed(now), quietLogger(), 5*time.Millisecond, time.Millisecond)
	w.Watch(order)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return !w.Watching(order.ID)
	}, time.Second, time.Millisecond)

	require.Equal(t, 1, finalizer.finalizeCalls())
	require.Equal(t, domain.OrderStatusFinalized, store.status(order.ID))
	require.Equal(t, 4, lookup.calls())

	// The watch is gone; further ticks must not touch the ledger.
	settled := lookup.calls()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, settled, lookup.calls())
}

func TestWatcher_LookupErrorsAreRetried(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	order := watchedOrder(now)
	store := newFakeStore(order)
	finalizer := &fakeFinalizer{store: store}
	lookup := &scriptedLookup{errs: 2, transfer: domain.LedgerTransfer{TxID: "0xabc"}}

	w := New(lookup, finalizer, store, clock.NewFixed(now), quietLogger(), 5*time.Millisecond, time.Millisecond)
	w.Watch(order)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return store.status(order.ID) == domain.OrderStatusFinalized
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, finalizer.finalizeCalls())
}

func TestWatcher_ExpiresOrderPastDeadline(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	order := watchedOrder(now)
	store := newFakeStore(order)
	finalizer := &fakeFinalizer{store: store}
	lookup := &scriptedLookup{misses: 1 << 20}
	clk := clock.NewManual(now)

	w := New(lookup, finalizer, store, clk, quietLogger(), 5*time.Millisecond, time.Millisecond)
	w.Watch(order)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Inside the payment window the watcher keeps polling without expiring.
	require.Eventually(t, func() bool {
		return lookup.calls() >= 2
	}, time.Second, time.Millisecond)
	require.Equal(t, domain.OrderStatusPending, store.status(order.ID))

	clk.Advance(2 * time.Hour)

	require.Eventually(t, func() bool {
		return store.status(order.ID) == domain.OrderStatusExpired
	}, time.Second, time.Millisecond)
	require.False(t, w.Watching(order.ID))
	require.Equal(t, 0, finalizer.finalizeCalls())
}

func TestWatcher_CancelStopsChecks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	order := watchedOrder(now)
	store := newFakeStore(order)
	finalizer := &fakeFinalizer{store: store}
	lookup := &scriptedLookup{transfer: domain.LedgerTransfer{TxID: "0xabc"}}

	w := New(lookup, finalizer, store, clock.NewFixed(now), quietLogger(), 5*time.Millisecond, 50*time.Millisecond)
	w.Watch(order)
	w.Cancel(order.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, lookup.calls())
	require.Equal(t, 0, finalizer.finalizeCalls())
}

func TestWatcher_LateMatchCannotFinalizeCancelledOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	order := watchedOrder(now)
	store := newFakeStore(order)
	// The order row was cancelled elsewhere; the conditional transition in
	// the finalizer reports not-pending.
	finalizer := &fakeFinalizer{store: store, err: domain.ErrOrderNotPending}
	lookup := &scriptedLookup{transfer: domain.LedgerTransfer{TxID: "0xabc"}}

	w := New(lookup, finalizer, store, clock.NewFixed(now), quietLogger(), 5*time.Millisecond, time.Millisecond)
	w.Watch(order)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return !w.Watching(order.ID)
	}, time.Second, time.Millisecond)
	require.Equal(t, domain.OrderStatusPending, store.status(order.ID))
}

func TestWatcher_CheckNow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	t.Run("finalizes on immediate match", func(t *testing.T) {
		order := watchedOrder(now)
		store := newFakeStore(order)
		finalizer := &fakeFinalizer{store: store}
		lookup := &scriptedLookup{transfer: domain.LedgerTransfer{TxID: "0xabc"}}

		w := New(lookup, finalizer, store, clock.NewFixed(now), quietLogger(), time.Hour, time.Hour)
		w.Watch(order)

		finalized, err := w.CheckNow(context.Background(), order.ID)
		require.NoError(t, err)
		require.True(t, finalized)
		require.False(t, w.Watching(order.ID))
		require.Equal(t, 1, finalizer.finalizeCalls())
	})

	t.Run("reports not yet on miss", func(t *testing.T) {
		order := watchedOrder(now)
		store := newFakeStore(order)
		finalizer := &fakeFinalizer{store: store}
		lookup := &scriptedLookup{misses: 10}

		w := New(lookup, finalizer, store, clock.NewFixed(now), quietLogger(), time.Hour, time.Hour)
		w.Watch(order)

		finalized, err := w.CheckNow(context.Background(), order.ID)
		require.NoError(t, err)
		require.False(t, finalized)
		require.True(t, w.Watching(order.ID))
	})

	t.Run("works for an unwatched pending order", func(t *testing.T) {
		order := watchedOrder(now)
		store := newFakeStore(order)
		finalizer := &fakeFinalizer{store: store}
		lookup := &scriptedLookup{transfer: domain.LedgerTransfer{TxID: "0xabc"}}

		w := New(lookup, finalizer, store, clock.NewFixed(now), quietLogger(), time.Hour, time.Hour)

		finalized, err := w.CheckNow(context.Background(), order.ID)
		require.NoError(t, err)
		require.True(t, finalized)
	})

	t.Run("rejects non-pending order", func(t *testing.T) {
		order := watchedOrder(now)
		order.Status = domain.OrderStatusCancelled
		store := newFakeStore(order)

		w := New(&scriptedLookup{}, &fakeFinalizer{store: store}, store, clock.NewFixed(now), quietLogger(), time.Hour, time.Hour)

		_, err := w.CheckNow(context.Background(), order.ID)
		require.ErrorIs(t, err, domain.ErrOrderNotPending)
	})

	t.Run("unknown order", func(t *testing.T) {
		store := newFakeStore()
		w := New(&scriptedLookup{}, &fakeFinalizer{store: store}, store, clock.NewFixed(now), quietLogger(), time.Hour, time.Hour)

		_, err := w.CheckNow(context.Background(), "missing")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("surfaces lookup errors", func(t *testing.T) {
		order := watchedOrder(now)
		store := newFakeStore(order)
		lookup := &scriptedLookup{errs: 1}

		w := New(lookup, &fakeFinalizer{store: store}, store, clock.NewFixed(now), quietLogger(), time.Hour, time.Hour)
		w.Watch(order)

		_, err := w.CheckNow(context.Background(), order.ID)
		require.Error(t, err)
		require.True(t, w.Watching(order.ID))
	})
}

func TestWatcher_Resume(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	pending := watchedOrder(now)
	other := watchedOrder(now)
	other.ID = "order-2"
	settled := watchedOrder(now)
	settled.ID = "order-3"
	settled.Status = domain.OrderStatusFinalized

	store := newFakeStore(pending, other, settled)
	w := New(&scriptedLookup{}, &fakeFinalizer{store: store}, store, clock.NewFixed(now), quietLogger(), time.Hour, time.Hour)

	require.NoError(t, w.Resume(context.Background()))
	require.True(t, w.Watching("order-1"))
	require.True(t, w.Watching("order-2"))
	require.False(t, w.Watching("order-3"))
}
