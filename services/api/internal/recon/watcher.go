// Package recon watches pending orders for their matching on-chain payment
// and finalizes them. The watcher owns reconciliation server-side: a buyer
// closing their browser does not stop an order from settling.
package recon

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/veridion/carbon-market/services/api/internal/clock"
	"github.com/veridion/carbon-market/services/api/internal/domain"
	"github.com/veridion/carbon-market/services/api/internal/ledger"
)

type Finalizer interface {
	Finalize(ctx context.Context, orderID string, transfer domain.LedgerTransfer) (domain.Certificate, error)
}

type OrderStore interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListPending(ctx context.Context) ([]domain.Order, error)
	MarkExpired(ctx context.Context, id string) (bool, error)
}

// Watcher re-checks every watched order on a fixed interval until its
// payment arrives, the order expires, or the watch is cancelled. A failed
// lookup is logged and retried on the next tick; there is no backoff.
type Watcher struct {
	lookup    ledger.Lookup
	finalizer Finalizer
	orders    OrderStore
	clock     clock.Clock
	logger    *log.Logger

	interval     time.Duration
	initialDelay time.Duration

	mu      sync.Mutex
	watches map[string]domain.Order
}

func New(lookup ledger.Lookup, finalizer Finalizer, orders OrderStore, clk clock.Clock, logger *log.Logger, interval, initialDelay time.Duration) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		lookup:       lookup,
		finalizer:    finalizer,
		orders:       orders,
		clock:        clk,
		logger:       logger,
		interval:     interval,
		initialDelay: initialDelay,
		watches:      make(map[string]domain.Order),
	}
}

// Watch registers order for reconciliation. At most one watch exists per
// order id; watching again replaces the entry.
func (w *Watcher) Watch(order domain.Order) {
	if order.Status != domain.OrderStatusPending {
		return
	}
	w.mu.Lock()
	w.watches[order.ID] = order
	w.mu.Unlock()
}

// Cancel drops the watch for orderID. It does not touch the order row; the
// caller transitions the order through the order service.
func (w *Watcher) Cancel(orderID string) {
	w.mu.Lock()
	delete(w.watches, orderID)
	w.mu.Unlock()
}

// Watching reports whether orderID currently has a watch.
func (w *Watcher) Watching(orderID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[orderID]
	return ok
}

// Resume reloads watches for every pending order. Called at startup so
// reconciliation survives process restarts.
func (w *Watcher) Resume(ctx context.Context) error {
	pending, err := w.orders.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, order := range pending {
		w.Watch(order)
	}
	if len(pending) > 0 {
		w.logger.Printf("recon resumed watches=%d", len(pending))
	}
	return nil
}

// Run drives the recheck loop until ctx is cancelled. Sweeps are strictly
// sequential; a slow sweep delays the next tick rather than overlapping it.
func (w *Watcher) Run(ctx context.Context) {
	delay := time.NewTimer(w.initialDelay)
	defer delay.Stop()
	select {
	case <-delay.C:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	w.mu.Lock()
	snapshot := make([]domain.Order, 0, len(w.watches))
	for _, order := range w.watches {
		snapshot = append(snapshot, order)
	}
	w.mu.Unlock()

	for _, order := range snapshot {
		if ctx.Err() != nil {
			return
		}
		if !w.Watching(order.ID) {
			// Cancelled between snapshot and check.
			continue
		}
		done, err := w.check(ctx, order)
		if err != nil {
			w.logger.Printf("WARN: recon check order=%s: %v", order.ID, err)
			continue
		}
		if done {
			w.Cancel(order.ID)
		}
	}
}

// check runs one reconciliation attempt for order. It returns done=true
// when the watch should be dropped: the order settled, expired, or was
// transitioned elsewhere.
func (w *Watcher) check(ctx context.Context, order domain.Order) (bool, error) {
	if w.clock.Now().After(order.ExpiresAt) {
		if _, err := w.orders.MarkExpired(ctx, order.ID); err != nil {
			return false, err
		}
		w.logger.Printf("recon expired order=%s", order.ID)
		return true, nil
	}

	transfer, err := w.lookup.FindTransfer(ctx, order.PayAddress, order.UniqueAmount, order.TokenSymbol)
	if err != nil {
		return false, err
	}
	if transfer == nil {
		return false, nil
	}

	cert, err := w.finalizer.Finalize(ctx, order.ID, *transfer)
	if errors.Is(err, domain.ErrOrderNotPending) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	w.logger.Printf("recon settled order=%s tx=%s certificate=%s", order.ID, transfer.TxID, cert.Code)
	return true, nil
}

// CheckNow performs one immediate reconciliation attempt for orderID,
// outside the tick schedule. It reports whether the order finalized.
func (w *Watcher) CheckNow(ctx context.Context, orderID string) (bool, error) {
	w.mu.Lock()
	order, watched := w.watches[orderID]
	w.mu.Unlock()

	if !watched {
		var err error
		order, err = w.orders.GetOrder(ctx, orderID)
		if err != nil {
			return false, err
		}
		if order.Status != domain.OrderStatusPending {
			return false, domain.ErrOrderNotPending
		}
	}

	done, err := w.check(ctx, order)
	if err != nil {
		return false, err
	}
	if done {
		w.Cancel(orderID)
		latest, err := w.orders.GetOrder(ctx, orderID)
		if err != nil {
			return false, err
		}
		return latest.Status == domain.OrderStatusFinalized, nil
	}
	return false, nil
}
