package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/domain"
	"github.com/veridion/carbon-market/services/api/internal/testutil"
)

const testPayAddress = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

func seedOrder(listingID string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:           uuid.NewString(),
		ListingID:    listingID,
		BuyerEmail:   "buyer@example.com",
		Quantity:     2,
		UnitPrice:    decimal.RequireFromString("5.00"),
		TotalFiat:    decimal.RequireFromString("10.00"),
		TotalCrypto:  decimal.RequireFromString("12.500000"),
		UniqueAmount: decimal.RequireFromString("12.503700"),
		PayAddress:   testPayAddress,
		TokenSymbol:  "MATIC",
		Status:       domain.OrderStatusPending,
		ExpiresAt:    now.Add(24 * time.Hour),
		CreatedAt:    now,
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	listingID := testutil.InsertListing(t, ctx, pool, "Rainforest credits", decimal.RequireFromString("5.00"), 100)
	repo := NewOrderRepository(pool)

	order := seedOrder(listingID)
	if err := repo.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if !got.UniqueAmount.Equal(order.UniqueAmount) {
		t.Fatalf("expected unique amount %s, got %s", order.UniqueAmount, got.UniqueAmount)
	}
	if !got.TotalFiat.Equal(order.TotalFiat) {
		t.Fatalf("expected fiat %s, got %s", order.TotalFiat, got.TotalFiat)
	}
	if got.TokenSymbol != "MATIC" || got.PayAddress != testPayAddress {
		t.Fatalf("unexpected payment fields %+v", got)
	}
}

func TestOrderRepository_UniqueAmountConflict(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	listingID := testutil.InsertListing(t, ctx, pool, "Rainforest credits", decimal.RequireFromString("5.00"), 100)
	repo := NewOrderRepository(pool)

	first := seedOrder(listingID)
	if err := repo.CreateOrder(ctx, first); err != nil {
		t.Fatalf("create first order: %v", err)
	}

	second := seedOrder(listingID)
	if err := repo.CreateOrder(ctx, second); err != domain.ErrAmountInUse {
		t.Fatalf("expected ErrAmountInUse, got %v", err)
	}

	// A finalized order releases its amount for reuse.
	if ok, err := repo.MarkFinalized(ctx, first.ID, "0xproof"); err != nil || !ok {
		t.Fatalf("mark finalized: ok=%v err=%v", ok, err)
	}
	if err := repo.CreateOrder(ctx, second); err != nil {
		t.Fatalf("expected amount reusable after finalize, got %v", err)
	}
}

func TestOrderRepository_ConditionalTransitions(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	listingID := testutil.InsertListing(t, ctx, pool, "Rainforest credits", decimal.RequireFromString("5.00"), 100)
	repo := NewOrderRepository(pool)

	order := seedOrder(listingID)
	if err := repo.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	ok, err := repo.MarkFinalized(ctx, order.ID, "0xproof")
	if err != nil || !ok {
		t.Fatalf("first finalize: ok=%v err=%v", ok, err)
	}

	// Repeat finalize, cancel and expire must all refuse a settled order.
	if ok, _ := repo.MarkFinalized(ctx, order.ID, "0xother"); ok {
		t.Fatalf("expected second finalize to be refused")
	}
	if ok, _ := repo.MarkCancelled(ctx, order.ID); ok {
		t.Fatalf("expected cancel of finalized order to be refused")
	}
	if ok, _ := repo.MarkExpired(ctx, order.ID); ok {
		t.Fatalf("expected expire of finalized order to be refused")
	}

	got, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusFinalized || got.ProofTxID != "0xproof" {
		t.Fatalf("expected finalized with original proof, got %+v", got)
	}
}

func TestOrderRepository_ListPendingAndExpireStale(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	listingID := testutil.InsertListing(t, ctx, pool, "Rainforest credits", decimal.RequireFromString("5.00"), 100)
	repo := NewOrderRepository(pool)

	stale := seedOrder(listingID)
	stale.UniqueAmount = decimal.RequireFromString("12.501100")
	stale.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	fresh := seedOrder(listingID)
	fresh.UniqueAmount = decimal.RequireFromString("12.502200")

	for _, o := range []domain.Order{stale, fresh} {
		if err := repo.CreateOrder(ctx, o); err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	n, err := repo.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	pending, err = repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != fresh.ID {
		t.Fatalf("expected only fresh order pending, got %+v", pending)
	}
}

func TestOrderRepository_GetOrderErrors(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOrderRepository(pool)

	if _, err := repo.GetOrder(ctx, uuid.NewString()); err != domain.ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := repo.GetOrder(ctx, "not-a-uuid"); err != domain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
