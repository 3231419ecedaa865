package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/amount"
	"github.com/veridion/carbon-market/services/api/internal/clock"
	"github.com/veridion/carbon-market/services/api/internal/config"
	"github.com/veridion/carbon-market/services/api/internal/domain"
)

type OrderRepository interface {
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	MarkCancelled(ctx context.Context, id string) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type OrderService struct {
	repo  OrderRepository
	gen   *amount.Generator
	clock clock.Clock
	cfg   config.Config
}

func NewOrderService(repo OrderRepository, gen *amount.Generator, clk clock.Clock, cfg config.Config) *OrderService {
	return &OrderService{
		repo:  repo,
		gen:   gen,
		clock: clk,
		cfg:   cfg,
	}
}

type CreateOrderInput struct {
	ListingID   string
	BuyerEmail  string
	Quantity    int
	TokenSymbol string
}

// CreateOrder prices the purchase, derives the unique payable amount and
// persists a pending order. The unique amount is generated exactly once;
// a collision with another pending order on the same settlement address is
// retried once with a fresh draw.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if in.Quantity <= 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}
	if !s.cfg.TokenAccepted(in.TokenSymbol) {
		return domain.Order{}, domain.ErrUnsupportedToken
	}

	listing, err := s.repo.GetListing(ctx, in.ListingID)
	if err != nil {
		return domain.Order{}, err
	}
	if in.Quantity > listing.Available {
		return domain.Order{}, domain.ErrInsufficientStock
	}

	now := s.clock.Now()
	totalFiat := listing.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
	totalCrypto := totalFiat.DivRound(s.cfg.ReferenceRate, amount.FractionDigits)

	order := domain.Order{
		ID:          uuid.NewString(),
		ListingID:   listing.ID,
		BuyerEmail:  in.BuyerEmail,
		Quantity:    in.Quantity,
		UnitPrice:   listing.UnitPrice,
		TotalFiat:   totalFiat,
		TotalCrypto: totalCrypto,
		PayAddress:  s.cfg.SettlementAddress,
		TokenSymbol: in.TokenSymbol,
		Status:      domain.OrderStatusPending,
		ExpiresAt:   now.Add(s.cfg.OrderTTL),
		CreatedAt:   now,
	}

	for attempt := 0; attempt < 2; attempt++ {
		order.UniqueAmount = s.gen.Unique(totalCrypto)
		err = s.repo.CreateOrder(ctx, order)
		if !errors.Is(err, domain.ErrAmountInUse) {
			break
		}
	}
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// CancelOrder abandons a pending order. The transition is conditional on
// the order still being pending, so a payment matched concurrently wins.
func (s *OrderService) CancelOrder(ctx context.Context, id string) error {
	ok, err := s.repo.MarkCancelled(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.repo.GetOrder(ctx, id); err != nil {
		return err
	}
	return domain.ErrOrderNotPending
}

// ExpireStale marks every pending order past its deadline as expired and
// returns how many were swept. Run at startup to cover orders whose watch
// died with a previous process.
func (s *OrderService) ExpireStale(ctx context.Context) (int64, error) {
	return s.repo.ExpireStale(ctx, s.clock.Now())
}
