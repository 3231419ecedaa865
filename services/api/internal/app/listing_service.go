package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/clock"
	"github.com/veridion/carbon-market/services/api/internal/domain"
)

type ListingRepository interface {
	CreateListing(ctx context.Context, listing domain.Listing) error
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	ListListings(ctx context.Context) ([]domain.Listing, error)
}

type ListingService struct {
	repo  ListingRepository
	clock clock.Clock
}

func NewListingService(repo ListingRepository, clk clock.Clock) *ListingService {
	return &ListingService{
		repo:  repo,
		clock: clk,
	}
}

type CreateListingInput struct {
	Name      string
	UnitPrice decimal.Decimal
	Available int
}

func (s *ListingService) CreateListing(ctx context.Context, in CreateListingInput) (domain.Listing, error) {
	if in.Name == "" {
		return domain.Listing{}, domain.ErrListingNameRequired
	}
	if !in.UnitPrice.IsPositive() {
		return domain.Listing{}, domain.ErrInvalidPrice
	}
	if in.Available <= 0 {
		return domain.Listing{}, domain.ErrInvalidQuantity
	}

	listing := domain.Listing{
		ID:        uuid.NewString(),
		Name:      in.Name,
		UnitPrice: in.UnitPrice,
		Available: in.Available,
		CreatedAt: s.clock.Now(),
	}

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return domain.Listing{}, err
	}
	return listing, nil
}

func (s *ListingService) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	return s.repo.GetListing(ctx, id)
}

func (s *ListingService) ListListings(ctx context.Context) ([]domain.Listing, error) {
	return s.repo.ListListings(ctx)
}
