package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

type ListingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

func (r *ListingRepository) CreateListing(ctx context.Context, listing domain.Listing) error {
	const stmt = `
INSERT INTO listings (id, name, unit_price, available, created_at)
VALUES ($1, $2, $3::numeric, $4, $5)`

	_, err := r.exec(ctx, stmt,
		listing.ID,
		listing.Name,
		listing.UnitPrice.String(),
		listing.Available,
		listing.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (r *ListingRepository) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	return getListing(ctx, r.queryRow, id)
}

func (r *ListingRepository) ListListings(ctx context.Context) ([]domain.Listing, error) {
	const query = `
SELECT id, name, unit_price::text, available, created_at
FROM listings
ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return out, nil
}

type queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row

func getListing(ctx context.Context, queryRow queryRowFunc, id string) (domain.Listing, error) {
	const query = `SELECT id, name, unit_price::text, available, created_at FROM listings WHERE id = $1`

	l, err := scanListing(queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Listing{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func scanListing(row rowScanner) (domain.Listing, error) {
	var l domain.Listing
	var unitPrice string
	if err := row.Scan(&l.ID, &l.Name, &unitPrice, &l.Available, &l.CreatedAt); err != nil {
		return domain.Listing{}, err
	}
	var err error
	if l.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

func (r *ListingRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ListingRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
