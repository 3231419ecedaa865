package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

// FinalizeRepository spans the tables touched by order finalization so the
// conditional status transition, certificate insert and inventory decrement
// can share one transaction.
type FinalizeRepository struct {
	pool   *pgxpool.Pool
	orders *OrderRepository
}

func NewFinalizeRepository(pool *pgxpool.Pool) *FinalizeRepository {
	return &FinalizeRepository{
		pool:   pool,
		orders: NewOrderRepository(pool),
	}
}

func (r *FinalizeRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *FinalizeRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return r.orders.GetOrder(ctx, id)
}

func (r *FinalizeRepository) MarkFinalized(ctx context.Context, id, proofTxID string) (bool, error) {
	return r.orders.MarkFinalized(ctx, id, proofTxID)
}

func (r *FinalizeRepository) GetCertificateByOrderID(ctx context.Context, orderID string) (*domain.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE order_id = $1`

	cert, err := scanCertificate(r.queryRow(ctx, query, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate by order: %w", err)
	}
	return &cert, nil
}

func (r *FinalizeRepository) CreateCertificate(ctx context.Context, cert domain.Certificate) error {
	const stmt = `
INSERT INTO certificates (id, code, order_id, holder_ref, quantity, proof_tx_id, status, issued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		cert.ID,
		cert.Code,
		cert.OrderID,
		cert.HolderRef,
		cert.Quantity,
		cert.ProofTxID,
		cert.Status,
		cert.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// DecrementAvailable floors at zero in a single statement so concurrent
// settlements can never drive inventory negative.
func (r *FinalizeRepository) DecrementAvailable(ctx context.Context, listingID string, quantity int) (int, error) {
	const stmt = `
UPDATE listings SET available = GREATEST(available - $2, 0)
WHERE id = $1
RETURNING available`

	var available int
	err := r.queryRow(ctx, stmt, listingID, quantity).Scan(&available)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return 0, domain.ErrListingNotFound
		}
		return 0, fmt.Errorf("decrement available: %w", err)
	}
	return available, nil
}

func (r *FinalizeRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *FinalizeRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
