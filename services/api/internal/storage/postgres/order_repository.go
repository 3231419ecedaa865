package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

// pendingAmountConstraint backs the uniqueness of (pay_address,
// unique_amount) across pending orders; a violation means the generated
// amount is already in use and the caller should draw again.
const pendingAmountConstraint = "orders_pending_unique_amount"

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const orderColumns = `id, listing_id, buyer_email, quantity,
unit_price::text, total_fiat::text, total_crypto::text, unique_amount::text,
pay_address, token_symbol, status, proof_tx_id, expires_at, created_at`

func (r *OrderRepository) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	return getListing(ctx, r.queryRow, id)
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, listing_id, buyer_email, quantity,
	unit_price, total_fiat, total_crypto, unique_amount,
	pay_address, token_symbol, status, proof_tx_id, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, $14)`

	_, err := r.exec(ctx, stmt,
		order.ID,
		order.ListingID,
		order.BuyerEmail,
		order.Quantity,
		order.UnitPrice.String(),
		order.TotalFiat.String(),
		order.TotalCrypto.String(),
		order.UniqueAmount.String(),
		order.PayAddress,
		order.TokenSymbol,
		order.Status,
		order.ProofTxID,
		order.ExpiresAt,
		order.CreatedAt,
	)
	if err != nil {
		if uniqueConstraint(err) == pendingAmountConstraint {
			return domain.ErrAmountInUse
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) ListPending(ctx context.Context) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = 'pending' ORDER BY created_at`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending order: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return out, nil
}

// MarkFinalized is the idempotency guard for the whole finalize path: only
// an order that is still pending transitions, and the payment proof is
// recorded in the same statement.
func (r *OrderRepository) MarkFinalized(ctx context.Context, id, proofTxID string) (bool, error) {
	return r.transition(ctx, id, domain.OrderStatusFinalized, proofTxID)
}

func (r *OrderRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, domain.OrderStatusCancelled, "")
}

func (r *OrderRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, domain.OrderStatusExpired, "")
}

func (r *OrderRepository) transition(ctx context.Context, id string, status domain.OrderStatus, proofTxID string) (bool, error) {
	const stmt = `
UPDATE orders SET status = $2, proof_tx_id = COALESCE(NULLIF($3, ''), proof_tx_id)
WHERE id = $1 AND status = 'pending'`

	tag, err := r.exec(ctx, stmt, id, status, proofTxID)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("transition order to %s: %w", status, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	const stmt = `UPDATE orders SET status = 'expired' WHERE status = 'pending' AND expires_at <= $1`

	tag, err := r.exec(ctx, stmt, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var status, unitPrice, totalFiat, totalCrypto, uniqueAmount string
	err := row.Scan(
		&o.ID, &o.ListingID, &o.BuyerEmail, &o.Quantity,
		&unitPrice, &totalFiat, &totalCrypto, &uniqueAmount,
		&o.PayAddress, &o.TokenSymbol, &status, &o.ProofTxID, &o.ExpiresAt, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	if o.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return domain.Order{}, err
	}
	if o.TotalFiat, err = decimal.NewFromString(totalFiat); err != nil {
		return domain.Order{}, err
	}
	if o.TotalCrypto, err = decimal.NewFromString(totalCrypto); err != nil {
		return domain.Order{}, err
	}
	if o.UniqueAmount, err = decimal.NewFromString(uniqueAmount); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
