package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

type CertificateRepository struct {
	pool *pgxpool.Pool
}

func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

const certificateColumns = `id, code, order_id, holder_ref, quantity, proof_tx_id, status, issued_at`

func (r *CertificateRepository) GetCertificateByCode(ctx context.Context, code string) (domain.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE code = $1`

	cert, err := scanCertificate(r.queryRow(ctx, query, code))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Certificate{}, domain.ErrCertificateNotFound
		}
		return domain.Certificate{}, fmt.Errorf("get certificate: %w", err)
	}
	return cert, nil
}

func (r *CertificateRepository) ListCertificatesByHolder(ctx context.Context, holderRef string) ([]domain.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE holder_ref = $1 ORDER BY issued_at DESC`

	rows, err := r.pool.Query(ctx, query, holderRef)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []domain.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return out, nil
}

// RevokeCertificate flips an active certificate to revoked. Returns false
// when the certificate is missing or already revoked.
func (r *CertificateRepository) RevokeCertificate(ctx context.Context, code string) (bool, error) {
	const stmt = `UPDATE certificates SET status = 'revoked' WHERE code = $1 AND status = 'active'`

	tag, err := r.exec(ctx, stmt, code)
	if err != nil {
		return false, fmt.Errorf("revoke certificate: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanCertificate(row rowScanner) (domain.Certificate, error) {
	var c domain.Certificate
	var status string
	err := row.Scan(&c.ID, &c.Code, &c.OrderID, &c.HolderRef, &c.Quantity, &c.ProofTxID, &status, &c.IssuedAt)
	if err != nil {
		return domain.Certificate{}, err
	}
	c.Status = domain.CertificateStatus(status)
	return c, nil
}

func (r *CertificateRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *CertificateRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
