package app

import (
	"context"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

type CertificateRepository interface {
	GetCertificateByCode(ctx context.Context, code string) (domain.Certificate, error)
	ListCertificatesByHolder(ctx context.Context, holderRef string) ([]domain.Certificate, error)
	RevokeCertificate(ctx context.Context, code string) (bool, error)
}

// CertificateService serves verification lookups and operator revocation.
type CertificateService struct {
	repo CertificateRepository
}

func NewCertificateService(repo CertificateRepository) *CertificateService {
	return &CertificateService{repo: repo}
}

func (s *CertificateService) GetByCode(ctx context.Context, code string) (domain.Certificate, error) {
	if code == "" {
		return domain.Certificate{}, domain.ErrInvalidID
	}
	return s.repo.GetCertificateByCode(ctx, code)
}

func (s *CertificateService) ListByHolder(ctx context.Context, holderRef string) ([]domain.Certificate, error) {
	if holderRef == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListCertificatesByHolder(ctx, holderRef)
}

// Revoke marks a certificate revoked. Revoking twice reports
// ErrCertificateRevoked; the record itself never changes again.
func (s *CertificateService) Revoke(ctx context.Context, code string) error {
	ok, err := s.repo.RevokeCertificate(ctx, code)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.repo.GetCertificateByCode(ctx, code); err != nil {
		return err
	}
	return domain.ErrCertificateRevoked
}
