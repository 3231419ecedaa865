package domain

import "time"

type CertificateStatus string

const (
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusRevoked CertificateStatus = "revoked"
)

// Certificate is the durable record issued for a settled order. Immutable
// once created except for status.
type Certificate struct {
	ID        string
	Code      string
	OrderID   string
	HolderRef string
	Quantity  int
	ProofTxID string
	Status    CertificateStatus
	IssuedAt  time.Time
}
