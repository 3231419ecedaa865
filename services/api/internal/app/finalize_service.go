package app

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/veridion/carbon-market/services/api/internal/clock"
	"github.com/veridion/carbon-market/services/api/internal/domain"
	"github.com/veridion/carbon-market/services/api/internal/notify"
)

type FinalizeRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	// MarkFinalized must be a single conditional update: it succeeds only
	// while the order is still pending and records the payment proof.
	MarkFinalized(ctx context.Context, id, proofTxID string) (bool, error)
	GetCertificateByOrderID(ctx context.Context, orderID string) (*domain.Certificate, error)
	CreateCertificate(ctx context.Context, cert domain.Certificate) error
	DecrementAvailable(ctx context.Context, listingID string, quantity int) (int, error)
}

type FinalizeService struct {
	repo          FinalizeRepository
	notifier      notify.Notifier
	clock         clock.Clock
	logger        *log.Logger
	operatorEmail string
}

func NewFinalizeService(repo FinalizeRepository, notifier notify.Notifier, clk clock.Clock, logger *log.Logger, operatorEmail string) *FinalizeService {
	if logger == nil {
		logger = log.Default()
	}
	return &FinalizeService{
		repo:          repo,
		notifier:      notifier,
		clock:         clk,
		logger:        logger,
		operatorEmail: operatorEmail,
	}
}

// Finalize converts a matched payment into an issued certificate exactly
// once. Certificate creation and the inventory decrement share one
// transaction with the conditional status transition, so a concurrent or
// repeated call either returns the already-issued certificate (same proof)
// or ErrOrderNotPending, and never writes twice.
func (s *FinalizeService) Finalize(ctx context.Context, orderID string, transfer domain.LedgerTransfer) (domain.Certificate, error) {
	var cert domain.Certificate

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}

		ok, err := s.repo.MarkFinalized(txCtx, orderID, transfer.TxID)
		if err != nil {
			return err
		}
		if !ok {
			existing, err := s.repo.GetCertificateByOrderID(txCtx, orderID)
			if err != nil {
				return err
			}
			if existing != nil && existing.ProofTxID == transfer.TxID {
				cert = *existing
				return nil
			}
			return domain.ErrOrderNotPending
		}

		cert = domain.Certificate{
			ID:        uuid.NewString(),
			Code:      newCertificateCode(),
			OrderID:   order.ID,
			HolderRef: order.BuyerEmail,
			Quantity:  order.Quantity,
			ProofTxID: transfer.TxID,
			Status:    domain.CertificateStatusActive,
			IssuedAt:  s.clock.Now(),
		}
		if err := s.repo.CreateCertificate(txCtx, cert); err != nil {
			return err
		}

		if _, err := s.repo.DecrementAvailable(txCtx, order.ListingID, order.Quantity); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Certificate{}, err
	}

	s.sendNotifications(ctx, orderID, cert, transfer)
	return cert, nil
}

func (s *FinalizeService) sendNotifications(ctx context.Context, orderID string, cert domain.Certificate, transfer domain.LedgerTransfer) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Printf("WARN: notify skipped, reload order %s: %v", orderID, err)
		return
	}

	data := map[string]any{
		"OrderID":         order.ID,
		"Amount":          order.UniqueAmount.String(),
		"Token":           order.TokenSymbol,
		"TxID":            transfer.TxID,
		"CertificateCode": cert.Code,
		"Quantity":        cert.Quantity,
		"Buyer":           order.BuyerEmail,
	}

	if err := s.notifier.Send(ctx, notify.TemplatePaymentReceived, order.BuyerEmail, data); err != nil {
		s.logger.Printf("WARN: buyer notification failed order=%s: %v", order.ID, err)
	}
	if s.operatorEmail != "" {
		if err := s.notifier.Send(ctx, notify.TemplateOperatorSummary, s.operatorEmail, data); err != nil {
			s.logger.Printf("WARN: operator notification failed order=%s: %v", order.ID, err)
		}
	}
}
