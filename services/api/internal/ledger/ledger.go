// Package ledger queries an external block explorer for observed token
// transfers. The explorer is read-only; repeated lookups are always safe.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

// Lookup finds a transfer of exactly amount to recipient in the given
// token. A nil transfer with a nil error means no match yet.
type Lookup interface {
	FindTransfer(ctx context.Context, recipient string, amount decimal.Decimal, token string) (*domain.LedgerTransfer, error)
}
