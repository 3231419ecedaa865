package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransfer is an observed on-chain token transfer, read-only to this
// system. A transfer matches an order when its amount equals the order's
// unique amount exactly and its recipient equals the order's pay address.
type LedgerTransfer struct {
	TxID          string
	Amount        decimal.Decimal
	Recipient     string
	ObservedAt    time.Time
	Confirmations int
}
