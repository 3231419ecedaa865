package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFinalized OrderStatus = "finalized"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Order is a purchase awaiting an on-chain payment. The unique amount is
// generated once at creation and identifies the order among all pending
// orders on the same settlement address; it is never regenerated.
type Order struct {
	ID           string
	ListingID    string
	BuyerEmail   string
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalFiat    decimal.Decimal
	TotalCrypto  decimal.Decimal
	UniqueAmount decimal.Decimal
	PayAddress   string
	TokenSymbol  string
	Status       OrderStatus
	ProofTxID    string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
