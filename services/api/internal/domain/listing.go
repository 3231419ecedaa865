package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is a sellable block of carbon credits with a unit price in fiat
// and a remaining available quantity.
type Listing struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	Available int
	CreatedAt time.Time
}
