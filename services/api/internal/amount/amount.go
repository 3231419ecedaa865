// Package amount generates the unique payment amounts that let an incoming
// on-chain transfer be matched to exactly one pending order by value alone.
package amount

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FractionDigits is the precision of generated amounts. Explorer APIs report
// token values at this precision, so matching relies on it staying fixed.
const FractionDigits = 6

// maxFractionUnits bounds the random suffix to [0, 0.009900] in millionths,
// keeping the surcharge under 1% for any base of one unit or more.
const maxFractionUnits = 9901

type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator drawing from rng. Passing nil seeds a private
// source from the wall clock.
func New(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng}
}

// Unique perturbs base with a uniform random fraction and rounds to
// FractionDigits. The result is never below base.
func (g *Generator) Unique(base decimal.Decimal) decimal.Decimal {
	g.mu.Lock()
	units := g.rng.Intn(maxFractionUnits)
	g.mu.Unlock()

	// Round the base away from zero first so truncation can never push the
	// generated amount under the true price.
	rounded := base.RoundUp(FractionDigits)
	return rounded.Add(decimal.New(int64(units), -FractionDigits))
}
