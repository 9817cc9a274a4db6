// Package commission splits each store's gross receipts into the platform
// commission and the seller's net payout.
package commission

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/money"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

// DefaultRate is the platform commission when none is configured.
var DefaultRate = decimal.RequireFromString("0.10")

// ErrInvalidRate is returned for rates outside [0, 1].
var ErrInvalidRate = errors.New("commission rate must be between 0 and 1")

// Line is one priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Result is the commission breakdown for one store.
type Result struct {
	StoreID          uuid.UUID       `json:"storeId"`
	GrossAmount      decimal.Decimal `json:"grossAmount"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	NetPayout        decimal.Decimal `json:"netPayout"`
}

// Calculator applies a single platform-wide rate.
type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator validates rate and returns a calculator.
func NewCalculator(rate decimal.Decimal) (Calculator, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Calculator{}, fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	return Calculator{rate: rate}, nil
}

// Default returns a calculator at DefaultRate.
func Default() Calculator {
	return Calculator{rate: DefaultRate}
}

// Rate returns the configured rate.
func (c Calculator) Rate() decimal.Decimal {
	return c.rate
}

// ForStore computes the breakdown from a store's item subtotal and chargeable
// shipping.
func (c Calculator) ForStore(storeID uuid.UUID, itemsSubtotal, shippingCost decimal.Decimal) Result {
	gross := money.Round2(itemsSubtotal.Add(shippingCost))
	commission := money.Round2(gross.Mul(c.rate))
	return Result{
		StoreID:          storeID,
		GrossAmount:      gross,
		CommissionRate:   c.rate,
		CommissionAmount: commission,
		NetPayout:        money.Round2(gross.Sub(commission)),
	}
}

// Calculate computes one Result per store that has at least one line.
// Shipping absent from shippingByStore, or flagged free, counts as zero.
func (c Calculator) Calculate(itemsByStore map[uuid.UUID][]Line, shippingByStore map[uuid.UUID]shipping.Cost) map[uuid.UUID]Result {
	out := make(map[uuid.UUID]Result, len(itemsByStore))
	for storeID, lines := range itemsByStore {
		if len(lines) == 0 {
			continue
		}
		subtotal := decimal.Zero
		for _, l := range lines {
			subtotal = subtotal.Add(money.LineTotal(l.UnitPrice, l.Quantity))
		}
		shippingCost := decimal.Zero
		if cost, ok := shippingByStore[storeID]; ok {
			shippingCost = cost.Amount()
		}
		out[storeID] = c.ForStore(storeID, subtotal, shippingCost)
	}
	return out
}
