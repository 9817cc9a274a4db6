// Package shipping quotes per-store shipping costs for a cart.
package shipping

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// Cost is the shipping charge for one store's part of an order.
type Cost struct {
	StoreID        uuid.UUID       `json:"storeId"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
	IsFreeShipping bool            `json:"isFreeShipping"`
}

// Amount is the chargeable cost: zero when shipping is free.
func (c Cost) Amount() decimal.Decimal {
	if c.IsFreeShipping {
		return decimal.Zero
	}
	return c.ShippingCost
}

// Request describes one store's shipment.
type Request struct {
	StoreID       uuid.UUID
	ItemsSubtotal decimal.Decimal
	ItemCount     int
}

// Quoter prices a single store shipment.
type Quoter interface {
	Quote(ctx context.Context, req Request) (Cost, error)
}

// FlatRate charges a fixed fee per store, waived at or above FreeThreshold.
// A zero threshold disables free shipping.
type FlatRate struct {
	Rate          decimal.Decimal
	FreeThreshold decimal.Decimal
}

// Quote implements Quoter.
func (f FlatRate) Quote(_ context.Context, req Request) (Cost, error) {
	cost := Cost{StoreID: req.StoreID, ShippingCost: money.Round2(f.Rate)}
	if f.FreeThreshold.IsPositive() && req.ItemsSubtotal.GreaterThanOrEqual(f.FreeThreshold) {
		cost.IsFreeShipping = true
		cost.ShippingCost = decimal.Zero
	}
	return cost, nil
}

// QuoteAll quotes every request concurrently and returns the costs keyed by
// store. The first failure cancels the remaining quotes.
func QuoteAll(ctx context.Context, q Quoter, reqs []Request) (map[uuid.UUID]Cost, error) {
	costs := make([]Cost, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, req := range reqs {
		g.Go(func() error {
			cost, err := q.Quote(gctx, req)
			if err != nil {
				return fmt.Errorf("quote shipping for store %s: %w", req.StoreID, err)
			}
			cost.StoreID = req.StoreID
			costs[i] = cost
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Cost, len(costs))
	for _, c := range costs {
		out[c.StoreID] = c
	}
	return out, nil
}
