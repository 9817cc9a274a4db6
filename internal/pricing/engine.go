// Package pricing assembles a cart quote: item subtotals, the promo discount
// distributed over stores, shipping and the per-store commission split.
package pricing

import (
	"bytes"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/commission"
	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/money"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

// ErrEmptyCart is returned when pricing is requested for a cart without items.
var ErrEmptyCart = errors.New("cart is empty")

var cent = decimal.New(1, -2)

// Item describes a line item used for pricing calculation.
type Item struct {
	ProductID uuid.UUID
	StoreID   uuid.UUID
	StoreName string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal returns unit price × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return money.LineTotal(i.UnitPrice, i.Quantity)
}

// Input is everything needed to price a cart.
type Input struct {
	Items    []Item
	Promo    *promo.Code
	Shipping map[uuid.UUID]shipping.Cost
	AsOf     time.Time
}

// StoreSummary is one store's share of the quote.
type StoreSummary struct {
	StoreID       uuid.UUID
	StoreName     string
	ItemCount     int
	ItemsSubtotal decimal.Decimal
	Discount      decimal.Decimal
	Shipping      decimal.Decimal
	FreeShipping  bool
	Total         decimal.Decimal
}

// Quote aggregates computed pricing components.
type Quote struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Shipping     decimal.Decimal
	Total        decimal.Decimal
	Promo        *promo.Evaluation
	PromoWarning string
	Stores       []StoreSummary
	Commissions  map[uuid.UUID]commission.Result
}

// Engine prices carts with a fixed commission calculator.
type Engine struct {
	Commission commission.Calculator
}

// NewEngine constructs an engine.
func NewEngine(calc commission.Calculator) Engine {
	return Engine{Commission: calc}
}

// Quote prices in for display. An applied promo that no longer evaluates is
// dropped from the totals and reported in PromoWarning.
func (e Engine) Quote(in Input) Quote {
	q, _ := e.compute(in, false)
	return q
}

// Settle prices in for order placement. An empty cart or a promo that no
// longer evaluates is an error; promo failures carry the promo sentinel.
func (e Engine) Settle(in Input) (Quote, error) {
	if len(in.Items) == 0 {
		return Quote{}, ErrEmptyCart
	}
	return e.compute(in, true)
}

func (e Engine) compute(in Input, strict bool) (Quote, error) {
	stores, linesByStore := groupByStore(in.Items)

	q := Quote{
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Shipping: decimal.Zero,
	}
	subtotals := make(map[uuid.UUID]decimal.Decimal, len(stores))
	for _, s := range stores {
		q.Subtotal = q.Subtotal.Add(s.ItemsSubtotal)
		subtotals[s.StoreID] = s.ItemsSubtotal
	}

	var shares map[uuid.UUID]decimal.Decimal
	if in.Promo != nil && len(in.Items) > 0 {
		eval, err := in.Promo.Evaluate(in.AsOf, promoItems(in.Items))
		switch {
		case err == nil:
			q.Promo = &eval
			q.Discount = eval.Discount
			shares = allocate(eval, subtotals)
		case strict:
			return Quote{}, err
		default:
			if msgs := common.Messages(promo.Failure(err, in.Promo)); len(msgs) > 0 {
				q.PromoWarning = msgs[0]
			}
		}
	}

	for i := range stores {
		s := &stores[i]
		s.Discount = decimal.Zero
		if share, ok := shares[s.StoreID]; ok {
			s.Discount = share
		}
		if cost, ok := in.Shipping[s.StoreID]; ok {
			s.Shipping = cost.Amount()
			s.FreeShipping = cost.IsFreeShipping
		}
		s.Total = s.ItemsSubtotal.Sub(s.Discount).Add(s.Shipping)
		q.Shipping = q.Shipping.Add(s.Shipping)
	}
	q.Stores = stores
	q.Total = q.Subtotal.Sub(q.Discount).Add(q.Shipping)
	q.Commissions = e.Commission.Calculate(linesByStore, in.Shipping)
	return q, nil
}

func groupByStore(items []Item) ([]StoreSummary, map[uuid.UUID][]commission.Line) {
	index := map[uuid.UUID]int{}
	var stores []StoreSummary
	lines := map[uuid.UUID][]commission.Line{}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		i, ok := index[it.StoreID]
		if !ok {
			i = len(stores)
			index[it.StoreID] = i
			stores = append(stores, StoreSummary{
				StoreID:       it.StoreID,
				StoreName:     it.StoreName,
				ItemsSubtotal: decimal.Zero,
				Shipping:      decimal.Zero,
			})
		}
		stores[i].ItemCount += it.Quantity
		stores[i].ItemsSubtotal = stores[i].ItemsSubtotal.Add(it.LineTotal())
		lines[it.StoreID] = append(lines[it.StoreID], commission.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	slices.SortStableFunc(stores, func(a, b StoreSummary) int {
		if a.StoreName != b.StoreName {
			if a.StoreName < b.StoreName {
				return -1
			}
			return 1
		}
		return bytes.Compare(a.StoreID[:], b.StoreID[:])
	})
	return stores, lines
}

func promoItems(items []Item) []promo.Item {
	out := make([]promo.Item, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		out = append(out, promo.Item{StoreID: it.StoreID, Subtotal: it.LineTotal()})
	}
	return out
}

// allocate assigns the discount to stores: all of it to the targeted store for
// seller codes, proportionally for platform codes.
func allocate(eval promo.Evaluation, subtotals map[uuid.UUID]decimal.Decimal) map[uuid.UUID]decimal.Decimal {
	if eval.Scope == promo.ScopeSeller && eval.StoreID != nil {
		return map[uuid.UUID]decimal.Decimal{*eval.StoreID: eval.Discount}
	}
	return SplitDiscount(eval.Discount, subtotals)
}

// SplitDiscount spreads discount over stores in proportion to their
// subtotals. Every share is rounded down to cents and the leftover cents go
// one at a time to the largest fractional remainders, ties broken by larger
// subtotal and then store id. Shares never exceed a store's subtotal and
// always sum to the cent-rounded discount.
func SplitDiscount(discount decimal.Decimal, subtotals map[uuid.UUID]decimal.Decimal) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(subtotals))
	total := decimal.Zero
	ids := make([]uuid.UUID, 0, len(subtotals))
	for id, sub := range subtotals {
		if !sub.IsPositive() {
			continue
		}
		ids = append(ids, id)
		total = total.Add(sub)
	}
	discount = money.Round2(discount)
	if len(ids) == 0 || !discount.IsPositive() {
		return out
	}

	remainders := make(map[uuid.UUID]decimal.Decimal, len(ids))
	assigned := decimal.Zero
	for _, id := range ids {
		exact := discount.Mul(subtotals[id]).Div(total)
		base := exact.RoundDown(2)
		out[id] = base
		remainders[id] = exact.Sub(base)
		assigned = assigned.Add(base)
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		if c := remainders[b].Cmp(remainders[a]); c != 0 {
			return c
		}
		if c := subtotals[b].Cmp(subtotals[a]); c != 0 {
			return c
		}
		return bytes.Compare(a[:], b[:])
	})
	leftover := discount.Sub(assigned).Div(cent).IntPart()
	for i := 0; i < int(leftover) && i < len(ids); i++ {
		out[ids[i]] = out[ids[i]].Add(cent)
	}
	return out
}
