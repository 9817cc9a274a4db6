package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketplace-pricing/internal/commission"
	"github.com/noah-isme/marketplace-pricing/internal/money"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

var (
	storeA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	storeB = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	storeC = uuid.MustParse("cccccccc-0000-0000-0000-000000000003")
	asOf   = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return money.MustParse(s) }

func item(store uuid.UUID, name, price string, qty int) Item {
	return Item{ProductID: uuid.New(), StoreID: store, StoreName: name, UnitPrice: d(price), Quantity: qty}
}

func code(scope promo.Scope, typ promo.DiscountType, value string) *promo.Code {
	return &promo.Code{
		Code:          "TEST",
		DiscountType:  typ,
		DiscountValue: d(value),
		Scope:         scope,
		StartDate:     asOf.Add(-time.Hour),
		IsActive:      true,
	}
}

func TestQuoteWithoutPromo(t *testing.T) {
	e := NewEngine(commission.Default())
	q := e.Quote(Input{
		Items: []Item{item(storeA, "Alpha", "100.00", 1)},
		Shipping: map[uuid.UUID]shipping.Cost{
			storeA: {StoreID: storeA, ShippingCost: d("10.00")},
		},
		AsOf: asOf,
	})
	require.Equal(t, "100.00", money.Format(q.Subtotal))
	require.Equal(t, "10.00", money.Format(q.Shipping))
	require.Equal(t, "110.00", money.Format(q.Total))
	require.Nil(t, q.Promo)
	c := q.Commissions[storeA]
	require.Equal(t, "11.00", money.Format(c.CommissionAmount))
	require.Equal(t, "99.00", money.Format(c.NetPayout))
}

func TestQuoteSellerPromoOnlyReducesTargetStore(t *testing.T) {
	c := code(promo.ScopeSeller, promo.Percentage, "10")
	c.StoreID = &storeA
	q := NewEngine(commission.Default()).Quote(Input{
		Items: []Item{
			item(storeA, "Alpha", "100.00", 1),
			item(storeB, "Beta", "50.00", 1),
		},
		Promo: c,
		AsOf:  asOf,
	})
	require.Equal(t, "10.00", money.Format(q.Discount))
	require.Equal(t, "140.00", money.Format(q.Total))
	require.Len(t, q.Stores, 2)
	require.Equal(t, storeA, q.Stores[0].StoreID)
	require.Equal(t, "10.00", money.Format(q.Stores[0].Discount))
	require.Equal(t, "90.00", money.Format(q.Stores[0].Total))
	require.True(t, q.Stores[1].Discount.IsZero())
	// commission is computed on gross receipts
	require.Equal(t, "10.00", money.Format(q.Commissions[storeA].CommissionAmount))
}

func TestQuotePlatformPromoSpreadsProportionally(t *testing.T) {
	c := code(promo.ScopePlatform, promo.FixedAmount, "10")
	q := NewEngine(commission.Default()).Quote(Input{
		Items: []Item{
			item(storeA, "Alpha", "10.00", 1),
			item(storeB, "Beta", "10.00", 1),
			item(storeC, "Gamma", "10.00", 1),
		},
		Promo: c,
		AsOf:  asOf,
	})
	require.Equal(t, "10.00", money.Format(q.Discount))
	sum := decimal.Zero
	for _, s := range q.Stores {
		sum = sum.Add(s.Discount)
	}
	require.True(t, sum.Equal(q.Discount), "shares %s must sum to discount", sum)
	require.Equal(t, "20.00", money.Format(q.Total))
}

func TestSplitDiscountLeftoverCentGoesToLargestRemainder(t *testing.T) {
	shares := SplitDiscount(d("10.00"), map[uuid.UUID]decimal.Decimal{
		storeA: d("33.33"),
		storeB: d("33.33"),
		storeC: d("33.34"),
	})
	require.Equal(t, "3.33", money.Format(shares[storeA]))
	require.Equal(t, "3.33", money.Format(shares[storeB]))
	require.Equal(t, "3.34", money.Format(shares[storeC]))
}

func TestSplitDiscountSmallAmountOverManyStores(t *testing.T) {
	subtotals := map[uuid.UUID]decimal.Decimal{}
	for range 10 {
		subtotals[uuid.New()] = d("1.00")
	}
	shares := SplitDiscount(d("0.05"), subtotals)
	require.Len(t, shares, 10)

	sum := decimal.Zero
	cents := 0
	for id, share := range shares {
		require.False(t, share.IsNegative(), "share %s is negative", share)
		require.True(t, share.LessThanOrEqual(subtotals[id]), "share %s exceeds subtotal", share)
		if share.Equal(d("0.01")) {
			cents++
		} else {
			require.True(t, share.IsZero(), "unexpected share %s", share)
		}
		sum = sum.Add(share)
	}
	require.Equal(t, "0.05", money.Format(sum))
	require.Equal(t, 5, cents)
}

func TestSplitDiscountTiesFavourLargerSubtotal(t *testing.T) {
	shares := SplitDiscount(d("0.02"), map[uuid.UUID]decimal.Decimal{
		storeA: d("1.00"),
		storeB: d("3.00"),
	})
	require.Equal(t, "0.00", money.Format(shares[storeA]))
	require.Equal(t, "0.02", money.Format(shares[storeB]))
}

func TestSplitDiscountZero(t *testing.T) {
	require.Empty(t, SplitDiscount(decimal.Zero, map[uuid.UUID]decimal.Decimal{storeA: d("1")}))
	require.Empty(t, SplitDiscount(d("1"), nil))
}

func TestQuoteDropsInvalidPromoWithWarning(t *testing.T) {
	c := code(promo.ScopePlatform, promo.Percentage, "10")
	minimum := d("200")
	c.MinimumOrderAmount = &minimum
	q := NewEngine(commission.Default()).Quote(Input{
		Items: []Item{item(storeA, "Alpha", "50.00", 2)},
		Promo: c,
		AsOf:  asOf,
	})
	require.True(t, q.Discount.IsZero())
	require.Equal(t, "Minimum order amount of 200.00 is required to use this promo code.", q.PromoWarning)
	require.Equal(t, "100.00", money.Format(q.Total))
}

func TestSettleRejectsInvalidPromo(t *testing.T) {
	c := code(promo.ScopePlatform, promo.Percentage, "10")
	end := asOf.Add(-time.Minute)
	c.EndDate = &end
	_, err := NewEngine(commission.Default()).Settle(Input{
		Items: []Item{item(storeA, "Alpha", "50.00", 1)},
		Promo: c,
		AsOf:  asOf,
	})
	require.ErrorIs(t, err, promo.ErrExpired)
}

func TestSettleRejectsEmptyCart(t *testing.T) {
	_, err := NewEngine(commission.Default()).Settle(Input{AsOf: asOf})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestQuoteMultiStoreShipping(t *testing.T) {
	q := NewEngine(commission.Default()).Quote(Input{
		Items: []Item{
			item(storeA, "Alpha", "50.00", 2),
			item(storeB, "Beta", "25.00", 3),
		},
		Shipping: map[uuid.UUID]shipping.Cost{
			storeA: {StoreID: storeA, ShippingCost: d("5.00")},
			storeB: {StoreID: storeB, ShippingCost: d("0"), IsFreeShipping: true},
		},
		AsOf: asOf,
	})
	require.Equal(t, "175.00", money.Format(q.Subtotal))
	require.Equal(t, "5.00", money.Format(q.Shipping))
	require.Equal(t, "180.00", money.Format(q.Total))
	require.True(t, q.Stores[1].FreeShipping)
	require.Equal(t, "10.50", money.Format(q.Commissions[storeA].CommissionAmount))
	require.Equal(t, "7.50", money.Format(q.Commissions[storeB].CommissionAmount))
}

func TestToResponseRendersSellerScope(t *testing.T) {
	c := code(promo.ScopeSeller, promo.Percentage, "10")
	c.StoreID = &storeA
	q := NewEngine(commission.Default()).Quote(Input{
		Items: []Item{item(storeA, "Alpha", "100.00", 1), item(storeB, "Beta", "50.00", 1)},
		Promo: c,
		AsOf:  asOf,
	})

	resp := ToResponse(q, "USD")
	require.Equal(t, "150.00", resp.Subtotal)
	require.Equal(t, "10.00", resp.Discount)
	require.Equal(t, "140.00", resp.Total)
	require.NotNil(t, resp.DiscountScope)
	require.Equal(t, storeA.String(), *resp.DiscountScope)
	require.Equal(t, "TEST", *resp.PromoCode)
	require.Len(t, resp.Stores, 2)
	require.Equal(t, "10.00", resp.Commissions[storeA.String()].CommissionAmount)
	require.Equal(t, "45.00", resp.Commissions[storeB.String()].NetPayout)
}

func TestToResponseWithoutPromoHasNullScope(t *testing.T) {
	q := NewEngine(commission.Default()).Quote(Input{Items: []Item{item(storeA, "Alpha", "5.00", 2)}, AsOf: asOf})
	resp := ToResponse(q, "")
	require.Nil(t, resp.DiscountScope)
	require.Nil(t, resp.PromoCode)
	require.Equal(t, "10.00", resp.Total)
}
