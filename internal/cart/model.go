// Package cart owns buyer and guest carts: items, the applied promo code and
// the priced view of both.
package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/money"
	"github.com/noah-isme/marketplace-pricing/internal/pricing"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

var (
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound indicates the requested cart item could not be located.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrNotOwner is returned when the caller does not own the cart or item.
	ErrNotOwner = errors.New("cart belongs to another buyer")
	// ErrOwnerRequired is returned when neither a buyer nor a guest id is supplied.
	ErrOwnerRequired = errors.New("buyer id is required")
	// ErrProductRequired is returned for an empty product id.
	ErrProductRequired = errors.New("product id is required")
	// ErrInvalidQuantity is returned for quantities outside the allowed range.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrProductInactive is returned when adding a product that is not for sale.
	ErrProductInactive = errors.New("product is not active")
	// ErrEmptyCart is returned when a promo is applied to a cart without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPromoAlreadyApplied is returned when the cart already carries a promo.
	ErrPromoAlreadyApplied = errors.New("promo code already applied")
	// ErrBusy is returned when another writer holds the cart lock.
	ErrBusy = errors.New("cart is locked by another request")
)

// Owner identifies the caller: an authenticated buyer, a guest cart token, or
// both while a guest signs in.
type Owner struct {
	BuyerID uuid.UUID
	AnonID  string
}

// IsZero reports whether the owner carries no identity at all.
func (o Owner) IsZero() bool {
	return o.BuyerID == uuid.Nil && o.AnonID == ""
}

// Cart is a persisted cart header.
type Cart struct {
	ID                 uuid.UUID
	BuyerID            *uuid.UUID
	AnonID             *string
	AppliedPromoCodeID *uuid.UUID
	Version            int32
	ExpiresAt          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OwnedBy reports whether o may read or modify c. A buyer cart belongs to its
// buyer; a guest cart to whoever holds its anon id.
func (c Cart) OwnedBy(o Owner) bool {
	if c.BuyerID != nil {
		return o.BuyerID != uuid.Nil && *c.BuyerID == o.BuyerID
	}
	return c.AnonID != nil && o.AnonID != "" && *c.AnonID == o.AnonID
}

// Item is a cart line. UnitPrice, StoreName and Title are snapshots taken
// when the product was first added.
type Item struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	StoreID   uuid.UUID
	StoreName string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// LineTotal is unit price × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return money.LineTotal(i.UnitPrice, i.Quantity)
}

// View is a cart with its items, applied promo and current quote.
type View struct {
	Cart  Cart
	Items []Item
	Promo *promo.Code
	Quote pricing.Quote
}

// PricingItems converts cart lines into pricing input.
func PricingItems(items []Item) []pricing.Item {
	out := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Item{
			ProductID: it.ProductID,
			StoreID:   it.StoreID,
			StoreName: it.StoreName,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return out
}

// PromoItems converts cart lines into the promo rules' view of a cart.
func PromoItems(items []Item) []promo.Item {
	out := make([]promo.Item, 0, len(items))
	for _, it := range items {
		out = append(out, promo.Item{StoreID: it.StoreID, Subtotal: it.LineTotal()})
	}
	return out
}

// ShippingRequests builds one shipping request per store in items.
func ShippingRequests(items []Item) []shipping.Request {
	index := map[uuid.UUID]int{}
	var out []shipping.Request
	for _, it := range items {
		i, ok := index[it.StoreID]
		if !ok {
			i = len(out)
			index[it.StoreID] = i
			out = append(out, shipping.Request{StoreID: it.StoreID, ItemsSubtotal: decimal.Zero})
		}
		out[i].ItemsSubtotal = out[i].ItemsSubtotal.Add(it.LineTotal())
		out[i].ItemCount += it.Quantity
	}
	return out
}
