package pricing

import (
	"github.com/google/uuid"

	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// StoreResponse is one store's line in a rendered quote.
type StoreResponse struct {
	StoreID       uuid.UUID `json:"storeId"`
	StoreName     string    `json:"storeName"`
	ItemCount     int       `json:"itemCount"`
	ItemsSubtotal string    `json:"itemsSubtotal"`
	Discount      string    `json:"discount"`
	Shipping      string    `json:"shipping"`
	FreeShipping  bool      `json:"freeShipping"`
	Total         string    `json:"total"`
}

// CommissionResponse renders a commission.Result.
type CommissionResponse struct {
	StoreID          uuid.UUID `json:"storeId"`
	GrossAmount      string    `json:"grossAmount"`
	CommissionRate   string    `json:"commissionRate"`
	CommissionAmount string    `json:"commissionAmount"`
	NetPayout        string    `json:"netPayout"`
}

// Response is the JSON form of a Quote. Amounts are fixed two-place strings.
type Response struct {
	Subtotal      string                        `json:"subtotal"`
	Discount      string                        `json:"discount"`
	DiscountScope *string                       `json:"discountScope"`
	PromoCode     *string                       `json:"promoCode"`
	PromoWarning  string                        `json:"promoWarning,omitempty"`
	Shipping      string                        `json:"shipping"`
	Total         string                        `json:"total"`
	Currency      string                        `json:"currency,omitempty"`
	Stores        []StoreResponse               `json:"stores"`
	Commissions   map[string]CommissionResponse `json:"commissions"`
}

// ToResponse renders q. The discount scope is "platform" or the targeted
// store id, and null when no discount applies.
func ToResponse(q Quote, currency string) Response {
	out := Response{
		Subtotal:     money.Format(q.Subtotal),
		Discount:     money.Format(q.Discount),
		PromoWarning: q.PromoWarning,
		Shipping:     money.Format(q.Shipping),
		Total:        money.Format(q.Total),
		Currency:     currency,
		Stores:       make([]StoreResponse, 0, len(q.Stores)),
		Commissions:  make(map[string]CommissionResponse, len(q.Commissions)),
	}
	if q.Promo != nil {
		code := q.Promo.Code
		out.PromoCode = &code
		scope := string(q.Promo.Scope)
		if q.Promo.StoreID != nil {
			scope = q.Promo.StoreID.String()
		}
		out.DiscountScope = &scope
	}
	for _, s := range q.Stores {
		out.Stores = append(out.Stores, StoreResponse{
			StoreID:       s.StoreID,
			StoreName:     s.StoreName,
			ItemCount:     s.ItemCount,
			ItemsSubtotal: money.Format(s.ItemsSubtotal),
			Discount:      money.Format(s.Discount),
			Shipping:      money.Format(s.Shipping),
			FreeShipping:  s.FreeShipping,
			Total:         money.Format(s.Total),
		})
	}
	for id, c := range q.Commissions {
		out.Commissions[id.String()] = CommissionResponse{
			StoreID:          c.StoreID,
			GrossAmount:      money.Format(c.GrossAmount),
			CommissionRate:   c.CommissionRate.String(),
			CommissionAmount: money.Format(c.CommissionAmount),
			NetPayout:        money.Format(c.NetPayout),
		}
	}
	return out
}
