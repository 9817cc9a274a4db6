package cart

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/money"
	"github.com/noah-isme/marketplace-pricing/internal/pricing"
)

// AnonHeader carries the guest cart token for unauthenticated callers.
const AnonHeader = "X-Anon-ID"

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Currency string
}

type createPayload struct {
	AnonID string `json:"anonId" validate:"omitempty,max=64"`
}

type addItemPayload struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity"`
}

type updateItemPayload struct {
	Quantity int `json:"quantity"`
}

type promoPayload struct {
	Code string `json:"code"`
}

type itemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	StoreID   uuid.UUID `json:"storeId"`
	StoreName string    `json:"storeName"`
	Title     string    `json:"title"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unitPrice"`
	LineTotal string    `json:"lineTotal"`
}

type cartResponse struct {
	ID        uuid.UUID        `json:"id"`
	BuyerID   *uuid.UUID       `json:"buyerId"`
	AnonID    *string          `json:"anonId"`
	Version   int32            `json:"version"`
	PromoCode *string          `json:"promoCode"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Items     []itemResponse   `json:"items"`
	Quote     pricing.Response `json:"quote"`
}

// Create creates or returns a guest cart. Authenticated callers get their
// own cart, adopting the guest cart when one is presented.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &payload); err != nil {
			common.WriteError(w, r, err)
			return
		}
	}
	owner, err := ownerFromRequest(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if anon := strings.TrimSpace(payload.AnonID); anon != "" {
		owner.AnonID = anon
	}
	if owner.AnonID == "" && owner.BuyerID == uuid.Nil {
		owner.AnonID = uuid.NewString()
	}
	c, err := h.Svc.ResolveCart(r.Context(), owner)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	h.renderView(w, r, http.StatusCreated, owner, c.ID)
}

// Mine returns the caller's active cart, creating it when needed.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	c, err := h.Svc.ResolveCart(r.Context(), owner)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	h.renderView(w, r, http.StatusOK, owner, c.ID)
}

// Get returns cart contents and the current quote.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	h.renderView(w, r, http.StatusOK, owner, cartID)
}

// Quote returns only the pricing breakdown of the cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.View(r.Context(), owner, cartID)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, pricing.ToResponse(v.Quote, h.Currency))
}

// AddItem adds or increments a cart line item.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	var payload addItemPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, r, err)
		return
	}
	v, err := h.Svc.AddItem(r.Context(), owner, cartID, uuid.MustParse(payload.ProductID), payload.Quantity)
	h.respond(w, r, http.StatusOK, v, err)
}

// UpdateItem sets the quantity for a cart line item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemId", "Item ID is invalid.")
	if !ok {
		return
	}
	var payload updateItemPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, r, err)
		return
	}
	v, err := h.Svc.UpdateQuantity(r.Context(), owner, cartID, itemID, payload.Quantity)
	h.respond(w, r, http.StatusOK, v, err)
}

// RemoveItem deletes a cart item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemId", "Item ID is invalid.")
	if !ok {
		return
	}
	v, err := h.Svc.RemoveItem(r.Context(), owner, cartID, itemID)
	h.respond(w, r, http.StatusOK, v, err)
}

// Clear removes every item from the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Clear(r.Context(), owner, cartID)
	h.respond(w, r, http.StatusOK, v, err)
}

// ApplyPromo applies a promo code to the cart.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	var payload promoPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, r, err)
		return
	}
	v, err := h.Svc.ApplyPromo(r.Context(), owner, cartID, payload.Code)
	h.respond(w, r, http.StatusOK, v, err)
}

// RemovePromo removes the applied promo code from the cart.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	owner, cartID, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.RemovePromo(r.Context(), owner, cartID)
	h.respond(w, r, http.StatusOK, v, err)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (Owner, uuid.UUID, bool) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		common.WriteError(w, r, err)
		return Owner{}, uuid.Nil, false
	}
	cartID, ok := parseID(w, r, "id", "Cart ID is invalid.")
	return owner, cartID, ok
}

func (h *Handler) renderView(w http.ResponseWriter, r *http.Request, status int, owner Owner, cartID uuid.UUID) {
	v, err := h.Svc.View(r.Context(), owner, cartID)
	h.respond(w, r, status, v, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v View, err error) {
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, status, h.toResponse(v))
}

func (h *Handler) toResponse(v View) cartResponse {
	out := cartResponse{
		ID:        v.Cart.ID,
		BuyerID:   v.Cart.BuyerID,
		AnonID:    v.Cart.AnonID,
		Version:   v.Cart.Version,
		ExpiresAt: v.Cart.ExpiresAt,
		Items:     make([]itemResponse, 0, len(v.Items)),
		Quote:     pricing.ToResponse(v.Quote, h.Currency),
	}
	if v.Promo != nil {
		code := v.Promo.Code
		out.PromoCode = &code
	}
	for _, it := range v.Items {
		out.Items = append(out.Items, itemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			StoreID:   it.StoreID,
			StoreName: it.StoreName,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: money.Format(it.UnitPrice),
			LineTotal: money.Format(it.LineTotal()),
		})
	}
	return out
}

// ownerFromRequest reads the authenticated buyer and the guest cart token.
func ownerFromRequest(r *http.Request) (Owner, error) {
	var owner Owner
	if uid, ok := common.UserID(r.Context()); ok && strings.TrimSpace(uid) != "" {
		id, err := uuid.Parse(uid)
		if err != nil {
			return Owner{}, common.Validation("BUYER_ID_INVALID", err, "Buyer ID is invalid.")
		}
		owner.BuyerID = id
	}
	owner.AnonID = strings.TrimSpace(r.Header.Get(AnonHeader))
	if owner.AnonID == "" {
		owner.AnonID = strings.TrimSpace(r.URL.Query().Get("anonId"))
	}
	return owner, nil
}

func parseID(w http.ResponseWriter, r *http.Request, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		common.WriteError(w, r, common.Validation("BAD_REQUEST", err, msg))
		return uuid.Nil, false
	}
	return id, true
}
