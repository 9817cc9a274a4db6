package checkout

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/pricing"
)

// Handler exposes order placement over HTTP.
type Handler struct {
	Svc *Service
}

type placePayload struct {
	CartID string `json:"cartId" validate:"required,uuid"`
}

type placeResponse struct {
	OrderID   uuid.UUID        `json:"orderId"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	Quote     pricing.Response `json:"quote"`
}

// Checkout handles POST /checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	uid, ok := common.UserID(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required.", nil)
		return
	}
	buyerID, err := uuid.Parse(uid)
	if err != nil {
		common.WriteError(w, r, common.Validation("BUYER_ID_INVALID", err, "Buyer ID is invalid."))
		return
	}
	var payload placePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, r, err)
		return
	}
	cartID, err := uuid.Parse(payload.CartID)
	if err != nil {
		common.WriteError(w, r, common.Validation("BAD_REQUEST", err, "Cart ID is invalid."))
		return
	}
	res, err := h.Svc.Place(r.Context(), buyerID, cartID)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, placeResponse{
		OrderID:   res.Order.ID,
		Status:    res.Order.Status,
		CreatedAt: res.Order.CreatedAt,
		Quote:     pricing.ToResponse(res.Quote, res.Order.Currency),
	})
}
