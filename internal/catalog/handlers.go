package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// Handler exposes read-only product endpoints.
type Handler struct {
	Svc *Service
}

type productResponse struct {
	ID        uuid.UUID `json:"id"`
	StoreID   uuid.UUID `json:"storeId"`
	StoreName string    `json:"storeName"`
	Title     string    `json:"title"`
	Price     string    `json:"price"`
	Available bool      `json:"available"`
}

// ProductDetail returns a single product.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, r, common.Validation("BAD_REQUEST", err, "Product ID is invalid."))
		return
	}
	p, err := h.Svc.Product(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			err = common.NotFound("PRODUCT_NOT_FOUND", err, "Product not found.")
		}
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, productResponse{
		ID:        p.ID,
		StoreID:   p.StoreID,
		StoreName: p.StoreName,
		Title:     p.Title,
		Price:     money.Format(p.Price),
		Available: p.IsActive,
	})
}
