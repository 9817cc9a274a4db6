package promo

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// Handler exposes administrative promo code endpoints.
type Handler struct {
	Svc *Service
}

type definitionPayload struct {
	DiscountType       string           `json:"discountType" validate:"required,oneof=percentage fixed_amount"`
	DiscountValue      decimal.Decimal  `json:"discountValue"`
	Scope              string           `json:"scope" validate:"required,oneof=platform seller"`
	StoreID            *string          `json:"storeId" validate:"omitempty,uuid"`
	StartDate          *time.Time       `json:"startDate"`
	EndDate            *time.Time       `json:"endDate"`
	UsageLimit         *int32           `json:"usageLimit" validate:"omitempty,min=1"`
	MinimumOrderAmount *decimal.Decimal `json:"minimumOrderAmount"`
	MaxDiscountAmount  *decimal.Decimal `json:"maxDiscountAmount"`
	IsActive           *bool            `json:"isActive"`
}

type createPayload struct {
	Code string `json:"code" validate:"required,max=64"`
	definitionPayload
}

type previewPayload struct {
	Code  string        `json:"code" validate:"required"`
	Items []previewItem `json:"items" validate:"required,min=1,dive"`
}

type previewItem struct {
	StoreID  string          `json:"storeId" validate:"required,uuid"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type codeResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Code               string     `json:"code"`
	DiscountType       string     `json:"discountType"`
	DiscountValue      string     `json:"discountValue"`
	Scope              string     `json:"scope"`
	StoreID            *uuid.UUID `json:"storeId,omitempty"`
	StartDate          time.Time  `json:"startDate"`
	EndDate            *time.Time `json:"endDate,omitempty"`
	UsageCount         int32      `json:"usageCount"`
	UsageLimit         *int32     `json:"usageLimit,omitempty"`
	MinimumOrderAmount *string    `json:"minimumOrderAmount,omitempty"`
	MaxDiscountAmount  *string    `json:"maxDiscountAmount,omitempty"`
	IsActive           bool       `json:"isActive"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// EvaluationResponse is the wire form of an Evaluation.
type EvaluationResponse struct {
	Code             string     `json:"code"`
	Scope            string     `json:"scope"`
	StoreID          *uuid.UUID `json:"storeId,omitempty"`
	EligibleSubtotal string     `json:"eligibleSubtotal"`
	Discount         string     `json:"discount"`
}

// Create inserts a new promo code.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, r, err)
		return
	}
	in := payload.definitionPayload.input()
	in.Code = payload.Code
	created, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, toCodeResponse(created))
}

// Update replaces the definition of the code in the URL.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var payload definitionPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, r, err)
		return
	}
	updated, err := h.Svc.Update(r.Context(), chi.URLParam(r, "code"), payload.input())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, toCodeResponse(updated))
}

// Get returns a promo code by value.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, toCodeResponse(c))
}

// Preview evaluates a code against an ad-hoc item list.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var payload previewPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, r, err)
		return
	}
	items := make([]Item, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, Item{StoreID: uuid.MustParse(it.StoreID), Subtotal: it.Subtotal})
	}
	eval, err := h.Svc.Preview(r.Context(), payload.Code, items)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, ToEvaluationResponse(eval))
}

func (p definitionPayload) input() Input {
	in := Input{
		DiscountType:       DiscountType(p.DiscountType),
		DiscountValue:      p.DiscountValue,
		Scope:              Scope(p.Scope),
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		UsageLimit:         p.UsageLimit,
		MinimumOrderAmount: p.MinimumOrderAmount,
		MaxDiscountAmount:  p.MaxDiscountAmount,
		IsActive:           p.IsActive,
	}
	if p.StoreID != nil {
		id := uuid.MustParse(*p.StoreID)
		in.StoreID = &id
	}
	return in
}

func toCodeResponse(c Code) codeResponse {
	out := codeResponse{
		ID:            c.ID,
		Code:          c.Code,
		DiscountType:  string(c.DiscountType),
		DiscountValue: money.Format(c.DiscountValue),
		Scope:         string(c.Scope),
		StoreID:       c.StoreID,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		UsageCount:    c.UsageCount,
		UsageLimit:    c.UsageLimit,
		IsActive:      c.IsActive,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.MinimumOrderAmount != nil {
		v := money.Format(*c.MinimumOrderAmount)
		out.MinimumOrderAmount = &v
	}
	if c.MaxDiscountAmount != nil {
		v := money.Format(*c.MaxDiscountAmount)
		out.MaxDiscountAmount = &v
	}
	return out
}

// ToEvaluationResponse renders an evaluation with formatted amounts.
func ToEvaluationResponse(e Evaluation) EvaluationResponse {
	return EvaluationResponse{
		Code:             e.Code,
		Scope:            string(e.Scope),
		StoreID:          e.StoreID,
		EligibleSubtotal: money.Format(e.EligibleSubtotal),
		Discount:         money.Format(e.Discount),
	}
}
