package promo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newRouter(svc *Service) http.Handler {
	h := &Handler{Svc: svc}
	r := chi.NewRouter()
	r.Post("/admin/promo-codes", h.Create)
	r.Put("/admin/promo-codes/{code}", h.Update)
	r.Get("/admin/promo-codes/{code}", h.Get)
	r.Post("/admin/promo-codes/preview", h.Preview)
	return r
}

func TestHandlerCreateAndGet(t *testing.T) {
	router := newRouter(&Service{Store: newMemStore(), Now: fixedNow})

	body := `{"code":"summer20","discountType":"percentage","discountValue":"20","scope":"platform","maxDiscountAmount":"50"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/promo-codes", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/promo-codes/SUMMER20", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data codeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "SUMMER20", resp.Data.Code)
	require.Equal(t, "20.00", resp.Data.DiscountValue)
	require.Equal(t, "50.00", *resp.Data.MaxDiscountAmount)
}

func TestHandlerCreateRejectsBadScope(t *testing.T) {
	router := newRouter(&Service{Store: newMemStore(), Now: fixedNow})
	body := `{"code":"x","discountType":"percentage","discountValue":"5","scope":"global"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/promo-codes", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "scope must be one of")
}

func TestHandlerPreviewMinimumOrder(t *testing.T) {
	c := activeCode()
	c.MinimumOrderAmount = ptr(d("200"))
	store := newMemStore(c)
	router := newRouter(&Service{Store: store, Now: fixedNow})

	body := `{"code":"save10","items":[{"storeId":"` + storeA.String() + `","subtotal":"150"}]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/promo-codes/preview", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Minimum order amount of 200.00 is required to use this promo code.")

	_, err := store.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
}
