package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketplace-pricing/internal/common"
)

func checkoutRequest(t *testing.T, f *fixture, buyer, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/checkout", (&Handler{Svc: f.svc}).Checkout)
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	if buyer != "" {
		req = req.WithContext(common.WithUserID(req.Context(), buyer))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestCheckoutHandlerPlacesOrder(t *testing.T) {
	f := newFixture()
	c := f.buyerCart(buyerOne)
	f.applyPromo(c, percentCode("SAVE10", "10"))

	rr := checkoutRequest(t, f, buyerOne.String(), `{"cartId":"`+c.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var body struct {
		Data struct {
			OrderID string `json:"orderId"`
			Status  string `json:"status"`
			Quote   struct {
				Total       string `json:"total"`
				Discount    string `json:"discount"`
				PromoCode   string `json:"promoCode"`
				Currency    string `json:"currency"`
				Commissions map[string]struct {
					NetPayout string `json:"netPayout"`
				} `json:"commissions"`
			} `json:"quote"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.OrderID)
	require.Equal(t, StatusPlaced, body.Data.Status)
	require.Equal(t, "104.50", body.Data.Quote.Total)
	require.Equal(t, "10.50", body.Data.Quote.Discount)
	require.Equal(t, "SAVE10", body.Data.Quote.PromoCode)
	require.Equal(t, "USD", body.Data.Quote.Currency)
	require.Equal(t, "58.50", body.Data.Quote.Commissions[storeA.String()].NetPayout)
}

func TestCheckoutHandlerErrors(t *testing.T) {
	f := newFixture()
	c := f.buyerCart(buyerOne)

	rr := checkoutRequest(t, f, "", `{"cartId":"`+c.ID.String()+`"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = checkoutRequest(t, f, buyerOne.String(), `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "cartId is required.")

	rr = checkoutRequest(t, f, buyerTwo.String(), `{"cartId":"`+c.ID.String()+`"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "CART_FORBIDDEN")
}
