package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("sentinel")

func TestKindFlags(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Unauthorized("CART_FORBIDDEN", errSentinel, "nope"))
	require.True(t, IsNotAuthorized(err))
	require.False(t, IsNotFound(err))
	require.ErrorIs(t, err, errSentinel)
	require.Equal(t, KindInternal, KindOf(errors.New("plain")))
	require.False(t, IsNotAuthorized(nil))
}

func TestWriteErrorMapsKind(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rr, req, Conflict("PROMO_ALREADY_APPLIED", errSentinel, "A promo code is already applied to this cart."))

	require.Equal(t, http.StatusConflict, rr.Code)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Messages []string `json:"messages"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "PROMO_ALREADY_APPLIED", body.Error.Code)
	require.Equal(t, []string{"A promo code is already applied to this cart."}, body.Error.Details.Messages)
}

func TestWriteErrorHidesInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pg: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}
