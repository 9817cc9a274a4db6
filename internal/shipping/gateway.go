package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/marketplace-pricing/internal/money"
	"github.com/noah-isme/marketplace-pricing/internal/resilience"
)

// ErrGatewayRejected is returned when the rate API answers with a non-200 status.
var ErrGatewayRejected = errors.New("shipping gateway rejected rate request")

// Gateway quotes rates from an external JSON rate API.
type Gateway struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	// Fallback answers while the breaker is open. Optional.
	Fallback Quoter
}

// GatewayConfig tunes the gateway client.
type GatewayConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Fallback    Quoter
	Logger      zerolog.Logger
}

type rateRequest struct {
	StoreID       string `json:"storeId"`
	ItemsSubtotal string `json:"itemsSubtotal"`
	ItemCount     int    `json:"itemCount"`
}

type rateResponse struct {
	ShippingCost decimal.Decimal `json:"shippingCost"`
	FreeShipping bool            `json:"freeShipping"`
}

// NewGateway builds a traced, retrying gateway client guarded by a breaker.
func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).
		WithTarget("shipping_gateway").
		WithLogger(cfg.Logger)
	return &Gateway{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: attempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		Fallback: cfg.Fallback,
	}
}

// Quote implements Quoter.
func (g *Gateway) Quote(ctx context.Context, req Request) (Cost, error) {
	payload, err := json.Marshal(rateRequest{
		StoreID:       req.StoreID.String(),
		ItemsSubtotal: money.Format(req.ItemsSubtotal),
		ItemCount:     req.ItemCount,
	})
	if err != nil {
		return Cost{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/rates", bytes.NewReader(payload))
	if err != nil {
		return Cost{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(ctx, httpReq)
	if err != nil {
		if g.Fallback != nil && errors.Is(err, resilience.ErrOpenCircuit) {
			return g.Fallback.Quote(ctx, req)
		}
		return Cost{}, fmt.Errorf("shipping gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Cost{}, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	}
	var out rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Cost{}, fmt.Errorf("decode shipping rate: %w", err)
	}
	cost := Cost{StoreID: req.StoreID, ShippingCost: money.Round2(out.ShippingCost), IsFreeShipping: out.FreeShipping}
	if cost.IsFreeShipping {
		cost.ShippingCost = decimal.Zero
	}
	return cost, nil
}
