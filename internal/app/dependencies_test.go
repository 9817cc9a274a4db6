package app

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketplace-pricing/internal/config"
	"github.com/noah-isme/marketplace-pricing/internal/ratelimit"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                "test",
		RedisURL:              "redis://localhost:6379/2",
		CommissionRate:        decimal.RequireFromString("0.15"),
		ShippingProvider:      "flat",
		ShippingFlatRate:      decimal.RequireFromString("4.00"),
		ShippingFreeThreshold: decimal.RequireFromString("50.00"),
	}
}

func TestPricingEngineUsesConfiguredRate(t *testing.T) {
	engine, err := PricingEngine(testConfig())
	require.NoError(t, err)
	require.Equal(t, "0.15", engine.Commission.Rate().String())

	cfg := testConfig()
	cfg.CommissionRate = decimal.RequireFromString("2")
	_, err = PricingEngine(cfg)
	require.Error(t, err)
}

func TestShippingQuoterSelection(t *testing.T) {
	cfg := testConfig()
	q := ShippingQuoter(cfg, zerolog.Nop())
	cost, err := q.Quote(context.Background(), shipping.Request{StoreID: uuid.New(), ItemsSubtotal: decimal.RequireFromString("10")})
	require.NoError(t, err)
	require.Equal(t, "4.00", cost.ShippingCost.StringFixed(2))

	cfg.ShippingProvider = "gateway"
	cfg.ShippingGatewayURL = "http://rates.internal"
	_, ok := ShippingQuoter(cfg, zerolog.Nop()).(*shipping.Gateway)
	require.True(t, ok)
}

func TestLimiterSelection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.RateLimitBackend = "sliding"
	l, err := Limiter(cfg, client)
	require.NoError(t, err)
	require.IsType(t, ratelimit.SlidingWindow{}, l)
}

func TestTaskRedis(t *testing.T) {
	opt, err := TaskRedis(testConfig())
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	require.Equal(t, "localhost:6379", client.Addr)
	require.Equal(t, 2, client.DB)
}
