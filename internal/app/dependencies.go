// Package app opens the infrastructure shared by the API and the worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/marketplace-pricing/internal/commission"
	"github.com/noah-isme/marketplace-pricing/internal/config"
	"github.com/noah-isme/marketplace-pricing/internal/db"
	"github.com/noah-isme/marketplace-pricing/internal/obs"
	"github.com/noah-isme/marketplace-pricing/internal/pricing"
	"github.com/noah-isme/marketplace-pricing/internal/ratelimit"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

// Dependencies holds connections shared across modules.
type Dependencies struct {
	DB            *pgxpool.Pool
	Redis         *redis.Client
	MeterProvider metric.MeterProvider
	Logger        zerolog.Logger
}

// Open connects to Postgres and Redis and instruments both for tracing.
func Open(ctx context.Context, cfg *config.Config, name string, logger zerolog.Logger) (*Dependencies, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, db.PoolConfig{URL: cfg.DatabaseURL, ApplicationName: name})
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	meterProvider := otel.GetMeterProvider()
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client, redisotel.WithMeterProvider(meterProvider)); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Dependencies{DB: pool, Redis: client, MeterProvider: meterProvider, Logger: logger}, nil
}

// Close releases connections.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// TaskRedis derives the asynq connection from the Redis URL.
func TaskRedis(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri for tasks: %w", err)
	}
	return opt, nil
}

// PricingEngine builds the engine with the configured commission rate.
func PricingEngine(cfg *config.Config) (pricing.Engine, error) {
	calc, err := commission.NewCalculator(cfg.CommissionRate)
	if err != nil {
		return pricing.Engine{}, err
	}
	return pricing.NewEngine(calc), nil
}

// ShippingQuoter selects the shipping provider. The gateway falls back to the
// flat rate while its breaker is open.
func ShippingQuoter(cfg *config.Config, logger zerolog.Logger) shipping.Quoter {
	flat := shipping.FlatRate{Rate: cfg.ShippingFlatRate, FreeThreshold: cfg.ShippingFreeThreshold}
	if cfg.ShippingProvider != "gateway" || cfg.ShippingGatewayURL == "" {
		return flat
	}
	return shipping.NewGateway(shipping.GatewayConfig{
		BaseURL:  cfg.ShippingGatewayURL,
		Timeout:  cfg.ShippingTimeout,
		Fallback: flat,
		Logger:   logger,
	})
}

// Limiter selects the rate limit backend.
func Limiter(cfg *config.Config, client *redis.Client) (ratelimit.Limiter, error) {
	switch cfg.RateLimitBackend {
	case "store", "ulule":
		return ratelimit.NewRedisStoreLimiter(client, "ratelimit")
	default:
		return ratelimit.SlidingWindow{Client: client, Prefix: "ratelimit:"}, nil
	}
}

// Tracing maps observability config onto the tracer settings.
func Tracing(cfg *config.Config, service string) obs.TracingConfig {
	return obs.TracingConfig{
		ServiceName:   service,
		Endpoint:      cfg.Obs.OTLPEndpoint,
		Exporter:      cfg.Obs.TracingExporter,
		SamplingRatio: cfg.Obs.SamplingRatio,
		Environment:   cfg.AppEnv,
	}
}
