package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/marketplace-pricing/internal/app"
	"github.com/noah-isme/marketplace-pricing/internal/auth"
	"github.com/noah-isme/marketplace-pricing/internal/cart"
	"github.com/noah-isme/marketplace-pricing/internal/catalog"
	"github.com/noah-isme/marketplace-pricing/internal/checkout"
	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/config"
	"github.com/noah-isme/marketplace-pricing/internal/db"
	"github.com/noah-isme/marketplace-pricing/internal/health"
	"github.com/noah-isme/marketplace-pricing/internal/lock"
	"github.com/noah-isme/marketplace-pricing/internal/obs"
	"github.com/noah-isme/marketplace-pricing/internal/payout"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
	"github.com/noah-isme/marketplace-pricing/internal/ratelimit"
	"github.com/noah-isme/marketplace-pricing/internal/resilience"
	"github.com/noah-isme/marketplace-pricing/internal/security"
)

const serviceName = "marketplace-pricing-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		if err := resilience.RegisterMetrics(nil); err != nil {
			logger.Error().Err(err).Msg("register breaker metrics")
		}
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, app.Tracing(cfg, serviceName))
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	}

	deps, err := app.Open(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	engine, err := app.PricingEngine(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure pricing engine")
	}
	quoter := app.ShippingQuoter(cfg, logger)

	taskRedis, err := app.TaskRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure task queue")
	}
	taskClient := asynq.NewClient(taskRedis)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	catalogSvc := &catalog.Service{
		Store:  catalog.PostgresStore{DB: deps.DB},
		Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Logger: logger,
	}
	catalogHandler := &catalog.Handler{Svc: catalogSvc}

	promoSvc := &promo.Service{Store: promo.NewPostgresStore(deps.DB)}
	promoHandler := &promo.Handler{Svc: promoSvc}

	cartSvc := &cart.Service{
		Store:    cart.PostgresStore{DB: deps.DB},
		Products: catalogSvc,
		Promos:   promoSvc,
		Shipping: quoter,
		Pricing:  engine,
		Lock:     lock.Locker{R: deps.Redis, Prefix: "lock", MaxWait: 2 * time.Second},
		LockTTL:  cfg.CartLockTTL,
		TTL:      cfg.CartTTL,
		Logger:   logger,
	}
	cartHandler := &cart.Handler{Svc: cartSvc, Currency: cfg.CurrencyCode}

	checkoutSvc := &checkout.Service{
		Unit:     checkout.PostgresUnit{DB: deps.DB},
		Carts:    cart.PostgresStore{DB: deps.DB},
		Shipping: quoter,
		Pricing:  engine,
		Payouts:  payout.AsynqEnqueuer{Client: taskClient, MaxRetry: cfg.PayoutMaxRetry},
		Currency: cfg.CurrencyCode,
		Logger:   logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	authMiddleware := auth.Middleware{Verifier: verifier}

	limiter, err := app.Limiter(cfg, deps.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure rate limiter")
	}
	promoLimit := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.KeyByBuyerOrIP("promo_apply"),
			Window: cfg.PromoApplyRateWindow,
			Max:    cfg.PromoApplyRateLimit,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limiter_unavailable") },
	}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	healthHandler := health.Handler{Checks: []health.Check{
		{Name: "db", Probe: deps.DB.Ping, Timeout: 500 * time.Millisecond},
		{Name: "redis", Probe: func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }, Timeout: 300 * time.Millisecond},
	}}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", cart.AnonHeader},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products/{id}", catalogHandler.ProductDetail)

		v.Route("/carts", func(c chi.Router) {
			c.Use(authMiddleware.Optional)
			c.Get("/me", cartHandler.Mine)
			c.Get("/{id}", cartHandler.Get)
			c.Post("/{id}/quote", cartHandler.Quote)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Patch("/{id}/items/{itemId}", cartHandler.UpdateItem)
				g.Delete("/{id}/items/{itemId}", cartHandler.RemoveItem)
				g.Delete("/{id}/items", cartHandler.Clear)
				g.With(promoLimit.Middleware).Post("/{id}/promo", cartHandler.ApplyPromo)
				g.Delete("/{id}/promo", cartHandler.RemovePromo)
			})
		})

		v.With(authMiddleware.RequireAuth, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Route("/admin/promo-codes", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(auth.RequireRole(auth.RoleAdmin))
			admin.Post("/", promoHandler.Create)
			admin.Post("/preview", promoHandler.Preview)
			admin.Get("/{code}", promoHandler.Get)
			admin.Put("/{code}", promoHandler.Update)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
