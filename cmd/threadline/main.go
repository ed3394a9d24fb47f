package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storefront-labs/threadline/pkg/api"
	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/catalog"
	"github.com/storefront-labs/threadline/pkg/config"
	"github.com/storefront-labs/threadline/pkg/middleware"
	"github.com/storefront-labs/threadline/pkg/observability"
	"github.com/storefront-labs/threadline/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger("info", os.Stderr).WithError(err).Fatal("Failed to load configuration")
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	store, err := postgres.New(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	if err := store.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	log.Info("PostgreSQL storage initialized")

	objects, err := postgres.NewS3Client(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize object store")
	}
	log.WithField("bucket", cfg.Storage.S3Bucket).Info("Object store initialized")

	var (
		catStore    catalog.Store = store
		cached      *postgres.CachedStore
		redisClient *redis.Client
	)
	if cfg.Storage.CacheEnabled {
		cached, err = postgres.NewCachedStore(store, cfg.Storage, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize product cache")
		}
		catStore = cached
		redisClient = cached.Redis()
		log.Info("Product cache initialized")
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize token service")
	}

	authSvc := auth.NewService(store, tokens, log)
	catSvc := catalog.NewService(catStore, objects, log)
	gate := middleware.NewAccessGate(tokens, store)

	server := api.NewServer(authSvc, catSvc, gate, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Observability.MetricsEnabled {
		metrics := observability.NewMetrics(registry)
		server.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	var handler http.Handler = server
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "threadline-api")
	}

	mainServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(store.DB(), redisClient, objects))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	go func() {
		log.WithField("addr", healthServer.Addr).Info("Starting health/metrics server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Health server failed")
		}
	}()

	go func() {
		log.WithField("addr", mainServer.Addr).Info("Starting API server")
		if err := mainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	sm := observability.NewShutdownManager(log, mainServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(healthServer.Shutdown)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, log)
	})
	if cached != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return cached.Close()
		})
	}
	sm.RegisterShutdownFunc(func(context.Context) error {
		return store.Close()
	})

	if err := sm.WaitForShutdown(); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
