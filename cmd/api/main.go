package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/creerlio/discovery/internal/adapters/http"
	"github.com/creerlio/discovery/internal/adapters/mapbox"
	natsadapter "github.com/creerlio/discovery/internal/adapters/nats"
	"github.com/creerlio/discovery/internal/adapters/postgres"
	"github.com/creerlio/discovery/internal/adapters/sqlite"
	"github.com/creerlio/discovery/internal/adapters/valkey"
	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
	"github.com/creerlio/discovery/internal/pkg/config"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("discovery-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{
		SuggestLimit: cfg.Geocode.SuggestLimit,
		Logger:       logger,
	}

	// Entity store
	var (
		entities ports.EntityRepository
		intents  ports.IntentRepository
	)
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("database: %v", err)
		}
		entities, intents = sqlite.NewEntityRepo(store), sqlite.NewIntentRepo(store)
		deps.DB = store
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		entities, intents = postgres.NewEntityRepo(db), postgres.NewIntentRepo(db)
		deps.DB = db
	}

	// Shared geocode cache
	var shared ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, "discovery:geocode:")
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		shared = cache
		deps.Cache = cache
	}

	// NATS
	var events ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer nc.Close()
		events = nc
		deps.Broker = nc
	}

	// Location provider
	if cfg.Mapbox.Token == "" {
		slog.Warn("mapbox token not set, location features unavailable")
	}
	provider := mapbox.New(mapbox.Config{
		Token:         cfg.Mapbox.Token,
		BaseURL:       cfg.Mapbox.BaseURL,
		Country:       cfg.Mapbox.Country,
		RatePerSecond: cfg.Mapbox.RatePerSecond,
		Timeout:       time.Duration(cfg.Mapbox.Timeout) * time.Second,
	}, nil, logger)

	// Use cases
	places := usecases.NewGeocodeCache(provider, shared, usecases.GeocodeCacheConfig{
		TTL:              cfg.Geocode.CacheTTL,
		SharedTTLSeconds: cfg.Geocode.SharedTTL,
		ShareNegative:    cfg.Geocode.NegativeShared,
	}, logger)
	search := usecases.NewSearchService(entities, intents, places, events, usecases.SearchConfig{
		Limit:              cfg.Search.Limit,
		GeocodeConcurrency: cfg.Search.GeocodeConcurrency,
	}, logger)

	deps.Search = search
	deps.Places = places
	deps.Reverse = provider
	deps.Planner = usecases.NewRoutePlanner(places, provider, provider)
	deps.Sessions = usecases.MapSessionDeps{
		Search:     search,
		Places:     places,
		Reverse:    provider,
		Directions: provider,
		Events:     events,
		Debounce:   cfg.Search.Debounce(),
		Route: usecases.RouteConfig{
			FitDelay: cfg.Route.FitDelay(),
			Padding: domain.Padding{
				Top:    cfg.Route.PaddingTop,
				Bottom: cfg.Route.PaddingBottom,
				Left:   cfg.Route.PaddingLeft,
				Right:  cfg.Route.PaddingRight,
			},
			MaxZoom: cfg.Route.MaxZoom,
		},
		Kind:     domain.KindTalent,
		RadiusKm: cfg.Search.DefaultRadiusKm,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Discovery API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, http.RouterConfig{
		RequestsPerMinute: 300,
		RequestTimeout:    time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
