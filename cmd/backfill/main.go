package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

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
	"github.com/creerlio/discovery/internal/workflows"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: backfill <worker|start [page-size]>")
	}

	cfg, err := config.Load("discovery-backfill")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	switch os.Args[1] {
	case "worker":
		runWorker(cfg, c)
	case "start":
		startBackfill(cfg, c)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// runWorker executes backfill activities and persists coordinates that the
// API publishes on the geocoded subjects.
func runWorker(cfg *config.Config, c client.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entities, closeStore := openEntities(ctx, cfg)
	defer closeStore()

	var shared ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr, "discovery:geocode:"); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		shared = cache
	}

	provider := mapbox.New(mapbox.Config{
		Token:         cfg.Mapbox.Token,
		BaseURL:       cfg.Mapbox.BaseURL,
		Country:       cfg.Mapbox.Country,
		RatePerSecond: cfg.Mapbox.RatePerSecond,
		Timeout:       time.Duration(cfg.Mapbox.Timeout) * time.Second,
	}, nil, slog.Default())
	places := usecases.NewGeocodeCache(provider, shared, usecases.GeocodeCacheConfig{
		TTL:              cfg.Geocode.CacheTTL,
		SharedTTLSeconds: cfg.Geocode.SharedTTL,
		ShareNegative:    cfg.Geocode.NegativeShared,
	}, slog.Default())
	backfill := usecases.NewGeocodeBackfill(entities, places, slog.Default())

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, event write-back disabled", "error", err)
	} else {
		defer sub.Close()
		if err := sub.SubscribeEntityGeocoded(ctx, backfill.Persist); err != nil {
			slog.Warn("subscribe geocoded events", "error", err)
		}
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.GeocodeBackfillWorkflow)
	w.RegisterActivity(&workflows.BackfillActivities{Backfill: backfill})

	slog.Info("backfill worker started", "queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func startBackfill(cfg *config.Config, c client.Client) {
	input := workflows.BackfillInput{
		Kinds: []domain.EntityKind{domain.KindTalent, domain.KindBusiness, domain.KindJob},
	}
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n <= 0 {
			log.Fatalf("invalid page size %q", os.Args[2])
		}
		input.PageSize = n
	}

	run, err := c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{
		ID:        "geocode-backfill-" + time.Now().UTC().Format("20060102T150405"),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflows.GeocodeBackfillWorkflow, input)
	if err != nil {
		log.Fatalf("start workflow: %v", err)
	}
	slog.Info("backfill started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
}

func openEntities(ctx context.Context, cfg *config.Config) (ports.EntityRepository, func()) {
	if cfg.Database.Driver == "sqlite" {
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("database: %v", err)
		}
		return sqlite.NewEntityRepo(store), func() { _ = store.Close() }
	}
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	return postgres.NewEntityRepo(db), db.Close
}
