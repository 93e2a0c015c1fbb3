package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creerlio/discovery/internal/adapters/sqlite"
	"github.com/creerlio/discovery/internal/pkg/config"
	"github.com/creerlio/discovery/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("discovery-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	switch os.Args[1] {
	case "up":
		if cfg.Database.Driver == "sqlite" {
			migrateSQLite(ctx, cfg.Database.SQLitePath)
			return
		}
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer pool.Close()
		runMigrations(ctx, pool, "migrations")
	case "down":
		log.Println("down migration not yet implemented")
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// runMigrations applies every .sql file in dir in name order. Statements are
// idempotent so reruns are safe.
func runMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no migrations found in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		if _, err := pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}

	slog.Info("all migrations applied", "count", len(files))
}

func migrateSQLite(ctx context.Context, path string) {
	store, err := sqlite.Open(path)
	if err != nil {
		log.Fatalf("sqlite: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	slog.Info("sqlite schema ready", "path", path)
}
