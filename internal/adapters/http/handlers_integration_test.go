//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	handler "github.com/creerlio/discovery/internal/adapters/http"
	"github.com/creerlio/discovery/internal/adapters/postgres"
	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/usecases"
	"github.com/creerlio/discovery/internal/pkg/config"
)

// setupTestDB connects to the database described by DISCOVERY_* variables.
// The schema from migrations/ must already be applied.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("discovery-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// setupTestDeps wires real repositories with no geocoding provider.
func setupTestDeps(db *postgres.DB) *handler.Dependencies {
	return &handler.Dependencies{
		Search: usecases.NewSearchService(postgres.NewEntityRepo(db), postgres.NewIntentRepo(db), nil, nil, usecases.SearchConfig{}, nil),
		DB:     db,
	}
}

// seedTalent upserts a talent profile and its intent mode.
func seedTalent(t *testing.T, db *postgres.DB, id, title string, lat, lng float64, intent string) {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO talent_profiles (id, title, skills, latitude, longitude, search_visible, search_summary)
		VALUES ($1, $2, '["espresso"]', $3, $4, true, 'Specialty coffee')
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude
	`, id, title, lat, lng)
	if err != nil {
		t.Fatalf("seed talent: %v", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO intent_modes (profile_type, profile_id, intent_status, visibility)
		VALUES ('talent', $1, $2, true)
		ON CONFLICT (profile_type, profile_id) DO UPDATE SET intent_status = EXCLUDED.intent_status
	`, id, intent)
	if err != nil {
		t.Fatalf("seed intent: %v", err)
	}
}

func TestSearch_Integration_RadiusAgainstRealDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	suffix := time.Now().Format("20060102150405")
	seedTalent(t, db, "it-syd-"+suffix, "Integration Barista "+suffix, -33.8688, 151.2093, "open_to_work")
	seedTalent(t, db, "it-ncl-"+suffix, "Integration Barista "+suffix, -32.9283, 151.7817, "open_to_work")

	app := setupApp(setupTestDeps(db))
	status, body, headers := get(t, app, "/v1/search?kind=talent&q=Integration+Barista+"+suffix+"&lat=-33.8688&lng=151.2093&radius=10")
	require.Equal(t, 200, status, string(body))
	assert.NotEmpty(t, headers["X-Filter-Fingerprint"])

	var page struct {
		Data []domain.Entity `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "it-syd-"+suffix, page.Data[0].ID)
	assert.Equal(t, "open_to_work", page.Data[0].IntentStatus)
	require.NotNil(t, page.Data[0].DistanceKm)
	assert.Equal(t, 0.0, *page.Data[0].DistanceKm)
}

func TestReady_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	app := setupApp(setupTestDeps(setupTestDB(t)))
	status, body, _ := get(t, app, "/v1/ready")
	assert.Equal(t, 200, status, string(body))
}
