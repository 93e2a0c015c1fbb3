package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
)

func backfillResolver(fn func(ctx context.Context, q string, limit int) ([]domain.Place, error)) *usecases.GeocodeCache {
	return usecases.NewGeocodeCache(&mockGeocoder{geocodeFn: fn}, nil, usecases.GeocodeCacheConfig{}, nil)
}

func TestGeocodeBackfill_RunPage(t *testing.T) {
	repo := &mockEntityRepo{listFn: func(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error) {
		assert.Equal(t, domain.KindJob, kind)
		assert.Equal(t, "", afterID)
		return []domain.Entity{
			{ID: "a", City: "Sydney"},
			{ID: "b", City: "Atlantis"},
			{ID: "c"},
			{ID: "d", City: "Broken"},
		}, nil
	}}
	resolver := backfillResolver(func(ctx context.Context, q string, limit int) ([]domain.Place, error) {
		switch q {
		case "sydney":
			return []domain.Place{sydneyPlace}, nil
		case "broken":
			return nil, errors.New("upstream 502")
		}
		return nil, nil
	})

	page, err := usecases.NewGeocodeBackfill(repo, resolver, nil).RunPage(context.Background(), domain.KindJob, "", 10)
	require.NoError(t, err)
	assert.Equal(t, usecases.BackfillPage{Kind: domain.KindJob, AfterID: "d", Scanned: 4, Resolved: 1, Skipped: 3, Done: true}, page)
	assert.Equal(t, map[string]domain.GeoPoint{"a": sydneyPlace.Point}, repo.saved)
}

func TestGeocodeBackfill_FullPageNotDone(t *testing.T) {
	repo := &mockEntityRepo{listFn: func(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error) {
		return []domain.Entity{{ID: "x"}, {ID: "y"}}, nil
	}}
	page, err := usecases.NewGeocodeBackfill(repo, backfillResolver(nil), nil).RunPage(context.Background(), domain.KindTalent, "w", 2)
	require.NoError(t, err)
	assert.False(t, page.Done)
	assert.Equal(t, "y", page.AfterID)
}

func TestGeocodeBackfill_MissingCredentialsStops(t *testing.T) {
	repo := &mockEntityRepo{listFn: func(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error) {
		return []domain.Entity{{ID: "a", City: "Sydney"}}, nil
	}}
	resolver := backfillResolver(func(ctx context.Context, q string, limit int) ([]domain.Place, error) {
		return nil, ports.ErrMissingCredentials
	})
	_, err := usecases.NewGeocodeBackfill(repo, resolver, nil).RunPage(context.Background(), domain.KindTalent, "", 10)
	assert.ErrorIs(t, err, ports.ErrMissingCredentials)
}

func TestGeocodeBackfill_Persist(t *testing.T) {
	repo := &mockEntityRepo{}
	b := usecases.NewGeocodeBackfill(repo, nil, nil)

	ev := domain.EntityGeocoded{EntityID: "t1", Kind: domain.KindTalent, Key: "Sydney", Point: sydneyPlace.Point}
	require.NoError(t, b.Persist(context.Background(), ev))
	assert.Equal(t, sydneyPlace.Point, repo.saved["t1"])

	assert.Error(t, b.Persist(context.Background(), domain.EntityGeocoded{EntityID: "t1", Kind: "planet"}))

	repo.saveErr = errors.New("read only")
	assert.Error(t, b.Persist(context.Background(), ev))
}
