package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/logging"
)

// BackfillPage summarizes one page of a geocode backfill.
type BackfillPage struct {
	Kind     domain.EntityKind `json:"kind"`
	AfterID  string            `json:"after_id"`
	Scanned  int               `json:"scanned"`
	Resolved int               `json:"resolved"`
	Skipped  int               `json:"skipped"`
	Done     bool              `json:"done"`
}

// GeocodeBackfill persists coordinates for entities that only carry a textual
// location, either from events published by the search path or by paging
// through the store.
type GeocodeBackfill struct {
	entities ports.EntityRepository
	resolver ports.LocationResolver
	logger   *slog.Logger
}

// NewGeocodeBackfill creates a new GeocodeBackfill.
func NewGeocodeBackfill(entities ports.EntityRepository, resolver ports.LocationResolver, logger *slog.Logger) *GeocodeBackfill {
	return &GeocodeBackfill{entities: entities, resolver: resolver, logger: logging.OrDefault(logger)}
}

// Persist writes a resolution observed elsewhere.
func (b *GeocodeBackfill) Persist(ctx context.Context, ev domain.EntityGeocoded) error {
	if ev.EntityID == "" || !ev.Kind.Valid() || !ev.Point.Valid() {
		return fmt.Errorf("invalid geocoded event for %q", ev.EntityID)
	}
	if err := b.entities.SaveCoordinates(ctx, ev.Kind, ev.EntityID, ev.Point); err != nil {
		return fmt.Errorf("save coordinates %s/%s: %w", ev.Kind, ev.EntityID, err)
	}
	return nil
}

// RunPage resolves up to limit ungeolocated entities after afterID. Keys that
// do not resolve are skipped; the next page starts after the last scanned id so
// they are not retried within the same run.
func (b *GeocodeBackfill) RunPage(ctx context.Context, kind domain.EntityKind, afterID string, limit int) (BackfillPage, error) {
	page := BackfillPage{Kind: kind, AfterID: afterID}
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.entities.ListUngeolocated(ctx, kind, afterID, limit)
	if err != nil {
		return page, fmt.Errorf("list ungeolocated %s: %w", kind, err)
	}

	for _, e := range rows {
		page.Scanned++
		page.AfterID = e.ID

		key := e.LocationKey()
		if key == "" {
			page.Skipped++
			continue
		}
		p, ok, err := b.resolver.Resolve(ctx, key)
		switch {
		case errors.Is(err, ports.ErrMissingCredentials):
			return page, err
		case err != nil && ctx.Err() != nil:
			return page, ctx.Err()
		case err != nil:
			b.logger.Warn("backfill geocode failed", "kind", kind, "id", e.ID, "key", key, "error", err)
			page.Skipped++
			continue
		case !ok:
			page.Skipped++
			continue
		}
		if err := b.entities.SaveCoordinates(ctx, kind, e.ID, p); err != nil {
			return page, fmt.Errorf("save coordinates %s/%s: %w", kind, e.ID, err)
		}
		page.Resolved++
	}

	page.Done = len(rows) < limit
	b.logger.Info("backfill page", "kind", kind, "scanned", page.Scanned, "resolved", page.Resolved, "skipped", page.Skipped)
	return page, nil
}
