package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
)

// ErrTypeMissingCredentials marks activity failures that retrying cannot fix.
const ErrTypeMissingCredentials = "MissingCredentials"

// BackfillActivities holds the activity implementations for the geocode
// backfill workflow.
type BackfillActivities struct {
	Backfill *usecases.GeocodeBackfill
}

// RunBackfillPage resolves one page of ungeolocated entities.
func (a *BackfillActivities) RunBackfillPage(ctx context.Context, kind domain.EntityKind, afterID string, limit int) (usecases.BackfillPage, error) {
	page, err := a.Backfill.RunPage(ctx, kind, afterID, limit)
	if errors.Is(err, ports.ErrMissingCredentials) {
		return page, temporal.NewNonRetryableApplicationError("geocoding is not configured", ErrTypeMissingCredentials, err)
	}
	if err != nil {
		return page, err
	}
	activity.GetLogger(ctx).Info("backfill page done", "kind", string(kind), "after", page.AfterID, "resolved", page.Resolved)
	return page, nil
}
