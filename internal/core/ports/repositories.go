package ports

import (
	"context"

	"github.com/creerlio/discovery/internal/core/domain"
)

// EntityQuery narrows a retrieval. Filtering beyond paging happens in the core.
type EntityQuery struct {
	Limit  int
	Offset int
	// Within pre-filters stored coordinates to a box. Rows without usable
	// coordinates are always kept so they can be geocoded. Ignored when the
	// column set lacks latitude or longitude.
	Within *domain.Bounds
}

// EntityRepository reads searchable entities from the backing store.
type EntityRepository interface {
	// Fetch selects the given columns for kind. It returns ErrUndefinedColumn
	// when the store lacks one of the columns so callers can narrow the set.
	Fetch(ctx context.Context, kind domain.EntityKind, columns []string, q EntityQuery) ([]domain.Entity, error)
	// ListUngeolocated pages through entities missing coordinates, ordered by id.
	ListUngeolocated(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error)
	// SaveCoordinates stores resolved coordinates for an entity.
	SaveCoordinates(ctx context.Context, kind domain.EntityKind, id string, p domain.GeoPoint) error
}

// IntentRepository reads intent modes.
type IntentRepository interface {
	// GetByProfileIDs returns intents of one profile kind keyed by profile id,
	// in a single query.
	GetByProfileIDs(ctx context.Context, kind domain.EntityKind, ids []string) (map[string]domain.Intent, error)
}
