package postgres

import (
	"context"
	"fmt"

	"github.com/creerlio/discovery/internal/adapters/rowmap"
	"github.com/creerlio/discovery/internal/core/domain"
)

// IntentRepo implements ports.IntentRepository with pgx.
type IntentRepo struct {
	db *DB
}

// NewIntentRepo creates a new IntentRepo.
func NewIntentRepo(db *DB) *IntentRepo {
	return &IntentRepo{db: db}
}

// GetByProfileIDs loads the intent modes of ids in one query.
func (r *IntentRepo) GetByProfileIDs(ctx context.Context, kind domain.EntityKind, ids []string) (map[string]domain.Intent, error) {
	if len(ids) == 0 {
		return map[string]domain.Intent{}, nil
	}
	profileType, ok := rowmap.ProfileType[kind]
	if !ok {
		return nil, fmt.Errorf("no intent modes for kind %q", kind)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT profile_id::text, intent_status, visibility
		FROM intent_modes
		WHERE profile_type = $1 AND profile_id::text = ANY($2)
	`, profileType, ids)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make(map[string]domain.Intent, len(ids))
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		in := rowmap.Intent(values)
		if in.ProfileID != "" {
			out[in.ProfileID] = in
		}
	}
	return out, translate(rows.Err())
}
