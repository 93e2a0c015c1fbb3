package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/creerlio/discovery/internal/adapters/rowmap"
	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
)

// EntityRepo implements ports.EntityRepository on sqlite.
type EntityRepo struct {
	store *Store
}

// NewEntityRepo creates a new EntityRepo.
func NewEntityRepo(store *Store) *EntityRepo {
	return &EntityRepo{store: store}
}

// Fetch selects columns for kind.
func (r *EntityRepo) Fetch(ctx context.Context, kind domain.EntityKind, columns []string, q ports.EntityQuery) ([]domain.Entity, error) {
	table, err := rowmap.Table(kind)
	if err != nil {
		return nil, err
	}
	list, err := rowmap.SelectList(columns)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if kind == domain.KindJob && rowmap.Has(columns, "status") {
		where = append(where, "LOWER(TRIM(status)) LIKE 'published%'")
	}
	if b := q.Within; b != nil && rowmap.Has(columns, "latitude") && rowmap.Has(columns, "longitude") {
		where = append(where, `(latitude IS NULL OR longitude IS NULL
			OR (latitude = 0 AND longitude = 0)
			OR (latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?))`)
		args = append(args, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}

	query := "SELECT " + list + " FROM " + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanEntities(rows, kind, columns)
}

// ListUngeolocated pages through entities missing coordinates.
func (r *EntityRepo) ListUngeolocated(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error) {
	table, err := rowmap.Table(kind)
	if err != nil {
		return nil, err
	}
	locationCol := "location"
	if kind == domain.KindTalent {
		// Talent profiles carry no free-text location.
		locationCol = "NULL"
	}
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, `+locationCol+`, city, state, country
		FROM `+table+`
		WHERE (latitude IS NULL OR longitude IS NULL)
		  AND COALESCE(NULLIF(TRIM(city), ''), NULLIF(TRIM(`+locationCol+`), '')) IS NOT NULL
		  AND id > ?
		ORDER BY id
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanEntities(rows, kind, []string{"id", "location", "city", "state", "country"})
}

// SaveCoordinates stores resolved coordinates.
func (r *EntityRepo) SaveCoordinates(ctx context.Context, kind domain.EntityKind, id string, p domain.GeoPoint) error {
	table, err := rowmap.Table(kind)
	if err != nil {
		return err
	}
	res, err := r.store.db.ExecContext(ctx, `UPDATE `+table+` SET latitude = ?, longitude = ? WHERE id = ?`, p.Lat, p.Lng, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ports.ErrNotFound)
	}
	return nil
}

// IntentRepo implements ports.IntentRepository on sqlite.
type IntentRepo struct {
	store *Store
}

// NewIntentRepo creates a new IntentRepo.
func NewIntentRepo(store *Store) *IntentRepo {
	return &IntentRepo{store: store}
}

// GetByProfileIDs loads the intent modes of ids in one query.
func (r *IntentRepo) GetByProfileIDs(ctx context.Context, kind domain.EntityKind, ids []string) (map[string]domain.Intent, error) {
	out := make(map[string]domain.Intent, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	profileType, ok := rowmap.ProfileType[kind]
	if !ok {
		return nil, fmt.Errorf("no intent modes for kind %q", kind)
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, profileType)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT profile_id, intent_status, visibility
		FROM intent_modes
		WHERE profile_type = ? AND profile_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]any, 3)
		ptrs := []any{&values[0], &values[1], &values[2]}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		in := rowmap.Intent(values)
		if in.ProfileID != "" {
			out[in.ProfileID] = in
		}
	}
	return out, rows.Err()
}

func scanEntities(rows *sql.Rows, kind domain.EntityKind, columns []string) ([]domain.Entity, error) {
	var out []domain.Entity
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, rowmap.Entity(kind, columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}
