package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/creerlio/discovery/internal/adapters/rowmap"
	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
)

// EntityRepo implements ports.EntityRepository with pgx.
type EntityRepo struct {
	db *DB
}

// NewEntityRepo creates a new EntityRepo.
func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// Fetch selects columns for kind. Jobs are limited to published postings when
// the status column is part of the projection, and q.Within narrows rows with
// stored coordinates to the search box.
func (r *EntityRepo) Fetch(ctx context.Context, kind domain.EntityKind, columns []string, q ports.EntityQuery) ([]domain.Entity, error) {
	table, err := rowmap.Table(kind)
	if err != nil {
		return nil, err
	}
	if _, err := rowmap.SelectList(columns); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectExprs(columns))
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	var where []string
	args := []any{}
	if kind == domain.KindJob && rowmap.Has(columns, "status") {
		where = append(where, "status ILIKE 'published%'")
	}
	if q.Within != nil && rowmap.Has(columns, "latitude") && rowmap.Has(columns, "longitude") {
		b := q.Within
		args = append(args, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
		n := len(args)
		// Unset or zeroed coordinates are geocoded later, so they pass.
		where = append(where, fmt.Sprintf(`(latitude IS NULL OR longitude IS NULL
			OR (latitude = 0 AND longitude = 0)
			OR latitude = 'NaN'::float8 OR longitude = 'NaN'::float8
			OR (latitude BETWEEN $%d AND $%d AND longitude BETWEEN $%d AND $%d))`, n-3, n-2, n-1, n))
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY id")

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, rowmap.Entity(kind, columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// ListUngeolocated pages through entities without coordinates that carry some
// textual location.
func (r *EntityRepo) ListUngeolocated(ctx context.Context, kind domain.EntityKind, afterID string, limit int) ([]domain.Entity, error) {
	table, err := rowmap.Table(kind)
	if err != nil {
		return nil, err
	}
	columns := []string{"id", "location", "city", "state", "country"}
	locationCol := "location"
	if kind == domain.KindTalent {
		// Talent profiles carry no free-text location.
		locationCol = "NULL::text"
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, `+locationCol+`, city, state, country
		FROM `+table+`
		WHERE (latitude IS NULL OR longitude IS NULL)
		  AND COALESCE(NULLIF(TRIM(city), ''), NULLIF(TRIM(`+locationCol+`), '')) IS NOT NULL
		  AND id::text > $1
		ORDER BY id::text
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, rowmap.Entity(kind, columns, values))
	}
	return out, translate(rows.Err())
}

// SaveCoordinates stores resolved coordinates.
func (r *EntityRepo) SaveCoordinates(ctx context.Context, kind domain.EntityKind, id string, p domain.GeoPoint) error {
	table, err := rowmap.Table(kind)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE `+table+` SET latitude = $1, longitude = $2 WHERE id::text = $3
	`, p.Lat, p.Lng, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ports.ErrNotFound)
	}
	return nil
}

// selectExprs casts columns whose storage type varies between deployments to
// the types the row mapper expects.
func selectExprs(columns []string) string {
	exprs := make([]string, len(columns))
	for i, c := range columns {
		switch c {
		case "id", "business_profile_id":
			exprs[i] = c + "::text AS " + c
		case "latitude", "longitude":
			exprs[i] = c + "::float8 AS " + c
		default:
			exprs[i] = c
		}
	}
	return strings.Join(exprs, ", ")
}
