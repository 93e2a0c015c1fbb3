package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/geospatial"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/metrics"
	"github.com/creerlio/discovery/internal/pkg/telemetry"
)

// NoticeLocationUnavailable is shown when geocoding is not configured.
const NoticeLocationUnavailable = "location features unavailable"

// ColumnLadders lists, per kind, the column sets tried from richest to minimal.
var ColumnLadders = map[domain.EntityKind][][]string{
	domain.KindTalent: {
		{"id", "title", "skills", "experience_years", "bio", "city", "state", "country", "latitude", "longitude", "search_visible", "search_summary", "availability_description"},
		{"id", "title", "skills", "experience_years", "bio", "city", "state", "country", "latitude", "longitude", "search_summary"},
		{"id", "title", "skills", "bio", "city", "state", "country", "latitude", "longitude"},
		{"id", "title", "skills", "bio", "latitude", "longitude"},
		{"id", "title", "skills", "bio"},
		{"id", "title", "skills"},
		{"id", "title"},
	},
	domain.KindBusiness: {
		{"id", "business_name", "description", "industries", "location", "city", "state", "country", "latitude", "longitude", "search_visible", "search_summary"},
		{"id", "business_name", "description", "industries", "location", "city", "state", "country", "latitude", "longitude"},
		{"id", "business_name", "description", "location", "city", "state", "country"},
		{"id", "business_name"},
		{"id", "name"},
	},
	domain.KindJob: {
		{"id", "title", "description", "location", "city", "state", "country", "employment_type", "status", "business_profile_id", "latitude", "longitude"},
		{"id", "title", "description", "location", "city", "state", "country", "employment_type", "status", "business_profile_id"},
		{"id", "title", "status", "city", "state", "country", "location", "business_profile_id"},
		{"id", "title"},
	},
}

// SearchConfig tunes SearchService.
type SearchConfig struct {
	Limit              int
	GeocodeConcurrency int
}

// SearchService turns a filter snapshot into a ranked, radius-bounded result set.
type SearchService struct {
	entities ports.EntityRepository
	intents  ports.IntentRepository
	resolver ports.LocationResolver
	events   ports.EventPublisher
	cfg      SearchConfig
	logger   *slog.Logger
}

// NewSearchService creates a new SearchService. events may be nil.
func NewSearchService(entities ports.EntityRepository, intents ports.IntentRepository, resolver ports.LocationResolver, events ports.EventPublisher, cfg SearchConfig, logger *slog.Logger) *SearchService {
	if cfg.Limit <= 0 {
		cfg.Limit = 500
	}
	if cfg.GeocodeConcurrency <= 0 {
		cfg.GeocodeConcurrency = 8
	}
	return &SearchService{
		entities: entities,
		intents:  intents,
		resolver: resolver,
		events:   events,
		cfg:      cfg,
		logger:   logging.OrDefault(logger),
	}
}

// Search runs retrieval, post-filters, geocoding and the radius filter.
func (s *SearchService) Search(ctx context.Context, f domain.FilterState) (rs *domain.ResultSet, err error) {
	if f.Kind == "" {
		f.Kind = domain.KindTalent
	}
	if !f.Kind.Valid() {
		return nil, fmt.Errorf("unknown entity kind %q", f.Kind)
	}

	ctx, span := telemetry.StartSpan(ctx, "search", attribute.String("search.kind", string(f.Kind)))
	defer func() { telemetry.EndSpan(span, err) }()

	rows, err := s.retrieve(ctx, f.Kind, retrievalBox(f))
	if err != nil {
		return nil, err
	}

	rows = filterVisible(rows)

	rows, err = s.attachIntents(ctx, f.Kind, rows)
	if err != nil {
		return nil, err
	}
	if status := strings.TrimSpace(f.IntentStatus); status != "" {
		rows = keep(rows, func(e *domain.Entity) bool {
			return e.IntentVisible && e.IntentStatus == status
		})
	}

	rows = keep(rows, textMatcher(f))

	rows, notice, err := s.locate(ctx, f, rows)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.results", len(rows)))
	return &domain.ResultSet{Fingerprint: f.Fingerprint(), Entities: rows, Notice: notice}, nil
}

// retrievalBox bounds the search circle for store-side pre-filtering. The
// haversine radius filter in locate stays the exact rule.
func retrievalBox(f domain.FilterState) *domain.Bounds {
	if f.Center == nil {
		return nil
	}
	b, ok := geospatial.BoundingBox(f.Center.Point, f.Radius())
	if !ok {
		return nil
	}
	return &b
}

// retrieve walks the column ladder, narrowing on undefined-column errors.
func (s *SearchService) retrieve(ctx context.Context, kind domain.EntityKind, within *domain.Bounds) ([]domain.Entity, error) {
	var lastErr error
	for i, cols := range ColumnLadders[kind] {
		rows, err := s.entities.Fetch(ctx, kind, cols, ports.EntityQuery{Limit: s.cfg.Limit, Within: within})
		if err == nil {
			if i > 0 {
				s.logger.Debug("retrieved with narrower columns", "kind", kind, "rung", i)
			}
			return rows, nil
		}
		if !errors.Is(err, ports.ErrUndefinedColumn) {
			return nil, fmt.Errorf("fetch %s: %w", kind, err)
		}
		metrics.ColumnFallbacks.WithLabelValues(string(kind)).Inc()
		lastErr = err
	}
	return nil, fmt.Errorf("fetch %s: no usable column set: %w", kind, lastErr)
}

// filterVisible drops entities explicitly hidden from search. Entities that opt in
// must also carry a summary.
func filterVisible(rows []domain.Entity) []domain.Entity {
	return keep(rows, func(e *domain.Entity) bool {
		if e.SearchVisible == nil {
			return true
		}
		if !*e.SearchVisible {
			return false
		}
		return strings.TrimSpace(e.Summary) != ""
	})
}

// attachIntents batch-loads intent modes. Jobs carry the intent of their business.
func (s *SearchService) attachIntents(ctx context.Context, kind domain.EntityKind, rows []domain.Entity) ([]domain.Entity, error) {
	if s.intents == nil || len(rows) == 0 {
		return rows, nil
	}
	profileKind := kind
	owner := func(e *domain.Entity) string { return e.ID }
	if kind == domain.KindJob {
		profileKind = domain.KindBusiness
		owner = func(e *domain.Entity) string { return e.ParentID }
	}

	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for i := range rows {
		id := owner(&rows[i])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return rows, nil
	}

	intents, err := s.intents.GetByProfileIDs(ctx, profileKind, ids)
	if err != nil {
		return nil, fmt.Errorf("load intents: %w", err)
	}
	for i := range rows {
		if in, ok := intents[owner(&rows[i])]; ok {
			rows[i].IntentStatus = in.Status
			rows[i].IntentVisible = in.Visible
		}
	}
	return rows, nil
}

func textMatcher(f domain.FilterState) func(e *domain.Entity) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	role := strings.ToLower(strings.TrimSpace(f.Role))
	skills := domain.NormalizeSkills(f.Skills)

	return func(e *domain.Entity) bool {
		if q != "" && !matchesQuery(e, q) {
			return false
		}
		if role != "" && !strings.Contains(strings.ToLower(e.Title), role) {
			return false
		}
		if len(skills) > 0 && !hasAnySkill(e, skills) {
			return false
		}
		if f.MinExperience != nil && e.ExperienceYears != nil && *e.ExperienceYears < *f.MinExperience {
			return false
		}
		return true
	}
}

func matchesQuery(e *domain.Entity, q string) bool {
	if strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Bio), q) {
		return true
	}
	for _, sk := range e.Skills {
		if strings.Contains(strings.ToLower(sk), q) {
			return true
		}
	}
	return false
}

func hasAnySkill(e *domain.Entity, wanted []string) bool {
	for _, sk := range e.Skills {
		sk = strings.ToLower(strings.TrimSpace(sk))
		for _, w := range wanted {
			if sk == w {
				return true
			}
		}
	}
	return false
}

// locate resolves missing coordinates and applies the radius filter. With a
// center set, entities that cannot be placed are excluded and the survivors are
// ordered by distance; without one, geocoding only improves display.
func (s *SearchService) locate(ctx context.Context, f domain.FilterState, rows []domain.Entity) ([]domain.Entity, string, error) {
	var (
		mu          sync.Mutex
		unavailable bool
		geocoded    []domain.EntityGeocoded
	)

	if s.resolver != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.GeocodeConcurrency)
		for i := range rows {
			e := &rows[i]
			if e.Geolocated() {
				continue
			}
			key := e.LocationKey()
			if key == "" {
				continue
			}
			g.Go(func() error {
				p, ok, err := s.resolver.Resolve(gctx, key)
				switch {
				case err != nil && gctx.Err() != nil:
					return gctx.Err()
				case errors.Is(err, ports.ErrMissingCredentials):
					mu.Lock()
					unavailable = true
					mu.Unlock()
					return nil
				case err != nil:
					s.logger.Debug("entity location unresolved", "id", e.ID, "key", key, "error", err)
					return nil
				case !ok:
					return nil
				}
				// Each goroutine owns rows[i].
				e.SetCoordinates(p)
				e.Approximate = true
				mu.Lock()
				geocoded = append(geocoded, domain.EntityGeocoded{EntityID: e.ID, Kind: e.Kind, Key: key, Point: p})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, "", err
		}
	} else {
		for i := range rows {
			if !rows[i].Geolocated() && rows[i].LocationKey() != "" {
				unavailable = true
				break
			}
		}
	}

	s.publishGeocoded(ctx, geocoded)

	notice := ""
	if unavailable {
		notice = NoticeLocationUnavailable
	}

	if f.Center == nil {
		return rows, notice, nil
	}

	center := f.Center.Point
	radius := f.Radius()
	type ranked struct {
		e domain.Entity
		d float64
	}
	kept := make([]ranked, 0, len(rows))
	for _, e := range rows {
		p, ok := e.Coordinates()
		if !ok {
			continue
		}
		d := geospatial.HaversineKm(center, p)
		if d > radius {
			continue
		}
		rounded := geospatial.RoundKm(d)
		e.DistanceKm = &rounded
		kept = append(kept, ranked{e: e, d: d})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].d < kept[j].d })

	out := make([]domain.Entity, len(kept))
	for i, r := range kept {
		out[i] = r.e
	}
	return out, notice, nil
}

func (s *SearchService) publishGeocoded(ctx context.Context, evs []domain.EntityGeocoded) {
	if s.events == nil {
		return
	}
	for _, ev := range evs {
		if err := s.events.PublishEntityGeocoded(ctx, ev); err != nil {
			s.logger.Warn("publish entity geocoded", "id", ev.EntityID, "error", err)
			return
		}
	}
}

func keep(rows []domain.Entity, pred func(e *domain.Entity) bool) []domain.Entity {
	out := rows[:0]
	for i := range rows {
		if pred(&rows[i]) {
			out = append(out, rows[i])
		}
	}
	return out
}
