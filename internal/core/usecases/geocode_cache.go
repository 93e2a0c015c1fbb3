package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/metrics"
	"github.com/creerlio/discovery/internal/pkg/telemetry"
)

const geocodeCachePrefix = "geocode:v1:"

// GeocodeCacheConfig tunes GeocodeCache.
type GeocodeCacheConfig struct {
	// TTL bounds the life of in-process entries. Zero keeps them for the
	// lifetime of the cache.
	TTL time.Duration
	// SharedTTLSeconds is the lifetime of entries written to the shared tier.
	SharedTTLSeconds int
	// ShareNegative also writes "no result" entries to the shared tier.
	ShareNegative bool
}

type geocodeEntry struct {
	place *domain.Place // nil means the provider had no match
	at    time.Time
}

type sharedEntry struct {
	Found bool    `json:"found"`
	Label string  `json:"label,omitempty"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// GeocodeCache memoizes geocoding lookups by normalized key. Concurrent lookups
// of the same key share one provider request. Empty provider answers are cached
// as negative entries; provider errors are returned and never cached.
type GeocodeCache struct {
	geocoder ports.Geocoder
	shared   ports.CacheService
	cfg      GeocodeCacheConfig
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]geocodeEntry
	flights singleflight.Group
}

// NewGeocodeCache creates a GeocodeCache. shared may be nil.
func NewGeocodeCache(geocoder ports.Geocoder, shared ports.CacheService, cfg GeocodeCacheConfig, logger *slog.Logger) *GeocodeCache {
	return &GeocodeCache{
		geocoder: geocoder,
		shared:   shared,
		cfg:      cfg,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
		entries:  make(map[string]geocodeEntry),
	}
}

// NormalizeKey trims, collapses whitespace and lowercases a location string.
func NormalizeKey(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// Resolve implements ports.LocationResolver.
func (c *GeocodeCache) Resolve(ctx context.Context, key string) (domain.GeoPoint, bool, error) {
	place, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok {
		return domain.GeoPoint{}, false, err
	}
	return place.Point, true, nil
}

// Lookup returns the best place for raw. ok is false when the provider has no
// match. A canceled ctx abandons the wait but not the shared request, which
// still fills the cache for later callers.
func (c *GeocodeCache) Lookup(ctx context.Context, raw string) (domain.Place, bool, error) {
	key := NormalizeKey(raw)
	if key == "" {
		return domain.Place{}, false, nil
	}

	if e, ok := c.cached(key); ok {
		metrics.GeocodeCacheHits.WithLabelValues("local").Inc()
		if e.place == nil {
			return domain.Place{}, false, nil
		}
		return *e.place, true, nil
	}

	leader := false
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		leader = true
		return c.fill(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		return domain.Place{}, false, ctx.Err()
	case res := <-ch:
		if !leader {
			metrics.GeocodeCoalesced.Inc()
		}
		if res.Err != nil {
			return domain.Place{}, false, res.Err
		}
		e := res.Val.(geocodeEntry)
		if e.place == nil {
			return domain.Place{}, false, nil
		}
		return *e.place, true, nil
	}
}

// Suggest returns up to limit candidates for an interactive location field.
// Suggestions are not cached.
func (c *GeocodeCache) Suggest(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	return c.geocoder.Geocode(ctx, strings.TrimSpace(query), limit)
}

// Len returns the number of in-process entries.
func (c *GeocodeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *GeocodeCache) cached(key string) (geocodeEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return geocodeEntry{}, false
	}
	if c.cfg.TTL > 0 && c.now().Sub(e.at) > c.cfg.TTL {
		delete(c.entries, key)
		return geocodeEntry{}, false
	}
	return e, true
}

func (c *GeocodeCache) store(key string, place *domain.Place) geocodeEntry {
	e := geocodeEntry{place: place, at: c.now()}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e
}

// fill runs once per key at a time, inside the singleflight group.
func (c *GeocodeCache) fill(ctx context.Context, key string) (geocodeEntry, error) {
	// Another flight may have finished between the cache check and now.
	if e, ok := c.cached(key); ok {
		return e, nil
	}

	if e, ok := c.sharedGet(ctx, key); ok {
		metrics.GeocodeCacheHits.WithLabelValues("shared").Inc()
		return c.store(key, e.place), nil
	}
	metrics.GeocodeCacheMisses.Inc()

	ctx, span := telemetry.StartSpan(ctx, "geocode.resolve", attribute.String("geocode.key", key))
	places, err := c.geocoder.Geocode(ctx, key, 1)
	telemetry.EndSpan(span, err)
	if err != nil {
		if !errors.Is(err, ports.ErrMissingCredentials) {
			c.logger.Warn("geocode failed", "key", key, "error", err)
		}
		return geocodeEntry{}, fmt.Errorf("geocode %q: %w", key, err)
	}

	var place *domain.Place
	if len(places) > 0 {
		p := places[0]
		place = &p
	}
	e := c.store(key, place)
	c.sharedSet(ctx, key, place)
	return e, nil
}

func (c *GeocodeCache) sharedGet(ctx context.Context, key string) (geocodeEntry, bool) {
	if c.shared == nil {
		return geocodeEntry{}, false
	}
	data, err := c.shared.Get(ctx, geocodeCachePrefix+key)
	if err != nil {
		return geocodeEntry{}, false
	}
	var se sharedEntry
	if err := json.Unmarshal(data, &se); err != nil {
		return geocodeEntry{}, false
	}
	if !se.Found {
		return geocodeEntry{}, true
	}
	return geocodeEntry{place: &domain.Place{Label: se.Label, Point: domain.GeoPoint{Lat: se.Lat, Lng: se.Lng}}}, true
}

func (c *GeocodeCache) sharedSet(ctx context.Context, key string, place *domain.Place) {
	if c.shared == nil || (place == nil && !c.cfg.ShareNegative) {
		return
	}
	se := sharedEntry{}
	if place != nil {
		se = sharedEntry{Found: true, Label: place.Label, Lat: place.Point.Lat, Lng: place.Point.Lng}
	}
	data, err := json.Marshal(se)
	if err != nil {
		return
	}
	if err := c.shared.Set(ctx, geocodeCachePrefix+key, data, c.cfg.SharedTTLSeconds); err != nil {
		c.logger.Debug("shared geocode cache write failed", "key", key, "error", err)
	}
}
