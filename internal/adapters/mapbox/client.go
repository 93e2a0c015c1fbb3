package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/pkg/logging"
	"github.com/creerlio/discovery/internal/pkg/metrics"
)

const DefaultBaseURL = "https://api.mapbox.com"

// suggestTypes narrows multi-candidate lookups to places a user would type.
const suggestTypes = "place,locality,neighborhood,postcode,region"

// Config configures Client.
type Config struct {
	Token         string
	BaseURL       string
	Country       string
	RatePerSecond float64
	Timeout       time.Duration
}

// Client talks to the Mapbox geocoding and directions APIs. It implements
// ports.Geocoder, ports.ReverseGeocoder and ports.DirectionsProvider.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client. A nil httpClient uses one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.OrDefault(logger),
	}
}

type featureCollection struct {
	Features []struct {
		PlaceName string     `json:"place_name"`
		Center    [2]float64 `json:"center"`
	} `json:"features"`
}

type directionsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Geocode resolves free text to up to limit places in the configured country.
func (c *Client) Geocode(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if c.cfg.Country != "" {
		params.Set("country", strings.ToLower(c.cfg.Country))
	}
	if limit > 1 {
		params.Set("types", suggestTypes)
	}

	var fc featureCollection
	if err := c.get(ctx, "geocode", "/geocoding/v5/mapbox.places/"+url.PathEscape(query)+".json", params, &fc); err != nil {
		return nil, err
	}
	places := make([]domain.Place, 0, len(fc.Features))
	for _, f := range fc.Features {
		p := domain.PointFromLngLat(f.Center)
		if !p.Valid() {
			continue
		}
		places = append(places, domain.Place{Label: f.PlaceName, Point: p})
	}
	return places, nil
}

// ReverseGeocode returns the best label for p, or ports.ErrNotFound.
func (c *Client) ReverseGeocode(ctx context.Context, p domain.GeoPoint) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("reverse geocode: invalid point %v", p)
	}
	params := url.Values{}
	params.Set("limit", "1")
	path := fmt.Sprintf("/geocoding/v5/mapbox.places/%s,%s.json", formatCoord(p.Lng), formatCoord(p.Lat))

	var fc featureCollection
	if err := c.get(ctx, "reverse", path, params, &fc); err != nil {
		return "", err
	}
	if len(fc.Features) == 0 || fc.Features[0].PlaceName == "" {
		return "", ports.ErrNotFound
	}
	return fc.Features[0].PlaceName, nil
}

// Directions returns the first route between from and to for profile.
func (c *Client) Directions(ctx context.Context, profile domain.RouteProfile, from, to domain.GeoPoint) (domain.Route, error) {
	switch profile {
	case domain.ProfileDriving, domain.ProfileCycling:
	default:
		return domain.Route{}, fmt.Errorf("unsupported route profile %q", profile)
	}
	params := url.Values{}
	params.Set("geometries", "geojson")
	params.Set("overview", "full")
	path := fmt.Sprintf("/directions/v5/mapbox/%s/%s,%s;%s,%s", profile,
		formatCoord(from.Lng), formatCoord(from.Lat), formatCoord(to.Lng), formatCoord(to.Lat))

	var dr directionsResponse
	if err := c.get(ctx, "directions_"+string(profile), path, params, &dr); err != nil {
		return domain.Route{}, err
	}
	if len(dr.Routes) == 0 {
		if dr.Code != "" && dr.Code != "Ok" {
			return domain.Route{}, fmt.Errorf("directions %s: %s: %w", profile, dr.Code, ports.ErrNotFound)
		}
		return domain.Route{}, fmt.Errorf("directions %s: %w", profile, ports.ErrNotFound)
	}
	r := dr.Routes[0]
	return domain.Route{
		Profile:         profile,
		DurationSeconds: r.Duration,
		DistanceMeters:  r.Distance,
		Geometry:        domain.GeoLineString{Coordinates: r.Geometry.Coordinates},
	}, nil
}

func (c *Client) get(ctx context.Context, kind, path string, params url.Values, out any) (err error) {
	if c.cfg.Token == "" {
		return ports.ErrMissingCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ProviderCalls.WithLabelValues(kind, outcome).Inc()
		metrics.ProviderLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	params.Set("access_token", c.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", kind, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s request: %w", kind, redact(err, c.cfg.Token))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", kind, resp.StatusCode, ports.ErrMissingCredentials)
	case resp.StatusCode == http.StatusNotFound && strings.HasPrefix(kind, "directions"):
		// NoRoute and NoSegment come back as 404 with a JSON body.
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", kind, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", kind, err)
	}
	return nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// redact keeps the access token out of transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "REDACTED"))
}
