package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/ports"
	"github.com/creerlio/discovery/internal/core/usecases"
	"github.com/creerlio/discovery/internal/pkg/geospatial"
)

const maxQueryLen = 200

// SearchHandler runs a discovery search and pages the ranked result set.
func SearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx := c.UserContext()
		notice := ""
		if loc := strings.TrimSpace(c.Query("location")); loc != "" && f.Center == nil {
			center, n, err := resolveCenter(c, deps, loc)
			if err != nil {
				return errFrom(c, err)
			}
			f.Center, notice = center, n
		}

		rs, err := deps.Search.Search(ctx, f)
		if err != nil {
			return errFrom(c, err)
		}
		if rs.Notice != "" {
			notice = rs.Notice
		}

		pg := pageParams(c)
		items := page(rs.Entities, &pg)
		SetLinkHeaders(c, pg)
		c.Set("X-Filter-Fingerprint", rs.Fingerprint)
		return c.JSON(PaginatedResponse{Data: items, Pagination: pg, Notice: notice})
	}
}

// GeocodeHandler returns location suggestions. Provider failures yield an
// empty list rather than an error.
func GeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := strings.TrimSpace(c.Query("q"))
		if len(q) > maxQueryLen {
			return errBadRequest(c, fmt.Sprintf("query too long (max %d characters)", maxQueryLen))
		}
		limit := c.QueryInt("limit", deps.suggestLimit())
		if limit <= 0 || limit > 10 {
			limit = deps.suggestLimit()
		}
		if q == "" || deps.Places == nil {
			return c.JSON([]domain.Place{})
		}

		places, err := deps.Places.Suggest(c.UserContext(), q, limit)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("geocode suggestions failed", "query", q, "error", err)
			return c.JSON([]domain.Place{})
		}
		if places == nil {
			places = []domain.Place{}
		}
		return c.JSON(places)
	}
}

// ReverseGeocodeResponse is the body of /v1/geocode/reverse.
type ReverseGeocodeResponse struct {
	Point domain.GeoPoint `json:"point"`
	Label string          `json:"label"`
	// Fallback is true when the label is the formatted coordinates.
	Fallback bool `json:"fallback"`
}

// ReverseGeocodeHandler labels a point, falling back to "lat, lng".
func ReverseGeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := pointParam(c, "lat", "lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		resp := ReverseGeocodeResponse{Point: p, Label: p.Label(), Fallback: true}
		if deps.Reverse != nil {
			label, err := deps.Reverse.ReverseGeocode(c.UserContext(), p)
			if err == nil && strings.TrimSpace(label) != "" {
				resp.Label, resp.Fallback = label, false
			}
		}
		return c.JSON(resp)
	}
}

// RouteHandler computes driving and cycling routes between two points. The
// destination is given as text (to) or coordinates (to_lat, to_lng).
func RouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := pointParam(c, "from_lat", "from_lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		var target usecases.RouteTarget
		switch {
		case c.Query("to_lat") != "" || c.Query("to_lng") != "":
			p, err := pointParam(c, "to_lat", "to_lng")
			if err != nil {
				return errBadRequest(c, err.Error())
			}
			target.Point = &p
		case strings.TrimSpace(c.Query("to")) != "":
			target.Text = c.Query("to")
			if len(target.Text) > maxQueryLen {
				return errBadRequest(c, fmt.Sprintf("to too long (max %d characters)", maxQueryLen))
			}
		default:
			return errBadRequest(c, "to or to_lat and to_lng are required")
		}

		plan, err := deps.Planner.Plan(c.UserContext(), from, target)
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(plan)
	}
}

// CircleFeature is a GeoJSON polygon feature.
type CircleFeature struct {
	Type       string         `json:"type"`
	Geometry   CircleGeometry `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// CircleGeometry is a GeoJSON polygon.
type CircleGeometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// CircleHandler returns the radius ring drawn around a search center.
func CircleHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, err := pointParam(c, "lat", "lng")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		radius := c.QueryFloat("radius", domain.DefaultRadiusKm)
		if !domain.ValidRadius(radius) || radius > 500 {
			return errBadRequest(c, "radius must be between 0 and 500 km")
		}
		points := c.QueryInt("points", geospatial.DefaultRingPoints)
		if points < 3 || points > 360 {
			return errBadRequest(c, "points must be between 3 and 360")
		}

		ring := geospatial.CirclePolygon(center, radius, points)
		return c.JSON(CircleFeature{
			Type:     "Feature",
			Geometry: CircleGeometry{Type: "Polygon", Coordinates: [][][2]float64{ring}},
			Properties: map[string]any{
				"radius_km": radius,
				"center":    center,
			},
		})
	}
}

// filterFromQuery builds a filter snapshot from query parameters.
func filterFromQuery(c *fiber.Ctx) (domain.FilterState, error) {
	f := domain.FilterState{
		Kind:         domain.EntityKind(strings.ToLower(c.Query("kind", string(domain.KindTalent)))),
		Query:        strings.TrimSpace(c.Query("q")),
		Role:         strings.TrimSpace(c.Query("role")),
		Skills:       domain.ParseSkills(c.Query("skills")),
		IntentStatus: strings.TrimSpace(c.Query("intent_status")),
	}
	if !f.Kind.Valid() {
		return f, fmt.Errorf("unknown kind %q", f.Kind)
	}
	if len(f.Query) > maxQueryLen || len(f.Role) > maxQueryLen {
		return f, fmt.Errorf("query too long (max %d characters)", maxQueryLen)
	}
	if raw := c.Query("min_experience"); raw != "" {
		years, err := strconv.Atoi(raw)
		if err != nil || years < 0 {
			return f, fmt.Errorf("min_experience must be a non-negative integer")
		}
		f.MinExperience = &years
	}
	if raw := c.Query("radius"); raw != "" {
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil || !domain.ValidRadius(km) {
			return f, fmt.Errorf("radius must be a positive number of kilometers")
		}
		f.RadiusKm = km
	}
	if c.Query("lat") != "" || c.Query("lng") != "" {
		p, err := pointParam(c, "lat", "lng")
		if err != nil {
			return f, err
		}
		f.Center = &domain.SearchCenter{Point: p, Label: c.Query("location")}
	}
	return f, nil
}

// resolveCenter geocodes a location parameter. Missing geocoding degrades to
// an unfiltered search with a notice.
func resolveCenter(c *fiber.Ctx, deps *Dependencies, text string) (*domain.SearchCenter, string, error) {
	if deps.Places == nil {
		return nil, usecases.NoticeLocationUnavailable, nil
	}
	place, ok, err := deps.Places.Lookup(c.UserContext(), text)
	switch {
	case errors.Is(err, ports.ErrMissingCredentials):
		return nil, usecases.NoticeLocationUnavailable, nil
	case err != nil:
		return nil, "", err
	case !ok:
		return nil, "", fmt.Errorf("location %q: %w", text, ports.ErrNotFound)
	}
	label := place.Label
	if label == "" {
		label = text
	}
	return &domain.SearchCenter{Point: place.Point, Label: label}, "", nil
}

// pointParam reads a required coordinate pair.
func pointParam(c *fiber.Ctx, latKey, lngKey string) (domain.GeoPoint, error) {
	lat, err1 := strconv.ParseFloat(c.Query(latKey), 64)
	lng, err2 := strconv.ParseFloat(c.Query(lngKey), 64)
	if err1 != nil || err2 != nil {
		return domain.GeoPoint{}, fmt.Errorf("%s and %s are required", latKey, lngKey)
	}
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	if !p.Valid() {
		return p, fmt.Errorf("%s/%s out of range", latKey, lngKey)
	}
	return p, nil
}

func (d *Dependencies) suggestLimit() int {
	if d.SuggestLimit > 0 {
		return d.SuggestLimit
	}
	return 6
}
