package domain

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultRadiusKm is used when a search center is set without an explicit radius.
const DefaultRadiusKm = 5.0

// ValidRadius reports whether km is a finite, positive radius.
func ValidRadius(km float64) bool {
	return km > 0 && !math.IsNaN(km) && !math.IsInf(km, 0)
}

// SearchCenter is the user-chosen anchor for radius filtering.
type SearchCenter struct {
	Point GeoPoint `json:"point"`
	Label string   `json:"label,omitempty"`
}

// FilterState is an immutable snapshot of every active discovery filter.
type FilterState struct {
	Kind          EntityKind    `json:"kind"`
	Query         string        `json:"q,omitempty"`
	Role          string        `json:"role,omitempty"`
	Skills        []string      `json:"skills,omitempty"`
	MinExperience *int          `json:"min_experience,omitempty"`
	IntentStatus  string        `json:"intent_status,omitempty"`
	Center        *SearchCenter `json:"center,omitempty"`
	RadiusKm      float64       `json:"radius_km"`
}

// Radius returns the effective radius in kilometers.
func (f FilterState) Radius() float64 {
	if !ValidRadius(f.RadiusKm) {
		return DefaultRadiusKm
	}
	return f.RadiusKm
}

// Fingerprint is a deterministic, order-insensitive serialization of the filter state.
// Two states with equal fingerprints produce the same result set.
func (f FilterState) Fingerprint() string {
	v := url.Values{}
	v.Set("kind", string(f.Kind))
	if q := strings.TrimSpace(f.Query); q != "" {
		v.Set("q", strings.ToLower(q))
	}
	if r := strings.TrimSpace(f.Role); r != "" {
		v.Set("role", strings.ToLower(r))
	}
	if skills := NormalizeSkills(f.Skills); len(skills) > 0 {
		v.Set("skills", strings.Join(skills, ","))
	}
	if f.MinExperience != nil {
		v.Set("min_experience", strconv.Itoa(*f.MinExperience))
	}
	if s := strings.TrimSpace(f.IntentStatus); s != "" {
		v.Set("intent_status", s)
	}
	if f.Center != nil {
		v.Set("lat", strconv.FormatFloat(f.Center.Point.Lat, 'f', 6, 64))
		v.Set("lng", strconv.FormatFloat(f.Center.Point.Lng, 'f', 6, 64))
		v.Set("radius", strconv.FormatFloat(f.Radius(), 'f', 3, 64))
	}
	// url.Values.Encode sorts by key.
	return v.Encode()
}

// NormalizeSkills lowercases, trims, de-duplicates and sorts skills.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParseSkills splits a comma-separated skill list.
func ParseSkills(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeSkills(strings.Split(raw, ","))
}

// ResultSet is the outcome of one discovery fetch.
type ResultSet struct {
	Fingerprint string   `json:"fingerprint"`
	Entities    []Entity `json:"entities"`
	// Notice carries a user-facing degradation message, e.g. when location
	// features are unavailable because geocoding is not configured.
	Notice string `json:"notice,omitempty"`
}
