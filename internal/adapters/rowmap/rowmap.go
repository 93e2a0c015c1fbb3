// Package rowmap maps dynamically selected profile columns onto domain entities.
// It is shared by the SQL adapters, which select different column sets as the
// search path narrows its projection.
package rowmap

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/creerlio/discovery/internal/core/domain"
)

var tables = map[domain.EntityKind]string{
	domain.KindTalent:   "talent_profiles",
	domain.KindBusiness: "business_profiles",
	domain.KindJob:      "jobs",
}

// ProfileType is the intent_modes.profile_type value per kind.
var ProfileType = map[domain.EntityKind]string{
	domain.KindTalent:   "talent",
	domain.KindBusiness: "business",
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Table returns the table backing kind.
func Table(kind domain.EntityKind) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	return t, nil
}

// SelectList validates column names and joins them for a SELECT clause.
func SelectList(columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns requested")
	}
	for _, c := range columns {
		if !identRe.MatchString(c) {
			return "", fmt.Errorf("invalid column name %q", c)
		}
	}
	return strings.Join(columns, ", "), nil
}

// Has reports whether columns contains name.
func Has(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

// Entity builds an entity of kind from values scanned in column order.
func Entity(kind domain.EntityKind, columns []string, values []any) domain.Entity {
	e := domain.Entity{Kind: kind}
	var lat, lng *float64
	for i, col := range columns {
		if i >= len(values) || values[i] == nil {
			continue
		}
		v := values[i]
		switch col {
		case "id":
			e.ID = String(v)
		case "title":
			e.Title = String(v)
		case "business_name", "name":
			e.DisplayName = String(v)
		case "bio", "description":
			e.Bio = String(v)
		case "skills", "industries":
			e.Skills = Strings(v)
		case "experience_years":
			if n, ok := Int(v); ok {
				e.ExperienceYears = &n
			}
		case "location":
			e.Location = String(v)
		case "city":
			e.City = String(v)
		case "state":
			e.State = String(v)
		case "country":
			e.Country = String(v)
		case "latitude":
			if f, ok := Float(v); ok {
				lat = &f
			}
		case "longitude":
			if f, ok := Float(v); ok {
				lng = &f
			}
		case "search_visible":
			if b, ok := Bool(v); ok {
				e.SearchVisible = &b
			}
		case "search_summary":
			e.Summary = String(v)
		case "availability_description", "employment_type":
			e.Availability = String(v)
		case "business_profile_id":
			e.ParentID = String(v)
		}
	}
	// A zero pair is how unset coordinates were stored historically.
	if lat != nil && lng != nil && !(*lat == 0 && *lng == 0) {
		e.Latitude, e.Longitude = lat, lng
	}
	return e
}

// String renders a scanned value as text.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Float converts numeric or textual values. Non-finite values are rejected.
func Float(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case int:
		f = float64(t)
	case string, []byte:
		p, err := strconv.ParseFloat(String(t), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int converts numeric or textual values, truncating fractions.
func Int(v any) (int, bool) {
	f, ok := Float(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool converts booleans, integers and textual flags.
func Bool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	case string, []byte:
		b, err := strconv.ParseBool(String(t))
		return b, err == nil
	}
	return false, false
}

// Strings converts arrays, JSON array text and comma lists.
func Strings(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []string:
		raw = t
	case []any:
		for _, x := range t {
			raw = append(raw, String(x))
		}
	case string, []byte:
		s := String(t)
		if strings.HasPrefix(s, "[") {
			if err := json.Unmarshal([]byte(s), &raw); err == nil {
				break
			}
		}
		s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
		raw = strings.Split(s, ",")
	default:
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		x = strings.Trim(strings.TrimSpace(x), `"`)
		if x != "" {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Intent builds an intent from (profile_id, intent_status, visibility) values.
func Intent(values []any) domain.Intent {
	var in domain.Intent
	if len(values) != 3 {
		return in
	}
	in.ProfileID = String(values[0])
	in.Status = String(values[1])
	in.Visible = Truthy(values[2])
	return in
}

// Truthy treats any non-empty, non-false value as true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := Bool(v); ok {
		return b
	}
	return String(v) != ""
}
