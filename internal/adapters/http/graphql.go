package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/creerlio/discovery/internal/core/domain"
	"github.com/creerlio/discovery/internal/core/usecases"
	"github.com/creerlio/discovery/internal/pkg/geospatial"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"label": &graphql.Field{Type: graphql.String},
			"point": &graphql.Field{Type: geoPointType},
		},
	})

	entityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Entity",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"kind":             &graphql.Field{Type: graphql.String},
			"display_name":     &graphql.Field{Type: graphql.String},
			"title":            &graphql.Field{Type: graphql.String},
			"bio":              &graphql.Field{Type: graphql.String},
			"skills":           &graphql.Field{Type: graphql.NewList(graphql.String)},
			"experience_years": &graphql.Field{Type: graphql.Int},
			"latitude":         &graphql.Field{Type: graphql.Float},
			"longitude":        &graphql.Field{Type: graphql.Float},
			"location":         &graphql.Field{Type: graphql.String},
			"city":             &graphql.Field{Type: graphql.String},
			"state":            &graphql.Field{Type: graphql.String},
			"country":          &graphql.Field{Type: graphql.String},
			"search_summary":   &graphql.Field{Type: graphql.String},
			"availability":     &graphql.Field{Type: graphql.String},
			"parent_id":        &graphql.Field{Type: graphql.String},
			"intent_status":    &graphql.Field{Type: graphql.String},
			"intent_visible":   &graphql.Field{Type: graphql.Boolean},
			"distance_km":      &graphql.Field{Type: graphql.Float},
			"approx":           &graphql.Field{Type: graphql.Boolean},
		},
	})

	searchResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SearchResult",
		Fields: graphql.Fields{
			"fingerprint": &graphql.Field{Type: graphql.String},
			"notice":      &graphql.Field{Type: graphql.String},
			"total":       &graphql.Field{Type: graphql.Int},
			"entities":    &graphql.Field{Type: graphql.NewList(entityType)},
		},
	})

	waypointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Waypoint",
		Fields: graphql.Fields{
			"label": &graphql.Field{Type: graphql.String},
			"point": &graphql.Field{Type: geoPointType},
		},
	})

	legType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteLeg",
		Fields: graphql.Fields{
			"minutes": &graphql.Field{Type: graphql.Int},
			"km":      &graphql.Field{Type: graphql.Float},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RoutePlan",
		Fields: graphql.Fields{
			"from":    &graphql.Field{Type: waypointType},
			"to":      &graphql.Field{Type: waypointType},
			"driving": &graphql.Field{Type: legType},
			"cycling": &graphql.Field{Type: legType},
			"geometry": &graphql.Field{
				Type:        graphql.NewList(graphql.NewList(graphql.Float)),
				Description: "Driving line as [lng, lat] positions",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					plan, ok := p.Source.(*usecases.RoutePlan)
					if !ok {
						return nil, nil
					}
					return positions(plan.Geometry.Coordinates), nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"search": &graphql.Field{
				Type:        searchResultType,
				Description: "Discover talent, businesses or jobs",
				Args: graphql.FieldConfigArgument{
					"kind":          &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.KindTalent)},
					"q":             &graphql.ArgumentConfig{Type: graphql.String},
					"role":          &graphql.ArgumentConfig{Type: graphql.String},
					"skills":        &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
					"minExperience": &graphql.ArgumentConfig{Type: graphql.Int},
					"intentStatus":  &graphql.ArgumentConfig{Type: graphql.String},
					"lat":           &graphql.ArgumentConfig{Type: graphql.Float},
					"lng":           &graphql.ArgumentConfig{Type: graphql.Float},
					"radiusKm":      &graphql.ArgumentConfig{Type: graphql.Float},
					"offset":        &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":         &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPageLimit},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					f, err := filterFromArgs(p.Args)
					if err != nil {
						return nil, err
					}
					rs, err := deps.Search.Search(p.Context, f)
					if err != nil {
						return nil, err
					}
					pg := Pagination{Offset: max(p.Args["offset"].(int), 0), Limit: p.Args["limit"].(int)}
					if pg.Limit <= 0 || pg.Limit > maxPageLimit {
						pg.Limit = defaultPageLimit
					}
					return map[string]interface{}{
						"fingerprint": rs.Fingerprint,
						"notice":      rs.Notice,
						"total":       len(rs.Entities),
						"entities":    page(rs.Entities, &pg),
					}, nil
				},
			},
			"geocode": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Location suggestions; empty when the provider is unavailable",
				Args: graphql.FieldConfigArgument{
					"q":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 6},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Places == nil {
						return []domain.Place{}, nil
					}
					places, err := deps.Places.Suggest(p.Context, p.Args["q"].(string), p.Args["limit"].(int))
					if err != nil || places == nil {
						return []domain.Place{}, nil
					}
					return places, nil
				},
			},
			"reverseGeocode": &graphql.Field{
				Type:        graphql.String,
				Description: "Label for a point, or \"lat, lng\" when none is known",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
					if !pt.Valid() {
						return nil, fmt.Errorf("coordinates out of range")
					}
					if deps.Reverse != nil {
						if label, err := deps.Reverse.ReverseGeocode(p.Context, pt); err == nil && strings.TrimSpace(label) != "" {
							return label, nil
						}
					}
					return pt.Label(), nil
				},
			},
			"route": &graphql.Field{
				Type:        routeType,
				Description: "Driving and cycling route to a text or coordinate destination",
				Args: graphql.FieldConfigArgument{
					"fromLat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"fromLng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to":      &graphql.ArgumentConfig{Type: graphql.String},
					"toLat":   &graphql.ArgumentConfig{Type: graphql.Float},
					"toLng":   &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from := domain.GeoPoint{Lat: p.Args["fromLat"].(float64), Lng: p.Args["fromLng"].(float64)}
					var target usecases.RouteTarget
					lat, hasLat := p.Args["toLat"].(float64)
					lng, hasLng := p.Args["toLng"].(float64)
					switch {
					case hasLat && hasLng:
						target.Point = &domain.GeoPoint{Lat: lat, Lng: lng}
					case hasLat || hasLng:
						return nil, fmt.Errorf("toLat and toLng go together")
					default:
						target.Text, _ = p.Args["to"].(string)
					}
					return deps.Planner.Plan(p.Context, from, target)
				},
			},
			"circle": &graphql.Field{
				Type:        graphql.NewList(graphql.NewList(graphql.Float)),
				Description: "Closed ring of [lng, lat] positions around a center",
				Args: graphql.FieldConfigArgument{
					"lat":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radiusKm": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: domain.DefaultRadiusKm},
					"points":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: geospatial.DefaultRingPoints},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
					radius := p.Args["radiusKm"].(float64)
					if !center.Valid() || !domain.ValidRadius(radius) {
						return nil, fmt.Errorf("invalid center or radius")
					}
					return positions(geospatial.CirclePolygon(center, radius, p.Args["points"].(int))), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

func filterFromArgs(args map[string]interface{}) (domain.FilterState, error) {
	f := domain.FilterState{Kind: domain.EntityKind(strings.ToLower(args["kind"].(string)))}
	if !f.Kind.Valid() {
		return f, fmt.Errorf("unknown kind %q", f.Kind)
	}
	f.Query, _ = args["q"].(string)
	f.Role, _ = args["role"].(string)
	f.IntentStatus, _ = args["intentStatus"].(string)
	if raw, ok := args["skills"].([]interface{}); ok {
		skills := make([]string, 0, len(raw))
		for _, s := range raw {
			if str, ok := s.(string); ok {
				skills = append(skills, str)
			}
		}
		f.Skills = domain.NormalizeSkills(skills)
	}
	if years, ok := args["minExperience"].(int); ok {
		f.MinExperience = &years
	}
	if km, ok := args["radiusKm"].(float64); ok {
		if !domain.ValidRadius(km) {
			return f, fmt.Errorf("radiusKm must be a finite positive number")
		}
		f.RadiusKm = km
	}
	lat, hasLat := args["lat"].(float64)
	lng, hasLng := args["lng"].(float64)
	if hasLat != hasLng {
		return f, fmt.Errorf("lat and lng go together")
	}
	if hasLat {
		p := domain.GeoPoint{Lat: lat, Lng: lng}
		if !p.Valid() {
			return f, fmt.Errorf("coordinates out of range")
		}
		f.Center = &domain.SearchCenter{Point: p}
	}
	return f, nil
}

func positions(coords [][2]float64) [][]float64 {
	out := make([][]float64, len(coords))
	for i, c := range coords {
		out[i] = []float64{c[0], c[1]}
	}
	return out
}
