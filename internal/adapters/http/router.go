package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/creerlio/discovery/internal/pkg/metrics"
)

// RouterConfig tunes SetupRoutes.
type RouterConfig struct {
	// RequestsPerMinute is the per-IP limit on REST and GraphQL calls. Zero
	// disables limiting.
	RequestsPerMinute int
	RequestTimeout    time.Duration
	OpenAPIPath       string
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, cfg RouterConfig) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware(deps.Logger))
	app.Use(AccessLogMiddleware())

	if cfg.RequestsPerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RequestsPerMinute,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/metrics"
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/search", timeout.NewWithContext(SearchHandler(deps), cfg.RequestTimeout))
	v1.Get("/geocode", timeout.NewWithContext(GeocodeHandler(deps), cfg.RequestTimeout))
	v1.Get("/geocode/reverse", timeout.NewWithContext(ReverseGeocodeHandler(deps), cfg.RequestTimeout))
	v1.Get("/route", timeout.NewWithContext(RouteHandler(deps), cfg.RequestTimeout))
	v1.Get("/geo/circle", CircleHandler())

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), cfg.RequestTimeout))

	SetupDocs(app, cfg.OpenAPIPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/map", websocket.New(MapSessionHandler(deps)))
}
