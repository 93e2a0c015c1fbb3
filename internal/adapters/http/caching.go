package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets default Cache-Control headers on GET responses that
// did not set their own.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}

		path := c.Path()
		var ttl string
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"
		case path == "/metrics":
			ttl = "no-cache"
		case path == "/v1/geo/circle":
			ttl = "public, max-age=86400" // pure geometry
		case strings.HasPrefix(path, "/v1/geocode"):
			ttl = "public, max-age=3600"
		case path == "/v1/search":
			ttl = "private, max-age=30"
		case path == "/v1/route":
			ttl = "private, max-age=60"
		case strings.HasPrefix(path, "/docs"):
			ttl = "public, max-age=300"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
