package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/creerlio/discovery/internal/pkg/logging"
)

// RequestIDLogMiddleware stores a logger carrying the Fiber request ID in the
// user context, where core services pick it up via logging.FromContext.
func RequestIDLogMiddleware(base *slog.Logger) fiber.Handler {
	base = logging.OrDefault(base)
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		if rid == "" {
			return c.Next()
		}
		c.SetUserContext(logging.WithLogger(c.UserContext(), base.With("request_id", rid)))
		return c.Next()
	}
}

// LoggerFromCtx extracts the per-request logger, falling back to the default.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
