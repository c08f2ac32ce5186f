package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on
// endpoint, unless the handler already set one.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"

		case path == "/metrics":
			ttl = "no-cache"

		case strings.HasPrefix(path, "/v1/walks/"):
			// finished walks never change
			ttl = "private, max-age=3600"

		case strings.HasPrefix(path, "/v1/dogs/") && strings.HasSuffix(path, "/walks"):
			ttl = "private, max-age=0"

		case strings.HasPrefix(path, "/v1/dogs/"):
			// territory moves after every walk
			ttl = "public, max-age=30"

		case strings.HasPrefix(path, "/v1/leaderboard"):
			ttl = "public, max-age=60"

		case path == "/docs" || path == "/docs/openapi.yaml":
			ttl = "public, max-age=3600"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}

		return err
	}
}
