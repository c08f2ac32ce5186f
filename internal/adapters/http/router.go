package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/doteapp/dote/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// deprecatedRoutes lists endpoints kept for old app versions.
var deprecatedRoutes = []DeprecatedRoute{
	{
		Path:        "/v1/dogs/:id/area",
		SunsetDate:  time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC),
		Alternative: "/v1/dogs/:id/stats",
	},
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(AuthMiddleware(deps.JWTSecret))
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// GPS uploads are chatty, so the limit is per user when known.
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if uid := currentUser(c); uid != "" {
				return "user:" + uid
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware(deprecatedRoutes))

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Walks
	v1.Post("/walks", RequireUser(), timeout.NewWithContext(StartWalkHandler(deps), requestTimeout))
	v1.Get("/walks/:id", timeout.NewWithContext(GetWalkHandler(deps), requestTimeout))
	v1.Post("/walks/:id/points", timeout.NewWithContext(AddPointsHandler(deps), requestTimeout))
	v1.Post("/walks/:id/end", timeout.NewWithContext(EndWalkHandler(deps), requestTimeout))
	v1.Post("/walks/:id/cancel", timeout.NewWithContext(CancelWalkHandler(deps), requestTimeout))

	// Dogs
	v1.Get("/dogs/:id/walks", timeout.NewWithContext(DogWalksHandler(deps), requestTimeout))
	v1.Get("/dogs/:id/territory", timeout.NewWithContext(TerritoryHandler(deps), requestTimeout))
	v1.Get("/dogs/:id/territory.kml", timeout.NewWithContext(TerritoryKMLHandler(deps), requestTimeout))
	v1.Get("/dogs/:id/stats", timeout.NewWithContext(DogStatsHandler(deps), requestTimeout))
	v1.Get("/dogs/:id/area", timeout.NewWithContext(DogAreaHandler(deps), requestTimeout))

	v1.Get("/leaderboard/territory", timeout.NewWithContext(LeaderboardHandler(deps), requestTimeout))
	v1.Get("/me/balance", RequireUser(), timeout.NewWithContext(BalanceHandler(deps), requestTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// Live walk preview
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/walks/:id", websocket.New(WalkWebSocketHandler(deps)))
}
