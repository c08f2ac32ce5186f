package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/doteapp/dote/internal/adapters/http"
	"github.com/doteapp/dote/internal/adapters/memory"
	natsadapter "github.com/doteapp/dote/internal/adapters/nats"
	"github.com/doteapp/dote/internal/adapters/postgres"
	"github.com/doteapp/dote/internal/adapters/valkey"
	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/core/ports"
	"github.com/doteapp/dote/internal/core/usecases"
	"github.com/doteapp/dote/internal/pkg/config"
	"github.com/doteapp/dote/internal/pkg/geospatial"
	"github.com/doteapp/dote/internal/pkg/logging"
	"github.com/doteapp/dote/internal/pkg/metrics"
	"github.com/doteapp/dote/internal/pkg/telemetry"
	"github.com/doteapp/dote/internal/workflows"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// stores groups the repositories of one database driver.
type stores struct {
	walks       ports.WalkRepository
	territories ports.TerritoryRepository
	ledger      ports.CurrencyLedger
	db          *postgres.DB
}

func main() {
	cfg, err := config.Load("dote-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)
	http.Version = version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if st.db != nil {
		defer st.db.Close()
		go reportPoolStats(ctx, st.db)
	}

	// Cache
	var cache ports.CacheService
	var cachePinger http.Pinger
	if vc, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, serving without cache", "error", err)
	} else {
		defer vc.Close()
		cache, cachePinger = vc, vc
	}

	// NATS
	var publisher ports.EventPublisher
	var notifier ports.AchievementNotifier
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, live previews and collar ingest disabled", "error", err)
	} else {
		defer pub.Close()
		publisher, notifier = pub, pub
	}

	// Rewards
	rewardSvc := usecases.NewRewardService(st.ledger, notifier, st.territories, st.walks)
	var rewards ports.RewardDispatcher = rewardSvc
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, crediting rewards inline", "error", err)
		} else {
			defer tc.Close()
			rewards = workflows.NewTemporalDispatcher(tc, cfg.Temporal.TaskQueue)
		}
	}

	validator := geospatial.Validator{
		MinAreaKm2:         cfg.Territory.MinAreaKm2,
		MaxAreaKm2:         cfg.Territory.MaxAreaKm2,
		VertexToleranceDeg: cfg.Territory.VertexToleranceDeg,
	}
	walkCfg := usecases.WalkConfig{
		Validator:        validator,
		PreviewEvery:     cfg.Territory.PreviewEvery,
		PointFlushBatch:  cfg.Territory.PointFlushBatch,
		DegeneratePolicy: cfg.Territory.DegeneratePolicy,
		PawsPerKm2:       cfg.Territory.PawsPerKm2,
	}

	walkSvc := usecases.NewWalkService(st.walks, st.territories, rewards, publisher, cache, walkCfg, slog.Default())
	territorySvc := usecases.NewTerritoryService(st.territories, st.walks, cache, validator, slog.Default())

	deps := &http.Dependencies{
		Walks:       walkSvc,
		Territories: territorySvc,
		Ledger:      st.ledger,
		DB:          st.db,
		Cache:       cachePinger,
		JWTSecret:   cfg.Auth.JWTSecret,
	}

	if pub != nil {
		// Raw NATS connection for WebSocket relay
		natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			defer natsConn.Close()
			deps.NATS = natsConn
		}

		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			subscribe(ctx, sub, walkSvc, territorySvc)
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Dote API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.dote.app",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "driver", cfg.Database.Driver, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String(), "active_walks", walkSvc.ActiveWalks())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	cancel()

	slog.Info("server stopped")
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (stores, error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory store, data is lost on restart")
		m := memory.New()
		return stores{walks: m, territories: m, ledger: m}, nil
	}

	db, err := postgres.New(ctx, cfg.DSN())
	if err != nil {
		return stores{}, err
	}
	return stores{
		walks:       postgres.NewWalkRepo(db),
		territories: postgres.NewTerritoryRepo(db),
		ledger:      postgres.NewLedgerRepo(db),
		db:          db,
	}, nil
}

// subscribe feeds collar fixes into active walks and warms the territory
// cache after each completed walk.
func subscribe(ctx context.Context, sub *natsadapter.Subscriber, walks *usecases.WalkService, territories *usecases.TerritoryService) {
	if err := sub.SubscribeCollarFixes(ctx, walks.IngestCollarFix); err != nil {
		slog.Warn("collar fix subscription failed", "error", err)
	}
	err := sub.SubscribeWalkCompleted(ctx, func(ctx context.Context, session *domain.WalkSession) error {
		_, err := territories.GetTerritory(ctx, session.DogID)
		return err
	})
	if err != nil {
		slog.Warn("walk completed subscription failed", "error", err)
	}
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		}
	}
}
