package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/doteapp/dote/internal/adapters/postgres"
	"github.com/doteapp/dote/internal/adapters/valkey"
	"github.com/doteapp/dote/internal/core/ports"
	"github.com/doteapp/dote/internal/core/usecases"
	"github.com/doteapp/dote/internal/pkg/config"
	"github.com/doteapp/dote/internal/pkg/geospatial"
	"github.com/doteapp/dote/internal/pkg/logging"
)

// rebuild recomputes stored territories from the points of completed walks.
//
//	rebuild            rebuild every dog with a territory
//	rebuild rex luna   rebuild the named dogs
func main() {
	cfg, err := config.Load("dote-rebuild")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	if cfg.Database.Driver != "postgres" {
		log.Fatalf("rebuild needs the postgres driver, got %q", cfg.Database.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Rebuilt territories must not be shadowed by cached ones.
	var cache ports.CacheService
	if vc, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, cached territories expire on their own", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	validator := geospatial.Validator{
		MinAreaKm2:         cfg.Territory.MinAreaKm2,
		MaxAreaKm2:         cfg.Territory.MaxAreaKm2,
		VertexToleranceDeg: cfg.Territory.VertexToleranceDeg,
	}
	svc := usecases.NewTerritoryService(
		postgres.NewTerritoryRepo(db),
		postgres.NewWalkRepo(db),
		cache,
		validator,
		slog.Default(),
	)

	dogs := os.Args[1:]
	if len(dogs) == 0 {
		done, err := svc.RebuildAll(ctx)
		if err != nil {
			log.Fatalf("rebuild all: %v (%d done)", err, done)
		}
		slog.Info("rebuild finished", "territories", done)
		return
	}

	var failed int
	for _, dogID := range dogs {
		if _, err := svc.Rebuild(ctx, dogID); err != nil {
			slog.Error("rebuild failed", "dog_id", dogID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d rebuilds failed", failed, len(dogs))
	}
	slog.Info("rebuild finished", "territories", len(dogs))
}
