package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/doteapp/dote/internal/adapters/nats"
	"github.com/doteapp/dote/internal/adapters/postgres"
	"github.com/doteapp/dote/internal/core/ports"
	"github.com/doteapp/dote/internal/core/usecases"
	"github.com/doteapp/dote/internal/pkg/config"
	"github.com/doteapp/dote/internal/pkg/logging"
	"github.com/doteapp/dote/internal/workflows"
)

func main() {
	cfg, err := config.Load("dote-rewarder")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	if cfg.Database.Driver != "postgres" {
		log.Fatalf("rewarder needs the postgres driver, got %q", cfg.Database.Driver)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var notifier ports.AchievementNotifier
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, achievements will not be notified", "error", err)
	} else {
		defer pub.Close()
		notifier = pub
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	rewards := usecases.NewRewardService(
		postgres.NewLedgerRepo(db),
		notifier,
		postgres.NewTerritoryRepo(db),
		postgres.NewWalkRepo(db),
	)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	workflows.Register(w, &workflows.RewardActivities{Rewards: rewards})

	slog.Info("rewarder worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
