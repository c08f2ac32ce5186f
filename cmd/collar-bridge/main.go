package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mqttadapter "github.com/doteapp/dote/internal/adapters/mqtt"
	natsadapter "github.com/doteapp/dote/internal/adapters/nats"
	"github.com/doteapp/dote/internal/pkg/config"
	"github.com/doteapp/dote/internal/pkg/logging"
)

// collar-bridge subscribes to collar GPS fixes on MQTT and republishes
// them to NATS, where the API appends them to the dog's active walk.
func main() {
	cfg, err := config.Load("dote-collar-bridge")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	bridge := mqttadapter.NewCollarBridge(cfg.MQTT, pub.PublishCollarFix, slog.Default())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		slog.Info("received signal, shutting down collar bridge", "signal", sig.String())
		cancel()
	}()

	if err := bridge.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Fatalf("mqtt: %v", err)
	}
	defer bridge.Disconnect()

	slog.Info("collar bridge running", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	<-ctx.Done()
}
