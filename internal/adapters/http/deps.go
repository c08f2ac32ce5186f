package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/doteapp/dote/internal/adapters/postgres"
	"github.com/doteapp/dote/internal/core/usecases"
)

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BalanceReader reads a walker's Paws balance.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Walks       *usecases.WalkService
	Territories *usecases.TerritoryService
	Ledger      BalanceReader
	NATS        *nats.Conn
	DB          *postgres.DB // nil with the memory driver
	Cache       Pinger
	// JWTSecret enables bearer token auth. Empty means X-User-ID is trusted.
	JWTSecret string
}
