package ports

import (
	"context"

	"github.com/doteapp/dote/internal/core/domain"
)

// WalkRepository persists walk sessions and their GPS points.
type WalkRepository interface {
	CreateSession(ctx context.Context, session *domain.WalkSession) error
	// AppendPoints stores points idempotently by (session, seq).
	AppendPoints(ctx context.Context, points []domain.WalkPoint) error
	GetSession(ctx context.Context, id string) (*domain.WalkSession, error)
	// ActiveSessionForDog returns domain.ErrNotFound when the dog is not walking.
	ActiveSessionForDog(ctx context.Context, dogID string) (*domain.WalkSession, error)
	ListPoints(ctx context.Context, sessionID string) ([]domain.WalkPoint, error)
	ListByDog(ctx context.Context, dogID string, offset, limit int) ([]domain.WalkSession, error)
	CancelSession(ctx context.Context, session *domain.WalkSession) error
	// CompleteWalk marks the session completed and, when territory is not
	// nil, saves it in the same transaction. It returns
	// domain.ErrVersionConflict when the stored territory version no longer
	// matches expectedVersion.
	CompleteWalk(ctx context.Context, session *domain.WalkSession, territory *domain.Territory, expectedVersion int64) error
	DogTotals(ctx context.Context, dogID string) (domain.DogTotals, error)
	CompletedSessionIDs(ctx context.Context, dogID string) ([]string, error)
}

// TerritoryRepository persists the cumulative territory of each dog.
type TerritoryRepository interface {
	// Get returns nil, nil when the dog has no territory yet.
	Get(ctx context.Context, dogID string) (*domain.Territory, error)
	// Save writes t when the stored version equals expectedVersion and bumps
	// t.Version. A mismatch yields domain.ErrVersionConflict.
	Save(ctx context.Context, t *domain.Territory, expectedVersion int64) error
	TopByArea(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	DogIDs(ctx context.Context) ([]string, error)
}

// CurrencyLedger credits Paws. Credits are idempotent per session.
type CurrencyLedger interface {
	CreditCurrency(ctx context.Context, credit domain.PawsCredit) error
	Balance(ctx context.Context, userID string) (int64, error)
}
