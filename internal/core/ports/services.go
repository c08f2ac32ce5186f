package ports

import (
	"context"

	"github.com/doteapp/dote/internal/core/domain"
)

// EventPublisher publishes walk events to a message broker.
type EventPublisher interface {
	PublishPreview(ctx context.Context, update *domain.PointUpdate) error
	PublishWalkCompleted(ctx context.Context, session *domain.WalkSession) error
	PublishCollarFix(ctx context.Context, fix *domain.CollarFix) error
}

// EventSubscriber subscribes to walk events from a message broker.
type EventSubscriber interface {
	SubscribeCollarFixes(ctx context.Context, handler func(ctx context.Context, fix *domain.CollarFix) error) error
	SubscribeWalkCompleted(ctx context.Context, handler func(ctx context.Context, session *domain.WalkSession) error) error
}

// AchievementNotifier tells the achievement evaluator about new totals.
// The evaluator decides on badge unlocks on its own.
type AchievementNotifier interface {
	NotifyProgress(ctx context.Context, progress *domain.TerritoryProgress) error
}

// RewardDispatcher delivers the reward of a committed walk to the ledger
// and the achievement evaluator.
type RewardDispatcher interface {
	DispatchReward(ctx context.Context, reward domain.Reward) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
