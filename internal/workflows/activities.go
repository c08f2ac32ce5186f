package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/core/usecases"
)

// RewardActivities holds the activity implementations for the reward
// workflow. The ledger write is idempotent per session, so retries are safe.
type RewardActivities struct {
	Rewards *usecases.RewardService
}

// CreditPaws writes the ledger entry for the walk.
func (a *RewardActivities) CreditPaws(ctx context.Context, reward domain.Reward) error {
	return nonRetryableInput(a.Rewards.CreditPaws(ctx, reward))
}

// NotifyAchievements sends the dog's cumulative totals to the evaluator.
func (a *RewardActivities) NotifyAchievements(ctx context.Context, reward domain.Reward) error {
	return nonRetryableInput(a.Rewards.NotifyAchievements(ctx, reward))
}

// nonRetryableInput stops Temporal from retrying a reward that can never
// succeed, such as one without a walker.
func nonRetryableInput(err error) error {
	if err != nil && errors.Is(err, domain.ErrInvalidInput) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
	}
	return err
}
