package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/doteapp/dote/internal/core/domain"
)

// RewardWorkflow credits Paws for a committed walk, then tells the
// achievement evaluator. A failed notification does not fail the workflow:
// the evaluator reads cumulative totals, so the next walk catches it up.
func RewardWorkflow(ctx workflow.Context, reward domain.Reward) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting reward workflow", "session", reward.SessionID, "paws", reward.PawsEarned)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	if err := workflow.ExecuteActivity(ctx, "CreditPaws", reward).Get(ctx, nil); err != nil {
		return err
	}

	if err := workflow.ExecuteActivity(ctx, "NotifyAchievements", reward).Get(ctx, nil); err != nil {
		logger.Warn("achievement notification failed", "session", reward.SessionID, "error", err)
	}

	logger.Info("Reward delivered", "session", reward.SessionID)
	return nil
}

// Register adds the reward workflow and its activities to a worker.
func Register(r worker.Registry, activities *RewardActivities) {
	r.RegisterWorkflow(RewardWorkflow)
	r.RegisterActivity(activities)
}
