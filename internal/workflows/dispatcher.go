package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/doteapp/dote/internal/core/domain"
)

// TemporalDispatcher hands rewards to the reward workflow. The workflow id
// is derived from the session, so a second dispatch for the same walk
// attaches to the running or finished execution instead of paying twice.
type TemporalDispatcher struct {
	client    client.Client
	taskQueue string
}

// NewTemporalDispatcher creates a dispatcher on the given task queue.
func NewTemporalDispatcher(c client.Client, taskQueue string) *TemporalDispatcher {
	return &TemporalDispatcher{client: c, taskQueue: taskQueue}
}

// WorkflowID is the reward workflow id of a walk.
func WorkflowID(sessionID string) string {
	return "reward-" + sessionID
}

// DispatchReward starts the reward workflow and returns without waiting
// for it.
func (d *TemporalDispatcher) DispatchReward(ctx context.Context, reward domain.Reward) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(reward.SessionID),
		TaskQueue: d.taskQueue,
	}
	if _, err := d.client.ExecuteWorkflow(ctx, opts, RewardWorkflow, reward); err != nil {
		return fmt.Errorf("start reward workflow %s: %w", opts.ID, err)
	}
	return nil
}
