package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"github.com/doteapp/dote/internal/adapters/memory"
	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/core/usecases"
)

type recordingNotifier struct {
	progress []*domain.TerritoryProgress
	err      error
}

func (n *recordingNotifier) NotifyProgress(ctx context.Context, p *domain.TerritoryProgress) error {
	if n.err != nil {
		return n.err
	}
	n.progress = append(n.progress, p)
	return nil
}

func newActivities(notifier *recordingNotifier) (*RewardActivities, *memory.Store) {
	store := memory.New()
	return &RewardActivities{Rewards: usecases.NewRewardService(store, notifier, store, store)}, store
}

var reward = domain.Reward{
	SessionID:  "s-1",
	DogID:      "rex",
	WalkerID:   "walker-1",
	PawsEarned: 42,
	GainedKm2:  0.000042,
	DistanceKm: 1.2,
}

func TestRewardWorkflow_CreditsAndNotifies(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	notifier := &recordingNotifier{}
	activities, store := newActivities(notifier)
	env.RegisterActivity(activities)

	env.ExecuteWorkflow(RewardWorkflow, reward)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	balance, err := store.Balance(context.Background(), "walker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance)

	require.Len(t, notifier.progress, 1)
	assert.Equal(t, "rex", notifier.progress[0].DogID)
	assert.Equal(t, int64(42), notifier.progress[0].PawsEarned)
}

func TestRewardWorkflow_NotifyFailureStillCompletes(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	activities, store := newActivities(&recordingNotifier{err: errors.New("nats down")})
	env.RegisterActivity(activities)

	env.ExecuteWorkflow(RewardWorkflow, reward)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	balance, err := store.Balance(context.Background(), "walker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance)
}

func TestRewardWorkflow_CreditFailureFailsWorkflow(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	activities, _ := newActivities(&recordingNotifier{})
	env.RegisterActivity(activities)
	env.OnActivity(activities.CreditPaws, mock.Anything, mock.Anything).Return(errors.New("ledger unavailable"))

	env.ExecuteWorkflow(RewardWorkflow, reward)

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

func TestRewardWorkflow_MissingWalkerIsNotRetried(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	activities, _ := newActivities(&recordingNotifier{})
	env.RegisterActivity(activities)

	calls := 0
	env.SetOnActivityStartedListener(func(info *activity.Info, ctx context.Context, args converter.EncodedValues) {
		if info.ActivityType.Name == "CreditPaws" {
			calls++
		}
	})

	bad := reward
	bad.WalkerID = ""
	env.ExecuteWorkflow(RewardWorkflow, bad)

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 1, calls)
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "reward-s-1", WorkflowID("s-1"))
}
