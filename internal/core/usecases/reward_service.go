package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/core/ports"
	"github.com/doteapp/dote/internal/pkg/metrics"
)

// RewardService credits Paws and reports territory progress after a walk.
// It is the inline RewardDispatcher and also backs the reward workflow
// activities.
type RewardService struct {
	ledger      ports.CurrencyLedger
	notifier    ports.AchievementNotifier
	territories ports.TerritoryRepository
	walks       ports.WalkRepository
}

// NewRewardService creates a new RewardService. notifier may be nil.
func NewRewardService(
	ledger ports.CurrencyLedger,
	notifier ports.AchievementNotifier,
	territories ports.TerritoryRepository,
	walks ports.WalkRepository,
) *RewardService {
	return &RewardService{
		ledger:      ledger,
		notifier:    notifier,
		territories: territories,
		walks:       walks,
	}
}

// DispatchReward credits the walker and then notifies the achievement
// evaluator. Both steps are attempted; their errors are joined.
func (s *RewardService) DispatchReward(ctx context.Context, reward domain.Reward) error {
	creditErr := s.CreditPaws(ctx, reward)
	notifyErr := s.NotifyAchievements(ctx, reward)
	return errors.Join(creditErr, notifyErr)
}

// CreditPaws writes the ledger entry for a walk. Walks that earned nothing
// are skipped.
func (s *RewardService) CreditPaws(ctx context.Context, reward domain.Reward) error {
	if reward.PawsEarned <= 0 {
		return nil
	}
	if reward.WalkerID == "" {
		return fmt.Errorf("credit paws for %s: %w", reward.SessionID, &domain.InputError{Reason: "walker id is required"})
	}

	credit := domain.PawsCredit{
		UserID:    reward.WalkerID,
		SessionID: reward.SessionID,
		Amount:    reward.PawsEarned,
		Reason:    fmt.Sprintf("territory gained on walk %s", reward.SessionID),
	}
	if err := s.ledger.CreditCurrency(ctx, credit); err != nil {
		return fmt.Errorf("credit paws: %w", err)
	}
	metrics.PawsCredited.Add(float64(reward.PawsEarned))
	return nil
}

// NotifyAchievements sends the dog's new cumulative totals.
func (s *RewardService) NotifyAchievements(ctx context.Context, reward domain.Reward) error {
	if s.notifier == nil {
		return nil
	}
	progress, err := s.Progress(ctx, reward)
	if err != nil {
		return err
	}
	if err := s.notifier.NotifyProgress(ctx, progress); err != nil {
		return fmt.Errorf("notify progress: %w", err)
	}
	return nil
}

// Progress builds the evaluator payload from stored totals.
func (s *RewardService) Progress(ctx context.Context, reward domain.Reward) (*domain.TerritoryProgress, error) {
	t, err := s.territories.Get(ctx, reward.DogID)
	if err != nil {
		return nil, fmt.Errorf("get territory: %w", err)
	}
	totals, err := s.walks.DogTotals(ctx, reward.DogID)
	if err != nil {
		return nil, fmt.Errorf("dog totals: %w", err)
	}

	progress := &domain.TerritoryProgress{
		DogID:           reward.DogID,
		WalkerID:        reward.WalkerID,
		SessionID:       reward.SessionID,
		TotalDistanceKm: totals.TotalDistanceKm,
		CompletedWalks:  totals.CompletedWalks,
		GainedKm2:       reward.GainedKm2,
		PawsEarned:      reward.PawsEarned,
		At:              time.Now().UTC(),
	}
	if t != nil {
		progress.TotalTerritoryKm2 = t.AreaKm2
	}
	return progress, nil
}
