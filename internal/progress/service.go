package progress

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/permitprep/backend/internal/models"
	"github.com/permitprep/backend/internal/questions"
)

type Service struct {
	repo            Repository
	unlockThreshold int
	now             func() time.Time
}

func NewService(repo Repository, unlockThreshold int) *Service {
	return &Service{repo: repo, unlockThreshold: unlockThreshold, now: time.Now}
}

// RecordTrainingAnswer updates the user's tally for one training answer.
func (s *Service) RecordTrainingAnswer(ctx context.Context, userID int64, correct bool) (*models.TrainingTally, error) {
	now := s.now()
	t, err := s.repo.UpdateTally(ctx, userID, func(cur models.TrainingTally) models.TrainingTally {
		return ApplyTrainingAnswer(cur, correct, now)
	})
	if err != nil {
		return nil, fmt.Errorf("record training answer: %w", err)
	}
	return t, nil
}

func (s *Service) Tally(ctx context.Context, userID int64) (*models.TrainingTally, error) {
	return s.repo.GetTally(ctx, userID)
}

// RecordAttempt folds one submitted test into the attempt record.
func (s *Service) RecordAttempt(ctx context.Context, userID int64, jurisdiction string, testIndex, score int) (*models.AttemptRecord, error) {
	rec, err := s.repo.RecordAttempt(ctx, userID, jurisdiction, testIndex, score, s.now())
	if err != nil {
		return nil, err
	}
	log.Printf("[progress] user %d %s test %d: score=%d best=%d attempts=%d",
		userID, jurisdiction, testIndex, score, rec.BestScore, rec.AttemptCount)
	return rec, nil
}

// Readiness returns the pass probability for jurisdiction.
func (s *Service) Readiness(ctx context.Context, userID int64, jurisdiction string) (int, error) {
	o, err := s.Overview(ctx, userID, jurisdiction)
	if err != nil {
		return 0, err
	}
	return o.PassProbability, nil
}

// Overview gathers attempts, tally and readiness for one jurisdiction.
func (s *Service) Overview(ctx context.Context, userID int64, jurisdiction string) (*models.ProgressOverview, error) {
	attempts, err := s.repo.ListAttempts(ctx, userID, jurisdiction)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	tally, err := s.repo.GetTally(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tally: %w", err)
	}
	if attempts == nil {
		attempts = []models.AttemptRecord{}
	}

	family := questions.FamilyFor(jurisdiction)
	return &models.ProgressOverview{
		Jurisdiction:       jurisdiction,
		Attempts:           attempts,
		Tally:              *tally,
		PassProbability:    PassProbability(attempts, *tally, family.SetSize()),
		OnboardingUnlocked: tally.TotalCorrectAllTime >= s.unlockThreshold,
	}, nil
}
