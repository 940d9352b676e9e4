package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/permitprep/backend/internal/models"
	"github.com/permitprep/backend/internal/questions"
)

var (
	ErrLocked        = errors.New("training sets unlock after onboarding")
	ErrNotInSet      = errors.New("question is not part of this set")
	ErrInvalidAnswer = errors.New("selected answer must be one of A, B, C, D")
)

// TallyRecorder keeps the per-user training counters that gate set access.
type TallyRecorder interface {
	RecordTrainingAnswer(ctx context.Context, userID int64, correct bool) (*models.TrainingTally, error)
	Tally(ctx context.Context, userID int64) (*models.TrainingTally, error)
}

// Target names one training pool: a numbered set, or onboarding when
// SetIndex is zero.
type Target struct {
	Jurisdiction string
	SetIndex     int
}

func (t Target) mode() Mode {
	if t.SetIndex == 0 {
		return ModeOnboarding
	}
	return ModeSet
}

func (t Target) key(userID int64) models.MasteryKey {
	set := models.OnboardingSet
	if t.SetIndex > 0 {
		set = fmt.Sprintf("set-%d", t.SetIndex)
	}
	return models.MasteryKey{UserID: userID, Jurisdiction: t.Jurisdiction, Set: set}
}

type Service struct {
	repo            Repository
	catalog         *questions.Catalog
	tallies         TallyRecorder
	unlockThreshold int
	now             func() time.Time
}

func NewService(repo Repository, catalog *questions.Catalog, tallies TallyRecorder, unlockThreshold int) *Service {
	log.Printf("[training] onboarding unlock threshold=%d", unlockThreshold)
	return &Service{
		repo:            repo,
		catalog:         catalog,
		tallies:         tallies,
		unlockThreshold: unlockThreshold,
		now:             time.Now,
	}
}

func (s *Service) pool(t Target) ([]models.Question, error) {
	bank := s.catalog.Bank()
	if t.SetIndex == 0 {
		return bank.Pool(t.Jurisdiction), nil
	}
	return bank.Subset(t.Jurisdiction, t.SetIndex)
}

func (s *Service) checkUnlocked(ctx context.Context, userID int64, t Target) error {
	if t.SetIndex == 0 || s.unlockThreshold <= 0 || s.tallies == nil {
		return nil
	}
	tally, err := s.tallies.Tally(ctx, userID)
	if err != nil {
		return fmt.Errorf("load tally: %w", err)
	}
	if tally.TotalCorrectAllTime < s.unlockThreshold {
		return ErrLocked
	}
	return nil
}

// ── Question Selection ──────────────────────────────────

// Next serves the next question for t. Mastery state is read and written
// inside one repository update so it always reflects the latest answer.
func (s *Service) Next(ctx context.Context, userID int64, t Target) (*models.NextQuestionResponse, error) {
	pool, err := s.pool(t)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnlocked(ctx, userID, t); err != nil {
		return nil, err
	}

	var sel Selection
	state, err := s.repo.UpdateMastery(ctx, t.key(userID), func(current models.MasteryState) (models.MasteryState, error) {
		now := s.now()
		sel = Select(t.mode(), pool, current, now)
		if !sel.Found {
			return sel.State, nil
		}
		if sel.Requeued {
			sel.Question = questions.ShuffleOptions(sel.Question)
		}
		return MarkServed(sel.State, sel.Question.ID, sel.Question.CorrectAnswer, now), nil
	})
	if err != nil {
		return nil, fmt.Errorf("select question: %w", err)
	}

	if sel.Cycled {
		log.Printf("[training] user %d cycled onboarding pool for %s (%d questions)", userID, t.Jurisdiction, len(pool))
	}

	resp := &models.NextQuestionResponse{
		Complete:       !sel.Found,
		CycleCompleted: sel.Cycled,
		Requeued:       sel.Requeued,
		Progress:       Progress(pool, *state),
	}
	if sel.Found {
		served := sel.Question.ToServed()
		resp.Question = &served
	}
	return resp, nil
}

// ── Answer Submission ───────────────────────────────────

func (s *Service) Answer(ctx context.Context, userID int64, t Target, req models.TrainingAnswerRequest) (*models.TrainingAnswerResponse, error) {
	selected := strings.ToUpper(strings.TrimSpace(req.Selected))
	if !models.IsValidLetter(selected) {
		return nil, ErrInvalidAnswer
	}
	pool, err := s.pool(t)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnlocked(ctx, userID, t); err != nil {
		return nil, err
	}

	q, ok := findQuestion(pool, req.QuestionID)
	if !ok {
		return nil, ErrNotInSet
	}

	var correct bool
	var expected string
	state, err := s.repo.UpdateMastery(ctx, t.key(userID), func(current models.MasteryState) (models.MasteryState, error) {
		expected = ExpectedAnswer(current, q)
		correct = selected == expected
		return ApplyAnswer(current, q.ID, correct, s.now()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	resp := &models.TrainingAnswerResponse{
		Correct:       correct,
		CorrectAnswer: expected,
		CorrectText:   q.CorrectText(),
		Explanation:   q.Explanation,
		Progress:      Progress(pool, *state),
	}

	if s.tallies != nil {
		tally, err := s.tallies.RecordTrainingAnswer(ctx, userID, correct)
		if err != nil {
			log.Printf("WARN: failed to update training tally for user %d: %v", userID, err)
		} else {
			resp.Tally = tally
		}
	}

	return resp, nil
}

// ── Reset & Progress ────────────────────────────────────

// Reset clears mastered and queued questions for t ("practice again").
func (s *Service) Reset(ctx context.Context, userID int64, t Target) (*models.SetProgress, error) {
	pool, err := s.pool(t)
	if err != nil {
		return nil, err
	}
	state, err := s.repo.UpdateMastery(ctx, t.key(userID), func(current models.MasteryState) (models.MasteryState, error) {
		return ResetMastery(current, s.now()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset set: %w", err)
	}
	p := Progress(pool, *state)
	return &p, nil
}

func (s *Service) Progress(ctx context.Context, userID int64, t Target) (*models.SetProgress, error) {
	pool, err := s.pool(t)
	if err != nil {
		return nil, err
	}
	state, err := s.repo.GetMastery(ctx, t.key(userID))
	if err != nil {
		return nil, fmt.Errorf("load mastery: %w", err)
	}
	p := Progress(pool, *state)
	return &p, nil
}

func findQuestion(pool []models.Question, id string) (models.Question, bool) {
	for _, q := range pool {
		if q.ID == id {
			return q, true
		}
	}
	return models.Question{}, false
}
