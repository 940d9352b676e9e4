package training

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/permitprep/backend/internal/models"
	"github.com/permitprep/backend/internal/questions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTallies struct {
	mu    sync.Mutex
	tally models.TrainingTally
}

func (f *fakeTallies) RecordTrainingAnswer(ctx context.Context, userID int64, correct bool) (*models.TrainingTally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if correct {
		f.tally.CorrectCount++
		f.tally.TotalCorrectAllTime++
	} else {
		f.tally.IncorrectCount++
	}
	t := f.tally
	return &t, nil
}

func (f *fakeTallies) Tally(ctx context.Context, userID int64) (*models.TrainingTally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tally
	return &t, nil
}

func newTestService(threshold int, ids ...string) (*Service, *fakeTallies) {
	tallies := &fakeTallies{}
	catalog := questions.NewCatalog(subsetOf(ids...))
	return NewService(NewMemoryStore(), catalog, tallies, threshold), tallies
}

func letterFor(q *models.ServedQuestion, text string) string {
	for _, o := range q.Options {
		if o.Text == text {
			return o.Letter
		}
	}
	return ""
}

func TestService_SetWalkthrough(t *testing.T) {
	ctx := context.Background()
	svc, tallies := newTestService(0, "CA-001", "CA-002", "CA-003")
	set := Target{Jurisdiction: "CA", SetIndex: 1}

	next, err := svc.Next(ctx, 1, set)
	require.NoError(t, err)
	require.NotNil(t, next.Question)
	assert.Equal(t, "CA-001", next.Question.ID)
	assert.Equal(t, 3, next.Progress.Total)

	ans, err := svc.Answer(ctx, 1, set, models.TrainingAnswerRequest{QuestionID: "CA-001", Selected: "b"})
	require.NoError(t, err)
	assert.False(t, ans.Correct)
	assert.Equal(t, "A", ans.CorrectAnswer)
	assert.Equal(t, 1, ans.Progress.Pending)

	for _, want := range []string{"CA-002", "CA-003"} {
		next, err = svc.Next(ctx, 1, set)
		require.NoError(t, err)
		require.Equal(t, want, next.Question.ID)
		assert.False(t, next.Requeued)

		ans, err = svc.Answer(ctx, 1, set, models.TrainingAnswerRequest{QuestionID: want, Selected: "A"})
		require.NoError(t, err)
		assert.True(t, ans.Correct)
	}

	// The missed question comes back with shuffled options; grading follows
	// the letters as served.
	next, err = svc.Next(ctx, 1, set)
	require.NoError(t, err)
	require.Equal(t, "CA-001", next.Question.ID)
	assert.True(t, next.Requeued)

	letter := letterFor(next.Question, "one")
	require.NotEmpty(t, letter)
	ans, err = svc.Answer(ctx, 1, set, models.TrainingAnswerRequest{QuestionID: "CA-001", Selected: letter})
	require.NoError(t, err)
	assert.True(t, ans.Correct)
	assert.Equal(t, letter, ans.CorrectAnswer)
	assert.True(t, ans.Progress.Complete)

	for i := 0; i < 2; i++ {
		next, err = svc.Next(ctx, 1, set)
		require.NoError(t, err)
		assert.True(t, next.Complete)
		assert.Nil(t, next.Question)
	}

	progress, err := svc.Reset(ctx, 1, set)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.Mastered)

	next, err = svc.Next(ctx, 1, set)
	require.NoError(t, err)
	assert.False(t, next.Complete)

	tally, _ := tallies.Tally(ctx, 1)
	assert.Equal(t, 3, tally.CorrectCount)
	assert.Equal(t, 1, tally.IncorrectCount)
}

func TestService_AnswerAfterServingAnotherQuestion(t *testing.T) {
	ctx := context.Background()
	set := Target{Jurisdiction: "CA", SetIndex: 1}

	// Shuffling is random; repeat so a presentation that moves the correct
	// option is all but certain to occur.
	for run := 0; run < 50; run++ {
		svc, _ := newTestService(0, "CA-001", "CA-002")
		for _, id := range []string{"CA-001", "CA-002"} {
			_, err := svc.Answer(ctx, 1, set, models.TrainingAnswerRequest{QuestionID: id, Selected: "D"})
			require.NoError(t, err)
		}

		first, err := svc.Next(ctx, 1, set)
		require.NoError(t, err)
		require.Equal(t, "CA-001", first.Question.ID)
		require.True(t, first.Requeued)

		second, err := svc.Next(ctx, 1, set)
		require.NoError(t, err)
		require.Equal(t, "CA-002", second.Question.ID)

		letter := letterFor(first.Question, "one")
		ans, err := svc.Answer(ctx, 1, set, models.TrainingAnswerRequest{QuestionID: "CA-001", Selected: letter})
		require.NoError(t, err)
		require.True(t, ans.Correct, "run %d: correct text under served letter %s", run, letter)
		assert.Equal(t, letter, ans.CorrectAnswer)
	}
}

func TestService_OnboardingCycles(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(0, "CA-001", "CA-002")
	onboarding := Target{Jurisdiction: "CA"}

	for _, id := range []string{"CA-001", "CA-002"} {
		next, err := svc.Next(ctx, 9, onboarding)
		require.NoError(t, err)
		require.Equal(t, id, next.Question.ID)
		_, err = svc.Answer(ctx, 9, onboarding, models.TrainingAnswerRequest{QuestionID: id, Selected: "A"})
		require.NoError(t, err)
	}

	next, err := svc.Next(ctx, 9, onboarding)
	require.NoError(t, err)
	assert.True(t, next.CycleCompleted)
	assert.False(t, next.Complete)
	require.NotNil(t, next.Question)
	assert.Equal(t, "CA-001", next.Question.ID)
	assert.Equal(t, 0, next.Progress.Mastered)
}

func TestService_SetsLockedUntilOnboarding(t *testing.T) {
	ctx := context.Background()
	svc, tallies := newTestService(2, "CA-001", "CA-002", "CA-003")
	set := Target{Jurisdiction: "CA", SetIndex: 1}

	_, err := svc.Next(ctx, 1, set)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = svc.Next(ctx, 1, Target{Jurisdiction: "CA"})
	require.NoError(t, err)

	tallies.RecordTrainingAnswer(ctx, 1, true)
	tallies.RecordTrainingAnswer(ctx, 1, true)

	_, err = svc.Next(ctx, 1, set)
	assert.NoError(t, err)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(0, "CA-001", "CA-002")

	_, err := svc.Next(ctx, 1, Target{Jurisdiction: "CA", SetIndex: 5})
	assert.ErrorIs(t, err, questions.ErrIndexOutOfRange)

	_, err = svc.Answer(ctx, 1, Target{Jurisdiction: "CA", SetIndex: 1},
		models.TrainingAnswerRequest{QuestionID: "TX-001", Selected: "A"})
	assert.ErrorIs(t, err, ErrNotInSet)

	_, err = svc.Answer(ctx, 1, Target{Jurisdiction: "CA", SetIndex: 1},
		models.TrainingAnswerRequest{QuestionID: "CA-001", Selected: "E"})
	assert.ErrorIs(t, err, ErrInvalidAnswer)
}

func TestService_ConcurrentAnswersAreNotLost(t *testing.T) {
	ctx := context.Background()
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("CA-%03d", i+1)
	}
	svc, _ := newTestService(0, ids...)
	set := Target{Jurisdiction: "CA", SetIndex: 1}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Answer(ctx, 1, set, models.TrainingAnswerRequest{QuestionID: id, Selected: "D"})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	progress, err := svc.Progress(ctx, 1, set)
	require.NoError(t, err)
	assert.Equal(t, 10, progress.Pending)
	assert.Equal(t, 0, progress.Mastered)
}
