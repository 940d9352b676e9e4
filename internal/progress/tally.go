package progress

import (
	"time"

	"github.com/permitprep/backend/internal/models"
)

// ApplyTrainingAnswer returns the tally after one training answer.
func ApplyTrainingAnswer(t models.TrainingTally, correct bool, now time.Time) models.TrainingTally {
	if correct {
		t.CorrectCount++
		t.TotalCorrectAllTime++
		t.CurrentStreak++
		if t.CurrentStreak > t.BestStreak {
			t.BestStreak = t.CurrentStreak
		}
	} else {
		t.IncorrectCount++
		t.CurrentStreak = 0
	}
	t.UpdatedAt = now
	return t
}

// ApplyAttempt folds one completed test submission into rec.
func ApplyAttempt(rec models.AttemptRecord, score int, at time.Time) models.AttemptRecord {
	if rec.AttemptCount == 0 {
		rec.FirstScore = score
		rec.BestScore = score
	} else if score > rec.BestScore {
		rec.BestScore = score
	}
	rec.AttemptCount++
	rec.LastScore = score
	rec.LastAttemptAt = at
	return rec
}
