package training

import (
	"time"

	"github.com/permitprep/backend/internal/models"
)

// ApplyAnswer returns the state that follows answering id. A correct answer
// masters id and clears it from the wrong queue. A wrong answer moves id to
// the back of the queue, so the queue never holds duplicates.
func ApplyAnswer(state models.MasteryState, id string, correct bool, now time.Time) models.MasteryState {
	next := state.Clone()
	next.WrongQueue = removeID(next.WrongQueue, id)

	if correct {
		if !containsID(next.MasteredIDs, id) {
			next.MasteredIDs = append(next.MasteredIDs, id)
		}
		delete(next.ServedAnswers, id)
	} else if !containsID(next.MasteredIDs, id) {
		next.WrongQueue = append(next.WrongQueue, id)
	}

	next.UpdatedAt = now
	return next
}

// MarkServed records the question handed out and the letter its correct
// option carried in that presentation. The letter is kept until id is
// mastered, so serving other questions in between does not lose it.
func MarkServed(state models.MasteryState, id, correctLetter string, now time.Time) models.MasteryState {
	next := state.Clone()
	next.LastServedID = id
	next.ServedAnswers[id] = correctLetter
	next.UpdatedAt = now
	return next
}

// ResetMastery clears mastered and queued questions, returning the set to
// its initial state.
func ResetMastery(state models.MasteryState, now time.Time) models.MasteryState {
	return models.MasteryState{
		MasteredIDs:   []string{},
		WrongQueue:    []string{},
		ServedAnswers: map[string]string{},
		UpdatedAt:     now,
	}
}

// ExpectedAnswer returns the letter a submission for q is graded against:
// the letter of its latest presentation, else the bank key.
func ExpectedAnswer(state models.MasteryState, q models.Question) string {
	if letter := state.ServedAnswers[q.ID]; letter != "" {
		return letter
	}
	return q.CorrectAnswer
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
