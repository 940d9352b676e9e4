package training

import (
	"time"

	"github.com/permitprep/backend/internal/models"
)

// Mode distinguishes fixed checklist sets from the open-ended onboarding drill.
type Mode int

const (
	// ModeSet finishes in a terminal Complete state until explicitly reset.
	ModeSet Mode = iota
	// ModeOnboarding cycles: exhausting the pool silently starts it over.
	ModeOnboarding
)

type Completion string

const (
	InProgress Completion = "in_progress"
	Complete   Completion = "complete"
)

// CompletionOf reports whether every question in pool is mastered.
func CompletionOf(pool []models.Question, state models.MasteryState) Completion {
	mastered := state.MasteredSet()
	for _, q := range pool {
		if !mastered[q.ID] {
			return InProgress
		}
	}
	return Complete
}

// Selection is the outcome of one selection step.
type Selection struct {
	Question models.Question
	Found    bool
	// Requeued is set when the question came back from the wrong queue.
	Requeued bool
	// Cycled is set when onboarding exhausted its pool and started over.
	Cycled bool
	State  models.MasteryState
}

// Select runs NextQuestion over pool for the given mode and returns the
// state to persist. In onboarding mode an exhausted pool is reset and
// selection retried within the same step.
func Select(mode Mode, pool []models.Question, state models.MasteryState, now time.Time) Selection {
	q, ok := NextQuestion(pool, state.MasteredSet(), state.WrongQueue, state.LastServedID)
	sel := Selection{State: state}

	if !ok && mode == ModeOnboarding && len(pool) > 0 {
		last := state.LastServedID
		sel.State = ResetMastery(state, now)
		sel.State.LastServedID = last
		sel.Cycled = true
		q, ok = NextQuestion(pool, nil, nil, last)
	}
	if !ok {
		return sel
	}

	sel.Question = q
	sel.Found = true
	sel.Requeued = InQueue(sel.State.WrongQueue, q.ID)
	return sel
}

// Progress summarizes state against pool. Only members of pool count, so
// stale IDs left behind by a bank change do not inflate the numbers.
func Progress(pool []models.Question, state models.MasteryState) models.SetProgress {
	mastered := state.MasteredSet()
	members := make(map[string]bool, len(pool))
	p := models.SetProgress{Total: len(pool)}

	for _, q := range pool {
		members[q.ID] = true
		if mastered[q.ID] {
			p.Mastered++
		}
	}
	for _, id := range state.WrongQueue {
		if members[id] && !mastered[id] {
			p.Pending++
		}
	}
	p.Complete = p.Total > 0 && p.Mastered == p.Total
	return p
}
