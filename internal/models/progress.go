package models

import "time"

// OnboardingSet is the set key used by the whole-bank warm-up drill.
const OnboardingSet = "onboarding"

// MasteryKey addresses one mastery state: a user's progress through one
// training set (or onboarding) in one jurisdiction.
type MasteryKey struct {
	UserID       int64
	Jurisdiction string
	Set          string
}

// MasteryState is the persisted adaptive-repetition state for one key.
// MasteredIDs keeps mastering order; WrongQueue is FIFO. ServedAnswers holds
// the correct letter of each unmastered question as it was last presented.
type MasteryState struct {
	MasteredIDs   []string          `json:"mastered_ids"`
	WrongQueue    []string          `json:"wrong_queue"`
	LastServedID  string            `json:"last_served_id,omitempty"`
	ServedAnswers map[string]string `json:"-"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// MasteredSet returns MasteredIDs as a lookup set.
func (s MasteryState) MasteredSet() map[string]bool {
	set := make(map[string]bool, len(s.MasteredIDs))
	for _, id := range s.MasteredIDs {
		set[id] = true
	}
	return set
}

// Clone returns a deep copy so callers can derive a new state without
// aliasing the slices of the old one.
func (s MasteryState) Clone() MasteryState {
	out := s
	out.MasteredIDs = append([]string(nil), s.MasteredIDs...)
	out.WrongQueue = append([]string(nil), s.WrongQueue...)
	out.ServedAnswers = make(map[string]string, len(s.ServedAnswers))
	for id, letter := range s.ServedAnswers {
		out.ServedAnswers[id] = letter
	}
	return out
}

type AttemptRecord struct {
	Jurisdiction  string    `json:"jurisdiction"`
	TestIndex     int       `json:"test_index"`
	AttemptCount  int       `json:"attempt_count"`
	FirstScore    int       `json:"first_score"`
	BestScore     int       `json:"best_score"`
	LastScore     int       `json:"last_score"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

type TrainingTally struct {
	CorrectCount        int       `json:"correct_count"`
	IncorrectCount      int       `json:"incorrect_count"`
	CurrentStreak       int       `json:"current_streak"`
	BestStreak          int       `json:"best_streak"`
	TotalCorrectAllTime int       `json:"total_correct_all_time"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ── Training Request/Response Types ─────────────────────

type SetProgress struct {
	Total    int  `json:"total"`
	Mastered int  `json:"mastered"`
	Pending  int  `json:"pending_review"`
	Complete bool `json:"complete"`
}

type NextQuestionResponse struct {
	Question       *ServedQuestion `json:"question,omitempty"`
	Requeued       bool            `json:"requeued"`
	Complete       bool            `json:"complete"`
	CycleCompleted bool            `json:"cycle_completed,omitempty"`
	Progress       SetProgress     `json:"progress"`
}

type TrainingAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Selected   string `json:"selected"`
}

type TrainingAnswerResponse struct {
	Correct       bool           `json:"correct"`
	CorrectAnswer string         `json:"correct_answer"`
	CorrectText   string         `json:"correct_text"`
	Explanation   string         `json:"explanation,omitempty"`
	Progress      SetProgress    `json:"progress"`
	Tally         *TrainingTally `json:"tally,omitempty"`
}

// ── Progress Overview ─────────────────────────────────

type ProgressOverview struct {
	Jurisdiction       string          `json:"jurisdiction"`
	Attempts           []AttemptRecord `json:"attempts"`
	Tally              TrainingTally   `json:"tally"`
	PassProbability    int             `json:"pass_probability"`
	OnboardingUnlocked bool            `json:"onboarding_unlocked"`
}
