package models

import (
	"strings"
	"time"
)

// UniversalJurisdiction tags questions that apply to every jurisdiction.
const UniversalJurisdiction = "ALL"

// OptionLetters is the fixed label order for the four answer options.
var OptionLetters = []string{"A", "B", "C", "D"}

// OptionCount is the number of options every question carries.
const OptionCount = 4

// ── Core Structs ───────────────────────────────────────

type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

type Question struct {
	ID            string   `json:"id"`
	Jurisdiction  string   `json:"jurisdiction"`
	Category      string   `json:"category"`
	Prompt        string   `json:"prompt"`
	Options       []Option `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// IsUniversal reports whether q belongs to the shared pool.
func (q Question) IsUniversal() bool {
	return q.Jurisdiction == UniversalJurisdiction
}

// OptionText returns the text behind letter.
func (q Question) OptionText(letter string) (string, bool) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	for _, o := range q.Options {
		if o.Letter == letter {
			return o.Text, true
		}
	}
	return "", false
}

// CorrectText returns the text of the correct option.
func (q Question) CorrectText() string {
	text, _ := q.OptionText(q.CorrectAnswer)
	return text
}

// Distractors returns the texts of every incorrect option, in option order.
func (q Question) Distractors() []string {
	out := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o.Letter != q.CorrectAnswer {
			out = append(out, o.Text)
		}
	}
	return out
}

// ToServed strips the answer key for delivery to a learner.
func (q Question) ToServed() ServedQuestion {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return ServedQuestion{
		ID:           q.ID,
		Jurisdiction: q.Jurisdiction,
		Category:     q.Category,
		Prompt:       q.Prompt,
		Options:      opts,
	}
}

// IsValidLetter reports whether s names one of the four option slots.
func IsValidLetter(s string) bool {
	for _, l := range OptionLetters {
		if s == l {
			return true
		}
	}
	return false
}

// QuestionIDs returns the identifiers of qs in order.
func QuestionIDs(qs []Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

// ── Serving Types (strip answers) ─────────────────────

type ServedQuestion struct {
	ID           string   `json:"id"`
	Jurisdiction string   `json:"jurisdiction"`
	Category     string   `json:"category"`
	Prompt       string   `json:"prompt"`
	Options      []Option `json:"options"`
}

// ── Test Session Types ────────────────────────────────

type TestSession struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	Jurisdiction string     `json:"jurisdiction"`
	TestIndex    int        `json:"test_index"`
	QuestionIDs  []string   `json:"question_ids"`
	StartedAt    time.Time  `json:"started_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	Score        *int       `json:"score,omitempty"`
	TimedOut     bool       `json:"timed_out"`
}

type TestSessionResponse struct {
	SessionID        string           `json:"session_id"`
	Jurisdiction     string           `json:"jurisdiction"`
	TestIndex        int              `json:"test_index"`
	Questions        []ServedQuestion `json:"questions"`
	TimeLimitSeconds int              `json:"time_limit_seconds"`
	ExpiresAt        time.Time        `json:"expires_at"`
	Submitted        bool             `json:"submitted"`
}

type SubmitTestRequest struct {
	Answers map[string]string `json:"answers"`
}

type ReviewItem struct {
	QuestionID    string `json:"question_id"`
	Selected      string `json:"selected,omitempty"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
	Explanation   string `json:"explanation,omitempty"`
}

type TestResult struct {
	SessionID    string         `json:"session_id"`
	Jurisdiction string         `json:"jurisdiction"`
	TestIndex    int            `json:"test_index"`
	Score        int            `json:"score"`
	Total        int            `json:"total"`
	PassingScore int            `json:"passing_score"`
	Passed       bool           `json:"passed"`
	TimedOut     bool           `json:"timed_out"`
	Review       []ReviewItem   `json:"review"`
	Attempt      *AttemptRecord `json:"attempt,omitempty"`
}

// ── Export/Import Types ──────────────────────────────────

type BankEnvelope struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Questions  []Question `json:"questions"`
}

type ImportResult struct {
	TotalInPayload int      `json:"total_in_payload"`
	Imported       int      `json:"imported"`
	Updated        int      `json:"updated"`
	Skipped        int      `json:"skipped"`
	Errors         []string `json:"errors,omitempty"`
}
