package bankcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/permitprep/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanBank returns n well-formed questions with answers rotating A-D.
func cleanBank(n int) []models.Question {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			ID:           fmt.Sprintf("CA-%03d", i+1),
			Jurisdiction: "CA",
			Category:     "signs",
			Prompt:       fmt.Sprintf("Which sign is number %d?", i+1),
			Options: []models.Option{
				{Letter: "A", Text: "Stop sign"},
				{Letter: "B", Text: "Yield sign"},
				{Letter: "C", Text: "Merge sign"},
				{Letter: "D", Text: "Curve sign"},
			},
			CorrectAnswer: models.OptionLetters[i%4],
			Explanation:   "Read the shape first.",
		}
	}
	return qs
}

func issuesIn(t *testing.T, r *Report, category string) []Issue {
	t.Helper()
	c := r.Category(category)
	require.NotNil(t, c, "category %s not run", category)
	return c.Issues
}

func TestRun_CleanBankPasses(t *testing.T) {
	r := Run(cleanBank(12), Options{Expected: 12, Jurisdiction: "CA"})
	assert.True(t, r.Passed, "issues: %+v", r.Issues())
	assert.Equal(t, 12, r.Total)
	assert.Len(t, r.Categories, 7)
}

func TestCheckCount(t *testing.T) {
	r := Run(cleanBank(12), Options{Expected: 15})
	assert.False(t, r.Passed)
	assert.Len(t, issuesIn(t, r, CategoryCount), 1)

	r = Run(cleanBank(12), Options{})
	assert.Empty(t, issuesIn(t, r, CategoryCount), "zero expected skips the count")
}

func TestCheckRequiredFields(t *testing.T) {
	qs := cleanBank(2)
	qs[0].Category = ""
	qs[0].CorrectAnswer = "E"
	qs[1].Options = qs[1].Options[:3]

	issues := issuesIn(t, Run(qs, Options{}), CategoryRequired)
	require.Len(t, issues, 3)
	assert.Equal(t, "category", issues[0].Field)
	assert.Equal(t, "correct_answer", issues[1].Field)
	assert.Equal(t, "CA-002", issues[2].QuestionID)
	assert.Equal(t, CategoryRequired, issues[2].Category)
}

func TestCheckAnswerBalance(t *testing.T) {
	qs := cleanBank(20)
	assert.Empty(t, issuesIn(t, Run(qs, Options{}), CategoryAnswerBalance))

	// Push A to 40% and starve D.
	for i := range qs {
		if qs[i].CorrectAnswer == "D" && i < 15 {
			qs[i].CorrectAnswer = "A"
		}
	}
	issues := issuesIn(t, Run(qs, Options{}), CategoryAnswerBalance)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0].Message, "correct answer A")
	assert.Contains(t, issues[1].Message, "correct answer D")

	// Small files are not judged.
	small := cleanBank(4)
	for i := range small {
		small[i].CorrectAnswer = "A"
	}
	assert.Empty(t, issuesIn(t, Run(small, Options{}), CategoryAnswerBalance))
}

func TestBannedMatches(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"The fine is $250 for a first offense.", []string{"dollar amount"}},
		{"Minimum liability coverage is 15/30/5.", []string{"X/Y/Z figure"}},
		{"You receive 2 points on your record.", []string{"point value"}},
		{"Speeding adds 3 demerit points.", []string{"point value"}},
		{"Drivers under 21 may not have a BAC above 0.02%.", nil},
		{"Limits are 0.08/0.04/0.02 for adult, commercial and minor drivers.", nil},
		{"Renew within 30/60/90 days of notice.", nil},
		{"Stop at least 100 feet before the crossing.", nil},
	}

	for _, tt := range tests {
		var got []string
		for _, m := range bannedMatches(tt.text) {
			got = append(got, m.label)
		}
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestCheckPunctuation(t *testing.T) {
	qs := cleanBank(3)
	qs[0].Prompt = "Complete the sentence: you must yield to"
	qs[1].Prompt = "Pick the best answer:"
	qs[2].Explanation = "Always signal (even when alone)"

	issues := issuesIn(t, Run(qs, Options{}), CategoryPunctuation)
	require.Len(t, issues, 2)
	assert.Equal(t, "CA-001", issues[0].QuestionID)
	assert.Equal(t, "prompt", issues[0].Field)
	assert.Equal(t, "CA-003", issues[1].QuestionID)
	assert.Equal(t, "explanation", issues[1].Field)
}

func TestCheckIDFormat(t *testing.T) {
	qs := cleanBank(5)
	qs[1].ID = "CA-1"
	qs[2].ID = "TX-003"
	qs[3].ID = "CA-001"
	qs[4].ID = "CA-006"

	issues := issuesIn(t, Run(qs, Options{}), CategoryIDFormat)
	var msgs []string
	for _, i := range issues {
		msgs = append(msgs, i.Message)
	}
	assert.Equal(t, []string{
		"id must look like PREFIX-001",
		"prefix TX differs from CA",
		"duplicate id",
		"sequence gap: expected CA-002, found CA-006",
	}, msgs)
}

func TestCheckLengthBias(t *testing.T) {
	qs := cleanBank(2)
	qs[0].CorrectAnswer = "A"
	qs[0].Options[0].Text = "Stop completely, look both ways, then proceed"

	issues := issuesIn(t, Run(qs, Options{}), CategoryLengthBias)
	require.Len(t, issues, 1)
	assert.Equal(t, "CA-001", issues[0].QuestionID)
}

func TestCheckFile_MalformedRecordsCounted(t *testing.T) {
	data := []byte(`[
		{"id": "NY-001", "prompt": "Which lane is for passing?", "options": ["Left", "Right", "Center", "Shoulder"],
		 "answer": "A", "category": "lanes", "explanation": "Pass on the left."},
		{"id": "NY-002", "prompt": "Broken record?", "options": ["One", "Two"], "answer": "A"}
	]`)

	r, qs, err := CheckFile(data, Options{Expected: 2, Jurisdiction: "NY"})
	require.NoError(t, err)
	assert.Len(t, qs, 1)
	assert.Equal(t, 2, r.Total)
	assert.Empty(t, issuesIn(t, r, CategoryCount))

	required := issuesIn(t, r, CategoryRequired)
	require.Len(t, required, 1)
	assert.Equal(t, "NY-002", required[0].QuestionID)
	assert.False(t, r.Passed)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"name":"required-fields"`)
}

func TestCheckFile_VersionedEnvelopeWithBadRecord(t *testing.T) {
	data := []byte(`{"version": 1, "questions": [
		{"id": "NY-001", "jurisdiction": "NY", "category": "lanes", "prompt": "Which lane is for passing?",
		 "options": [{"letter": "A", "text": "Left"}, {"letter": "B", "text": "Right"},
		             {"letter": "C", "text": "Center"}, {"letter": "D", "text": "Shoulder"}],
		 "correct_answer": "A", "explanation": "Pass on the left."},
		{"id": "NY-002", "jurisdiction": "NY", "category": "lanes", "prompt": "Three options?",
		 "options": [{"letter": "A", "text": "One"}, {"letter": "B", "text": "Two"}, {"letter": "C", "text": "Three"}],
		 "correct_answer": "A"}
	]}`)

	r, qs, err := CheckFile(data, Options{Expected: 2, Jurisdiction: "NY"})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Len(t, qs, 1)
	assert.Equal(t, 2, r.Total)
	assert.False(t, r.Passed)

	required := issuesIn(t, r, CategoryRequired)
	require.Len(t, required, 1)
	assert.Equal(t, "NY-002", required[0].QuestionID)
}

func TestCheckFile_InvalidJSON(t *testing.T) {
	_, _, err := CheckFile([]byte(`nope`), Options{})
	assert.Error(t, err)
}

// ── Verifier ─────────────────────────────────────────────

type scriptedLLM struct {
	mu      sync.Mutex
	answers map[string]string
	calls   int
}

func (s *scriptedLLM) Generate(_ context.Context, _ string, userPrompt string) (*LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	for marker, reply := range s.answers {
		if strings.Contains(userPrompt, marker) {
			if reply == "error" {
				return nil, errors.New("upstream unavailable")
			}
			return &LLMResponse{Content: reply}, nil
		}
	}
	return &LLMResponse{Content: "```json\n{\"selected_answer\": \"a\", \"confidence\": \"high\"}\n```"}, nil
}

func TestVerifier_Verify(t *testing.T) {
	qs := cleanBank(4)
	for i := range qs {
		qs[i].CorrectAnswer = "A"
	}
	llm := &scriptedLLM{answers: map[string]string{
		"number 2?": `{"selected_answer": "C", "confidence": "high", "reasoning": "Merge applies."}`,
		"number 3?": `{"selected_answer": "A", "confidence": "low", "reasoning": "Unclear wording."}`,
		"number 4?": "error",
	}}

	issues := NewVerifier(llm, 2).Verify(context.Background(), qs)
	require.Len(t, issues, 2)
	assert.Equal(t, "CA-002", issues[0].QuestionID)
	assert.Contains(t, issues[0].Message, "model chose C, key says A")
	assert.Equal(t, "CA-003", issues[1].QuestionID)
	assert.Contains(t, issues[1].Message, "low confidence")
	assert.Equal(t, 4, llm.calls)

	r := Run(qs, Options{})
	r.Add(CategoryVerification, issues)
	assert.False(t, r.Category(CategoryVerification).Passed)
	assert.Equal(t, CategoryVerification, r.Category(CategoryVerification).Issues[0].Category)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`  {"a":1} `))
}
