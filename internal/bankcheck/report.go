// Package bankcheck audits question-bank content before it ships.
//
// Each Check inspects the whole question list for one category of problem
// and returns issues; Run collects them into a per-category Report. Checks
// never stop at the first bad record.
package bankcheck

import (
	"github.com/permitprep/backend/internal/content"
	"github.com/permitprep/backend/internal/models"
)

// Check categories.
const (
	CategoryCount         = "count"
	CategoryRequired      = "required-fields"
	CategoryAnswerBalance = "answer-balance"
	CategoryBanned        = "banned-patterns"
	CategoryPunctuation   = "punctuation"
	CategoryIDFormat      = "id-format"
	CategoryLengthBias    = "length-bias"
	CategoryVerification  = "answer-verification"
)

type Issue struct {
	Category   string `json:"category"`
	QuestionID string `json:"question_id,omitempty"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
}

type CategoryResult struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Issues []Issue `json:"issues,omitempty"`
}

type Report struct {
	Jurisdiction string           `json:"jurisdiction,omitempty"`
	Total        int              `json:"total"`
	Passed       bool             `json:"passed"`
	Categories   []CategoryResult `json:"categories"`
}

// Options configures a run. Expected of zero skips the count check.
type Options struct {
	Expected     int
	Jurisdiction string

	// malformed counts records dropped before the checks saw them.
	malformed int
}

type Check interface {
	Name() string
	Run(qs []models.Question, opts Options) []Issue
}

type checkFunc struct {
	name string
	fn   func([]models.Question, Options) []Issue
}

func (c checkFunc) Name() string { return c.name }

func (c checkFunc) Run(qs []models.Question, opts Options) []Issue { return c.fn(qs, opts) }

// DefaultChecks returns every content check in report order.
func DefaultChecks() []Check {
	return []Check{
		checkFunc{CategoryCount, checkCount},
		checkFunc{CategoryRequired, checkRequiredFields},
		checkFunc{CategoryAnswerBalance, checkAnswerBalance},
		checkFunc{CategoryBanned, checkBannedPatterns},
		checkFunc{CategoryPunctuation, checkPunctuation},
		checkFunc{CategoryIDFormat, checkIDFormat},
		checkFunc{CategoryLengthBias, checkLengthBias},
	}
}

func Run(qs []models.Question, opts Options) *Report {
	return RunChecks(qs, opts, DefaultChecks()...)
}

func RunChecks(qs []models.Question, opts Options, checks ...Check) *Report {
	r := &Report{Jurisdiction: opts.Jurisdiction, Total: len(qs) + opts.malformed, Passed: true}
	for _, c := range checks {
		r.Add(c.Name(), c.Run(qs, opts))
	}
	return r
}

// Add merges issues into the named category, creating it if needed.
func (r *Report) Add(category string, issues []Issue) {
	for i := range issues {
		issues[i].Category = category
	}

	idx := -1
	for i, c := range r.Categories {
		if c.Name == category {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.Categories = append(r.Categories, CategoryResult{Name: category, Passed: true})
		idx = len(r.Categories) - 1
	}

	cat := &r.Categories[idx]
	cat.Issues = append(cat.Issues, issues...)
	cat.Passed = len(cat.Issues) == 0
	if !cat.Passed {
		r.Passed = false
	}
}

// Category returns the named result, or nil if it was not run.
func (r *Report) Category(name string) *CategoryResult {
	for i := range r.Categories {
		if r.Categories[i].Name == name {
			return &r.Categories[i]
		}
	}
	return nil
}

// Issues flattens every category's issues in report order.
func (r *Report) Issues() []Issue {
	var out []Issue
	for _, c := range r.Categories {
		out = append(out, c.Issues...)
	}
	return out
}

// CheckFile normalizes a bank file and runs the default checks. Records the
// normalizer rejects are reported as required-fields issues and counted
// toward the total.
func CheckFile(data []byte, opts Options) (*Report, []models.Question, error) {
	res, err := content.Normalize(data, opts.Jurisdiction)
	if err != nil {
		return nil, nil, err
	}

	opts.malformed = len(res.Errors)
	report := Run(res.Questions, opts)
	if len(res.Errors) > 0 {
		issues := make([]Issue, 0, len(res.Errors))
		for _, e := range res.Errors {
			issues = append(issues, Issue{QuestionID: e.ID, Message: e.Error()})
		}
		report.Add(CategoryRequired, issues)
	}
	return report, res.Questions, nil
}
