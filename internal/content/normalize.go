// Package content turns question-bank files into canonical questions.
//
// Bank files have been written by several generations of tooling, so the
// same field appears under different names and shapes. Normalize accepts
// all of them once, at ingestion; nothing downstream sees the legacy forms.
package content

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/permitprep/backend/internal/models"
	"github.com/tidwall/gjson"
)

var (
	ErrInvalidJSON         = errors.New("invalid JSON")
	ErrNoQuestions         = errors.New("no question array found")
	ErrMissingID           = errors.New("missing id")
	ErrMissingPrompt       = errors.New("missing prompt")
	ErrOptionCount         = errors.New("question must have exactly 4 options")
	ErrMissingAnswer       = errors.New("missing correct answer")
	ErrBadAnswer           = errors.New("correct answer does not match any option")
	ErrMissingJurisdiction = errors.New("missing jurisdiction")
)

// Field aliases, canonical name first.
var (
	idKeys           = []string{"id", "questionId", "question_id", "qid"}
	promptKeys       = []string{"prompt", "question", "text", "stem"}
	optionKeys       = []string{"options", "choices", "answers"}
	answerKeys       = []string{"correct_answer", "correctAnswer", "answer", "correct", "correct_index"}
	jurisdictionKeys = []string{"jurisdiction", "state", "state_code"}
	scopeKeys        = []string{"type", "scope"}
	categoryKeys     = []string{"category", "topic", "section"}
	explanationKeys  = []string{"explanation", "rationale", "reason"}

	optionTextKeys   = []string{"text", "label", "value", "answer"}
	optionLetterKeys = []string{"letter", "id", "key", "choice_id"}
	optionFlagKeys   = []string{"correct", "is_correct", "isCorrect"}
)

// RecordError reports one record that could not be normalized.
type RecordError struct {
	Index int
	ID    string
	Err   error
}

func (e *RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Result holds the canonical questions in file order plus every record
// that had to be skipped.
type Result struct {
	Questions []models.Question
	Errors    []*RecordError
}

// Normalize parses a bank file. The top level may be a bare array or an
// object wrapping one. In a versioned envelope the header is checked first
// and each record against the canonical question schema.
// defaultJurisdiction fills records with no tag.
func Normalize(data []byte, defaultJurisdiction string) (*Result, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)

	list := root
	versioned := false
	if root.IsObject() {
		if root.Get("version").Exists() {
			if err := validateHeader(data); err != nil {
				return nil, err
			}
			versioned = true
		}
		list = firstOf(root, "questions", "items", "data")
	}
	if !list.IsArray() {
		return nil, ErrNoQuestions
	}

	res := &Result{}
	for i, rec := range list.Array() {
		if versioned {
			if err := validateRecord(rec.Raw); err != nil {
				res.Errors = append(res.Errors, &RecordError{Index: i, ID: strings.TrimSpace(rec.Get("id").String()), Err: err})
				continue
			}
		}
		q, err := normalizeRecord(rec, defaultJurisdiction)
		if err != nil {
			res.Errors = append(res.Errors, &RecordError{Index: i, ID: q.ID, Err: err})
			continue
		}
		res.Questions = append(res.Questions, q)
	}
	return res, nil
}

func normalizeRecord(rec gjson.Result, defaultJurisdiction string) (models.Question, error) {
	q := models.Question{
		ID:          strings.TrimSpace(firstOf(rec, idKeys...).String()),
		Prompt:      clean(firstOf(rec, promptKeys...).String()),
		Category:    strings.ToLower(clean(firstOf(rec, categoryKeys...).String())),
		Explanation: clean(firstOf(rec, explanationKeys...).String()),
	}
	if q.ID == "" {
		return q, ErrMissingID
	}
	if q.Prompt == "" {
		return q, ErrMissingPrompt
	}

	opts, err := parseOptions(firstOf(rec, optionKeys...))
	if err != nil {
		return q, err
	}
	q.Options = opts.options

	q.CorrectAnswer, err = resolveAnswer(firstOf(rec, answerKeys...), opts)
	if err != nil {
		return q, err
	}

	q.Jurisdiction, err = resolveJurisdiction(rec, defaultJurisdiction)
	if err != nil {
		return q, err
	}
	return q, nil
}

// ── Options ─────────────────────────────────────────────

type rawOption struct {
	letter  string
	text    string
	correct bool
}

type parsedOptions struct {
	options []models.Option
	// relabel maps a letter used in the file to its canonical letter.
	relabel map[string]string
	flagged string
}

func parseOptions(r gjson.Result) (parsedOptions, error) {
	var raw []rawOption

	switch {
	case r.IsArray():
		for _, item := range r.Array() {
			switch {
			case item.Type == gjson.String:
				raw = append(raw, rawOption{text: clean(item.String())})
			case item.IsObject():
				raw = append(raw, rawOption{
					letter:  strings.ToUpper(strings.TrimSpace(firstOf(item, optionLetterKeys...).String())),
					text:    clean(firstOf(item, optionTextKeys...).String()),
					correct: firstOf(item, optionFlagKeys...).Bool(),
				})
			default:
				return parsedOptions{}, fmt.Errorf("unsupported option value %s", item.Raw)
			}
		}
	case r.IsObject():
		r.ForEach(func(key, value gjson.Result) bool {
			raw = append(raw, rawOption{
				letter: strings.ToUpper(strings.TrimSpace(key.String())),
				text:   clean(value.String()),
			})
			return true
		})
	default:
		return parsedOptions{}, fmt.Errorf("%w: got none", ErrOptionCount)
	}

	if len(raw) != models.OptionCount {
		return parsedOptions{}, fmt.Errorf("%w: got %d", ErrOptionCount, len(raw))
	}

	// Honour explicit letters when they are a clean A-D permutation.
	if lettersArePermutation(raw) {
		sort.SliceStable(raw, func(i, j int) bool { return raw[i].letter < raw[j].letter })
	}

	p := parsedOptions{relabel: make(map[string]string)}
	for i, o := range raw {
		letter := models.OptionLetters[i]
		if o.text == "" {
			return parsedOptions{}, fmt.Errorf("option %s is empty", letter)
		}
		if o.letter != "" {
			p.relabel[o.letter] = letter
		}
		if o.correct {
			if p.flagged != "" {
				return parsedOptions{}, errors.New("more than one option flagged correct")
			}
			p.flagged = letter
		}
		p.options = append(p.options, models.Option{Letter: letter, Text: o.text})
	}
	return p, nil
}

func lettersArePermutation(raw []rawOption) bool {
	seen := make(map[string]bool, len(raw))
	for _, o := range raw {
		if !models.IsValidLetter(o.letter) || seen[o.letter] {
			return false
		}
		seen[o.letter] = true
	}
	return true
}

// resolveAnswer accepts a letter, a 0-based index, or the correct text.
func resolveAnswer(r gjson.Result, p parsedOptions) (string, error) {
	if !r.Exists() || r.Type == gjson.Null {
		if p.flagged != "" {
			return p.flagged, nil
		}
		return "", ErrMissingAnswer
	}

	switch r.Type {
	case gjson.Number:
		return letterAt(int(r.Int()))
	case gjson.String:
		s := strings.TrimSpace(r.String())
		up := strings.Trim(strings.ToUpper(s), "() .")
		if l, ok := p.relabel[up]; ok {
			return l, nil
		}
		if models.IsValidLetter(up) {
			return up, nil
		}
		if n, err := strconv.Atoi(up); err == nil {
			return letterAt(n)
		}
		for _, o := range p.options {
			if strings.EqualFold(o.Text, clean(s)) {
				return o.Letter, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrBadAnswer, r.Raw)
}

func letterAt(i int) (string, error) {
	if i < 0 || i >= models.OptionCount {
		return "", fmt.Errorf("%w: index %d", ErrBadAnswer, i)
	}
	return models.OptionLetters[i], nil
}

// ── Jurisdiction ────────────────────────────────────────

func resolveJurisdiction(rec gjson.Result, defaultJurisdiction string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(firstOf(rec, scopeKeys...).String())) {
	case "universal", "general", "all", "common":
		return models.UniversalJurisdiction, nil
	}

	raw := firstOf(rec, jurisdictionKeys...).String()
	if strings.TrimSpace(raw) == "" {
		raw = defaultJurisdiction
	}
	j := strings.ToUpper(strings.TrimSpace(raw))
	switch j {
	case "":
		return "", ErrMissingJurisdiction
	case "UNIVERSAL", "GENERAL":
		return models.UniversalJurisdiction, nil
	}
	return j, nil
}

// firstOf returns the first key present with a non-null value.
func firstOf(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		v := r.Get(k)
		if v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
