package bankcheck

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/permitprep/backend/internal/models"
)

// Answer-slot balance bounds, in percent of the file.
const (
	minSlotPercent = 20.0
	maxSlotPercent = 30.0

	// Below this many questions the slot shares are too coarse to judge.
	minBalanceSample = 10

	// Correct text longer than this multiple of the mean distractor is flagged.
	lengthBiasRatio = 1.2
)

func checkCount(qs []models.Question, opts Options) []Issue {
	if opts.Expected <= 0 {
		return nil
	}
	got := len(qs) + opts.malformed
	if got == opts.Expected {
		return nil
	}
	return []Issue{{Message: fmt.Sprintf("expected %d questions, found %d", opts.Expected, got)}}
}

func checkRequiredFields(qs []models.Question, _ Options) []Issue {
	var issues []Issue
	add := func(q models.Question, field, msg string) {
		issues = append(issues, Issue{QuestionID: q.ID, Field: field, Message: msg})
	}

	for _, q := range qs {
		if strings.TrimSpace(q.ID) == "" {
			add(q, "id", "missing id")
		}
		if strings.TrimSpace(q.Prompt) == "" {
			add(q, "prompt", "missing prompt")
		}
		if strings.TrimSpace(q.Category) == "" {
			add(q, "category", "missing category")
		}
		if strings.TrimSpace(q.Jurisdiction) == "" {
			add(q, "jurisdiction", "missing jurisdiction")
		}
		if strings.TrimSpace(q.Explanation) == "" {
			add(q, "explanation", "missing explanation")
		}
		if !models.IsValidLetter(q.CorrectAnswer) {
			add(q, "correct_answer", fmt.Sprintf("invalid correct answer %q", q.CorrectAnswer))
		}

		if len(q.Options) != models.OptionCount {
			add(q, "options", fmt.Sprintf("expected %d options, found %d", models.OptionCount, len(q.Options)))
			continue
		}
		for i, o := range q.Options {
			if o.Letter != models.OptionLetters[i] {
				add(q, "options", fmt.Sprintf("option %d has letter %q, want %s", i+1, o.Letter, models.OptionLetters[i]))
			}
			if strings.TrimSpace(o.Text) == "" {
				add(q, "options", fmt.Sprintf("option %s is empty", o.Letter))
			}
		}
	}
	return issues
}

func checkAnswerBalance(qs []models.Question, _ Options) []Issue {
	if len(qs) < minBalanceSample {
		return nil
	}

	counts := make(map[string]int, models.OptionCount)
	for _, q := range qs {
		counts[q.CorrectAnswer]++
	}

	var issues []Issue
	for _, letter := range models.OptionLetters {
		pct := float64(counts[letter]) * 100 / float64(len(qs))
		if pct < minSlotPercent || pct > maxSlotPercent {
			issues = append(issues, Issue{Message: fmt.Sprintf(
				"correct answer %s used %d of %d times (%.1f%%), want %.0f-%.0f%%",
				letter, counts[letter], len(qs), pct, minSlotPercent, maxSlotPercent)})
		}
	}
	return issues
}

// ── Banned patterns ─────────────────────────────────────

type pattern struct {
	label string
	re    *regexp.Regexp
}

var bannedPatterns = []pattern{
	{"dollar amount", regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`)},
	{"X/Y/Z figure", regexp.MustCompile(`\b\d+(?:\.\d+)?\s*/\s*\d+(?:\.\d+)?\s*/\s*\d+(?:\.\d+)?\b`)},
	{"point value", regexp.MustCompile(`(?i)\b\d+\s*(?:demerit\s+|penalty\s+)?points?\b`)},
}

// Numbers learners are expected to know. A banned match lying wholly inside
// one of these is excused.
var allowedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+(?:\s*/\s*\d+)*\s*(?:-year-old|years?\s+old|years?\s+of\s+age)`),
	regexp.MustCompile(`(?i)\b(?:age|aged|under|over)\s+\d+(?:\s*/\s*\d+)*`),
	regexp.MustCompile(`0?\.\d+(?:\s*/\s*0?\.\d+)*\s*%?`),
	regexp.MustCompile(`(?i)\b\d+(?:\s*/\s*\d+)*\s*(?:seconds?|minutes?|hours?|days?|weeks?|months?|years?)\b`),
}

func checkBannedPatterns(qs []models.Question, _ Options) []Issue {
	var issues []Issue
	for _, q := range qs {
		fields := []struct{ name, text string }{
			{"prompt", q.Prompt},
			{"explanation", q.Explanation},
		}
		for _, o := range q.Options {
			fields = append(fields, struct{ name, text string }{"option " + o.Letter, o.Text})
		}

		for _, f := range fields {
			for _, m := range bannedMatches(f.text) {
				issues = append(issues, Issue{
					QuestionID: q.ID,
					Field:      f.name,
					Message:    fmt.Sprintf("%s %q", m.label, m.text),
				})
			}
		}
	}
	return issues
}

type bannedMatch struct {
	label string
	text  string
}

func bannedMatches(s string) []bannedMatch {
	var allowed [][]int
	for _, re := range allowedPatterns {
		allowed = append(allowed, re.FindAllStringIndex(s, -1)...)
	}

	var out []bannedMatch
	for _, p := range bannedPatterns {
		for _, loc := range p.re.FindAllStringIndex(s, -1) {
			if covered(loc, allowed) {
				continue
			}
			out = append(out, bannedMatch{label: p.label, text: s[loc[0]:loc[1]]})
		}
	}
	return out
}

func covered(loc []int, spans [][]int) bool {
	for _, sp := range spans {
		if sp[0] <= loc[0] && loc[1] <= sp[1] {
			return true
		}
	}
	return false
}

// ── Punctuation ─────────────────────────────────────────

func checkPunctuation(qs []models.Question, _ Options) []Issue {
	var issues []Issue
	for _, q := range qs {
		if p := lastRune(q.Prompt); p != 0 && p != '?' && p != ':' {
			issues = append(issues, Issue{QuestionID: q.ID, Field: "prompt",
				Message: fmt.Sprintf("prompt ends with %q, want '?' or ':'", p)})
		}
		if e := lastRune(q.Explanation); e != 0 && e != '.' && e != '!' && e != '?' {
			issues = append(issues, Issue{QuestionID: q.ID, Field: "explanation",
				Message: fmt.Sprintf("explanation ends with %q, want '.', '!' or '?'", e)})
		}
	}
	return issues
}

// lastRune skips trailing whitespace and closing quotes or brackets.
func lastRune(s string) rune {
	s = strings.TrimRight(s, " \t\n\"')]”’")
	r, _ := utf8.DecodeLastRuneInString(s)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

// ── Identifier format ───────────────────────────────────

var idPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-(\d{3})$`)

func checkIDFormat(qs []models.Question, _ Options) []Issue {
	var issues []Issue
	prefix := ""
	seen := make(map[string]bool, len(qs))
	var numbers []int

	for _, q := range qs {
		if seen[q.ID] {
			issues = append(issues, Issue{QuestionID: q.ID, Field: "id", Message: "duplicate id"})
			continue
		}
		seen[q.ID] = true

		m := idPattern.FindStringSubmatch(q.ID)
		if m == nil {
			issues = append(issues, Issue{QuestionID: q.ID, Field: "id", Message: "id must look like PREFIX-001"})
			continue
		}
		if prefix == "" {
			prefix = m[1]
		} else if m[1] != prefix {
			issues = append(issues, Issue{QuestionID: q.ID, Field: "id",
				Message: fmt.Sprintf("prefix %s differs from %s", m[1], prefix)})
			continue
		}
		n, _ := strconv.Atoi(m[2])
		numbers = append(numbers, n)
	}

	sort.Ints(numbers)
	expected := 1
	for _, n := range numbers {
		if n != expected {
			issues = append(issues, Issue{Field: "id", Message: fmt.Sprintf(
				"sequence gap: expected %s-%03d, found %s-%03d", prefix, expected, prefix, n)})
		}
		expected = n + 1
	}
	return issues
}

// ── Length bias ─────────────────────────────────────────

func checkLengthBias(qs []models.Question, _ Options) []Issue {
	var issues []Issue
	for _, q := range qs {
		if len(q.Options) != models.OptionCount || !models.IsValidLetter(q.CorrectAnswer) {
			continue
		}

		distractors := q.Distractors()
		if len(distractors) == 0 {
			continue
		}
		total := 0
		for _, d := range distractors {
			total += utf8.RuneCountInString(d)
		}
		mean := float64(total) / float64(len(distractors))
		correct := float64(utf8.RuneCountInString(q.CorrectText()))

		if mean > 0 && correct > mean*lengthBiasRatio {
			issues = append(issues, Issue{QuestionID: q.ID, Field: "options", Message: fmt.Sprintf(
				"correct answer is %.0f%% longer than the average distractor", (correct/mean-1)*100)})
		}
	}
	return issues
}
