package training

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/permitprep/backend/internal/models"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func subsetOf(ids ...string) []models.Question {
	qs := make([]models.Question, len(ids))
	for i, id := range ids {
		qs[i] = models.Question{
			ID:           id,
			Jurisdiction: "CA",
			Prompt:       "Question " + id + "?",
			Options: []models.Option{
				{Letter: "A", Text: "one"},
				{Letter: "B", Text: "two"},
				{Letter: "C", Text: "three"},
				{Letter: "D", Text: "four"},
			},
			CorrectAnswer: "A",
		}
	}
	return qs
}

// serve selects and records the presentation, the way the service does.
func serve(t *testing.T, subset []models.Question, st models.MasteryState) (models.Question, models.MasteryState, bool) {
	t.Helper()
	q, ok := NextQuestion(subset, st.MasteredSet(), st.WrongQueue, st.LastServedID)
	if !ok {
		return q, st, false
	}
	return q, MarkServed(st, q.ID, q.CorrectAnswer, epoch), true
}

func TestNextQuestion_FreshThenRequeue(t *testing.T) {
	subset := subsetOf("q1", "q2", "q3")
	st := models.MasteryState{}

	q, st, _ := serve(t, subset, st)
	if q.ID != "q1" {
		t.Fatalf("first call = %s, want q1", q.ID)
	}
	st = ApplyAnswer(st, q.ID, false, epoch)

	q, st, _ = serve(t, subset, st)
	if q.ID != "q2" {
		t.Fatalf("second call = %s, want q2", q.ID)
	}
	st = ApplyAnswer(st, q.ID, true, epoch)

	q, st, _ = serve(t, subset, st)
	if q.ID != "q3" {
		t.Fatalf("third call = %s, want q3", q.ID)
	}
	st = ApplyAnswer(st, q.ID, true, epoch)

	if len(st.WrongQueue) != 1 || st.WrongQueue[0] != "q1" {
		t.Fatalf("wrong queue = %v, want [q1]", st.WrongQueue)
	}
	q, _, _ = serve(t, subset, st)
	if q.ID != "q1" {
		t.Fatalf("fourth call = %s, want q1 from the wrong queue", q.ID)
	}
}

func TestNextQuestion_WrongQueueFIFO(t *testing.T) {
	subset := subsetOf("q1", "q2", "q3")
	st := models.MasteryState{WrongQueue: []string{"q1", "q2", "q3"}}

	for _, want := range []string{"q1", "q2", "q3", "q1"} {
		var q models.Question
		q, st, _ = serve(t, subset, st)
		if q.ID != want {
			t.Fatalf("got %s, want %s (queue %v)", q.ID, want, st.WrongQueue)
		}
		st = ApplyAnswer(st, q.ID, false, epoch)
	}
}

func TestNextQuestion_AntiRepeat(t *testing.T) {
	tests := []struct {
		name     string
		subset   []string
		mastered []string
		queue    []string
		last     string
		want     string
	}{
		{"skips last fresh", []string{"a", "b"}, nil, nil, "a", "b"},
		{"skips last queued", []string{"a", "b"}, nil, []string{"a", "b"}, "a", "b"},
		{"single remaining equals last", []string{"a", "b"}, []string{"b"}, []string{"a"}, "a", "a"},
		{"single question subset", []string{"a"}, nil, nil, "a", "a"},
		{"last already mastered", []string{"a", "b", "c"}, []string{"a"}, nil, "a", "b"},
		{"fresh beats queued", []string{"a", "b", "c"}, nil, []string{"a"}, "", "b"},
	}

	for _, tt := range tests {
		mastered := make(map[string]bool)
		for _, id := range tt.mastered {
			mastered[id] = true
		}
		q, ok := NextQuestion(subsetOf(tt.subset...), mastered, tt.queue, tt.last)
		if !ok {
			t.Errorf("%s: got none, want %s", tt.name, tt.want)
			continue
		}
		if q.ID != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, q.ID, tt.want)
		}
	}
}

func TestNextQuestion_CompletionIsSticky(t *testing.T) {
	subset := subsetOf("a", "b")
	st := models.MasteryState{MasteredIDs: []string{"a", "b"}}

	for i := 0; i < 3; i++ {
		if q, ok := NextQuestion(subset, st.MasteredSet(), st.WrongQueue, st.LastServedID); ok {
			t.Fatalf("call %d returned %s after completion", i, q.ID)
		}
	}

	sel := Select(ModeSet, subset, st, epoch)
	if sel.Found || sel.Cycled {
		t.Fatalf("set mode selected %s after completion (cycled=%v)", sel.Question.ID, sel.Cycled)
	}

	st = ResetMastery(st, epoch)
	if q, ok := NextQuestion(subset, st.MasteredSet(), st.WrongQueue, st.LastServedID); !ok || q.ID != "a" {
		t.Fatalf("after reset got (%s, %v), want (a, true)", q.ID, ok)
	}
}

func TestMastery_Monotonic(t *testing.T) {
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("CA-%03d", i+1)
	}
	subset := subsetOf(ids...)
	r := rand.New(rand.NewSource(3))
	st := models.MasteryState{}

	for step := 0; step < 500; step++ {
		q, next, ok := serve(t, subset, st)
		if !ok {
			if len(st.MasteredIDs) != len(subset) {
				t.Fatalf("selector stopped with %d/%d mastered", len(st.MasteredIDs), len(subset))
			}
			return
		}
		if st.MasteredSet()[q.ID] {
			t.Fatalf("step %d served already mastered %s", step, q.ID)
		}

		before := len(next.MasteredIDs)
		next = ApplyAnswer(next, q.ID, r.Intn(3) == 0, epoch)
		if len(next.MasteredIDs) < before {
			t.Fatalf("step %d: mastered shrank from %d to %d", step, before, len(next.MasteredIDs))
		}

		seen := make(map[string]bool)
		for _, id := range next.WrongQueue {
			if seen[id] {
				t.Fatalf("step %d: duplicate %s in wrong queue %v", step, id, next.WrongQueue)
			}
			seen[id] = true
			if next.MasteredSet()[id] {
				t.Fatalf("step %d: mastered %s still queued", step, id)
			}
		}
		st = next
	}
	t.Fatal("set never completed in 500 steps")
}

func TestApplyAnswer(t *testing.T) {
	st := models.MasteryState{WrongQueue: []string{"a", "b"}}

	st2 := ApplyAnswer(st, "a", false, epoch)
	if fmt.Sprint(st2.WrongQueue) != "[b a]" {
		t.Errorf("wrong answer on queued a: queue = %v, want [b a]", st2.WrongQueue)
	}
	if fmt.Sprint(st.WrongQueue) != "[a b]" {
		t.Errorf("ApplyAnswer mutated input queue: %v", st.WrongQueue)
	}

	st3 := ApplyAnswer(st2, "b", true, epoch)
	if fmt.Sprint(st3.WrongQueue) != "[a]" || fmt.Sprint(st3.MasteredIDs) != "[b]" {
		t.Errorf("correct b: queue=%v mastered=%v, want [a] [b]", st3.WrongQueue, st3.MasteredIDs)
	}

	st4 := ApplyAnswer(st3, "b", false, epoch)
	if fmt.Sprint(st4.MasteredIDs) != "[b]" || InQueue(st4.WrongQueue, "b") {
		t.Errorf("wrong answer on mastered b changed state: mastered=%v queue=%v", st4.MasteredIDs, st4.WrongQueue)
	}
}

func TestExpectedAnswer_KeptUntilMastered(t *testing.T) {
	q1, q2 := subsetOf("q1", "q2")[0], subsetOf("q2")[0]

	st := MarkServed(models.MasteryState{}, "q1", "C", epoch)
	st = MarkServed(st, "q2", "D", epoch)

	if got := ExpectedAnswer(st, q1); got != "C" {
		t.Errorf("q1 after serving q2 = %s, want C", got)
	}
	if got := ExpectedAnswer(st, q2); got != "D" {
		t.Errorf("q2 = %s, want D", got)
	}

	st = ApplyAnswer(st, "q1", false, epoch)
	if got := ExpectedAnswer(st, q1); got != "C" {
		t.Errorf("q1 after wrong answer = %s, want C", got)
	}

	st = ApplyAnswer(st, "q1", true, epoch)
	if got := ExpectedAnswer(st, q1); got != "A" {
		t.Errorf("q1 after mastery = %s, want bank key A", got)
	}
	if got := ExpectedAnswer(ResetMastery(st, epoch), q2); got != "A" {
		t.Errorf("q2 after reset = %s, want bank key A", got)
	}
}
