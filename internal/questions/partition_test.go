package questions

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/permitprep/backend/internal/models"
)

func makeQuestion(id, jurisdiction string) models.Question {
	return models.Question{
		ID:           id,
		Jurisdiction: jurisdiction,
		Category:     "signs",
		Prompt:       "What does this sign mean?",
		Options: []models.Option{
			{Letter: "A", Text: "Stop"},
			{Letter: "B", Text: "Yield"},
			{Letter: "C", Text: "Merge"},
			{Letter: "D", Text: "No turn on red"},
		},
		CorrectAnswer: "B",
	}
}

// makeBank builds a bank with nUniversal ALL questions and nLocal questions
// for each jurisdiction, in scrambled insertion order.
func makeBank(nUniversal int, local map[string]int) []models.Question {
	var bank []models.Question
	for i := 1; i <= nUniversal; i++ {
		bank = append(bank, makeQuestion(fmt.Sprintf("ALL-%03d", i), models.UniversalJurisdiction))
	}
	for j, n := range local {
		for i := 1; i <= n; i++ {
			bank = append(bank, makeQuestion(fmt.Sprintf("%s-%03d", j, i), j))
		}
	}
	r := rand.New(rand.NewSource(7))
	r.Shuffle(len(bank), func(i, j int) { bank[i], bank[j] = bank[j], bank[i] })
	return bank
}

func TestAssignSubset_FirstSetCA(t *testing.T) {
	bank := makeBank(160, map[string]int{"CA": 40, "TX": 40})

	subset, err := AssignSubset(FamilyDMV, 1, "CA", bank)
	if err != nil {
		t.Fatalf("AssignSubset(1, CA) error: %v", err)
	}
	if len(subset) != 50 {
		t.Fatalf("len(subset) = %d, want 50", len(subset))
	}
	for i := 0; i < 40; i++ {
		want := fmt.Sprintf("ALL-%03d", i+1)
		if subset[i].ID != want {
			t.Errorf("subset[%d] = %s, want %s", i, subset[i].ID, want)
		}
	}
	for i := 0; i < 10; i++ {
		want := fmt.Sprintf("CA-%03d", i+1)
		if subset[40+i].ID != want {
			t.Errorf("subset[%d] = %s, want %s", 40+i, subset[40+i].ID, want)
		}
	}
}

func TestAssignSubset_BeyondMaxIndex(t *testing.T) {
	bank := makeBank(160, map[string]int{"CA": 40})

	for _, idx := range []int{0, -1, 5, 99} {
		subset, err := AssignSubset(FamilyDMV, idx, "CA", bank)
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("AssignSubset(%d) err = %v, want ErrIndexOutOfRange", idx, err)
		}
		if len(subset) != 0 {
			t.Errorf("AssignSubset(%d) returned %d questions, want 0", idx, len(subset))
		}
	}
}

func TestAssignSubset_Deterministic(t *testing.T) {
	bank := makeBank(160, map[string]int{"CA": 40, "NY": 37, "TX": 12})
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		idx := 1 + r.Intn(FamilyDMV.MaxIndex)
		j := []string{"CA", "NY", "TX"}[r.Intn(3)]

		first, err := AssignSubset(FamilyDMV, idx, j, bank)
		if err != nil {
			t.Fatalf("AssignSubset(%d, %s) error: %v", idx, j, err)
		}
		// Reorder the input; the result must not depend on bank order.
		reordered := append([]models.Question(nil), bank...)
		r.Shuffle(len(reordered), func(a, b int) { reordered[a], reordered[b] = reordered[b], reordered[a] })
		second, _ := AssignSubset(FamilyDMV, idx, j, reordered)

		a, b := models.QuestionIDs(first), models.QuestionIDs(second)
		if fmt.Sprint(a) != fmt.Sprint(b) {
			t.Fatalf("AssignSubset(%d, %s) not deterministic:\n%v\n%v", idx, j, a, b)
		}
	}
}

func TestAssignSubset_CoverageAndDisjointness(t *testing.T) {
	bank := makeBank(160, map[string]int{"CA": 40})

	seen := make(map[string]int)
	for idx := 1; idx <= FamilyDMV.MaxIndex; idx++ {
		subset, err := AssignSubset(FamilyDMV, idx, "CA", bank)
		if err != nil {
			t.Fatalf("AssignSubset(%d) error: %v", idx, err)
		}
		if len(subset) != FamilyDMV.SetSize() {
			t.Errorf("set %d size = %d, want %d", idx, len(subset), FamilyDMV.SetSize())
		}
		for _, q := range subset {
			if prev, ok := seen[q.ID]; ok {
				t.Errorf("%s appears in set %d and set %d", q.ID, prev, idx)
			}
			seen[q.ID] = idx
		}
	}
	if len(seen) != 200 {
		t.Errorf("union covers %d questions, want 200", len(seen))
	}
}

func TestAssignSubset_ShortPool(t *testing.T) {
	// 90 universal: set 3 gets 10 universal, set 4 gets none.
	bank := makeBank(90, map[string]int{"NV": 25})

	tests := []struct {
		index         int
		wantUniversal int
		wantLocal     int
	}{
		{1, 40, 10},
		{2, 40, 10},
		{3, 10, 5},
		{4, 0, 0},
	}

	for _, tt := range tests {
		subset, err := AssignSubset(FamilyDMV, tt.index, "NV", bank)
		if err != nil {
			t.Fatalf("AssignSubset(%d) error: %v", tt.index, err)
		}
		var u, l int
		for _, q := range subset {
			if q.IsUniversal() {
				u++
			} else {
				l++
			}
		}
		if u != tt.wantUniversal || l != tt.wantLocal {
			t.Errorf("AssignSubset(%d) = %d universal + %d local, want %d + %d",
				tt.index, u, l, tt.wantUniversal, tt.wantLocal)
		}
	}
}

func TestAssignSubset_CDLSinglePool(t *testing.T) {
	bank := makeBank(160, map[string]int{"CDL": 600, "CA": 40})

	for idx := 1; idx <= FamilyCDL.MaxIndex; idx++ {
		subset, err := AssignSubset(FamilyCDL, idx, CDLJurisdiction, bank)
		if err != nil {
			t.Fatalf("AssignSubset(cdl %d) error: %v", idx, err)
		}
		if len(subset) != 50 {
			t.Fatalf("cdl set %d size = %d, want 50", idx, len(subset))
		}
		if want := fmt.Sprintf("CDL-%03d", (idx-1)*50+1); subset[0].ID != want {
			t.Errorf("cdl set %d starts at %s, want %s", idx, subset[0].ID, want)
		}
		for _, q := range subset {
			if q.Jurisdiction != CDLJurisdiction {
				t.Errorf("cdl set %d contains %s from %s", idx, q.ID, q.Jurisdiction)
			}
		}
	}

	if _, err := AssignSubset(FamilyCDL, 13, CDLJurisdiction, bank); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("AssignSubset(cdl 13) err = %v, want ErrIndexOutOfRange", err)
	}
}

func TestFamilyFor(t *testing.T) {
	if got := FamilyFor("CDL"); got.Name != "cdl" {
		t.Errorf("FamilyFor(CDL) = %s, want cdl", got.Name)
	}
	if got := FamilyFor("CA"); got.Name != "dmv" {
		t.Errorf("FamilyFor(CA) = %s, want dmv", got.Name)
	}
}

func TestPassingScore(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{50, 40},
		{25, 20},
		{12, 10},
		{0, 0},
	}
	for _, tt := range tests {
		if got := FamilyDMV.PassingScore(tt.total); got != tt.want {
			t.Errorf("PassingScore(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestNormalizeJurisdiction(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ca", "CA", false},
		{" tx ", "TX", false},
		{"cdl", "CDL", false},
		{"ALL", "", true},
		{"C1", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeJurisdiction(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeJurisdiction(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeJurisdiction(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
