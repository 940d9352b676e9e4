package questions

import (
	"sort"
	"sync/atomic"

	"github.com/permitprep/backend/internal/models"
)

// Bank is an immutable, ID-ordered snapshot of the question bank.
type Bank struct {
	questions      []models.Question
	byID           map[string]models.Question
	byJurisdiction map[string][]models.Question
}

// NewBank indexes qs. The caller's slice is copied; later duplicates of an
// ID replace earlier ones.
func NewBank(qs []models.Question) *Bank {
	byID := make(map[string]models.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	ordered := make([]models.Question, 0, len(byID))
	for _, q := range byID {
		ordered = append(ordered, q)
	}
	sortByID(ordered)

	byJur := make(map[string][]models.Question)
	for _, q := range ordered {
		byJur[q.Jurisdiction] = append(byJur[q.Jurisdiction], q)
	}

	return &Bank{questions: ordered, byID: byID, byJurisdiction: byJur}
}

func (b *Bank) Len() int { return len(b.questions) }

// Questions returns every question in ID order. The slice must not be mutated.
func (b *Bank) Questions() []models.Question { return b.questions }

func (b *Bank) Get(id string) (models.Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Jurisdiction returns the questions tagged exactly j, in ID order.
func (b *Bank) Jurisdiction(j string) []models.Question {
	return b.byJurisdiction[j]
}

// Jurisdictions lists every tag present in the bank, sorted.
func (b *Bank) Jurisdictions() []string {
	out := make([]string, 0, len(b.byJurisdiction))
	for j := range b.byJurisdiction {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}

// Pool returns every question available to jurisdiction j under its family:
// universal plus local for split families, local only for single-pool ones.
func (b *Bank) Pool(j string) []models.Question {
	f := FamilyFor(j)
	var pool []models.Question
	if f.UniversalStride > 0 && j != models.UniversalJurisdiction {
		pool = append(pool, b.byJurisdiction[models.UniversalJurisdiction]...)
	}
	pool = append(pool, b.byJurisdiction[j]...)
	sortByID(pool)
	return pool
}

// Subset returns the fixed set for index in jurisdiction j.
func (b *Bank) Subset(j string, index int) ([]models.Question, error) {
	return AssignSubset(FamilyFor(j), index, j, b.questions)
}

// Catalog holds the current Bank and swaps it atomically after imports, so
// readers always see one consistent snapshot.
type Catalog struct {
	current atomic.Pointer[Bank]
}

func NewCatalog(qs []models.Question) *Catalog {
	c := &Catalog{}
	c.Replace(qs)
	return c
}

// Bank returns the current snapshot.
func (c *Catalog) Bank() *Bank {
	return c.current.Load()
}

// Replace installs a new snapshot built from qs.
func (c *Catalog) Replace(qs []models.Question) {
	c.current.Store(NewBank(qs))
}
