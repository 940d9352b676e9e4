package questions

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/permitprep/backend/internal/models"
)

var (
	// ErrIndexOutOfRange is returned for a set or test index outside the
	// family's configured range. It signals a caller bug, not exhaustion.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrUnknownJurisdiction is returned for a malformed jurisdiction tag.
	ErrUnknownJurisdiction = errors.New("unknown jurisdiction")
)

// Family describes how a content family is cut into fixed sets. A zero
// stride skips that pool entirely.
type Family struct {
	Name               string
	MaxIndex           int
	UniversalStride    int
	JurisdictionStride int
	PassPercent        int
	TimeLimit          time.Duration
}

var (
	// FamilyDMV is the 200-question, four-test permit family.
	FamilyDMV = Family{
		Name:               "dmv",
		MaxIndex:           4,
		UniversalStride:    40,
		JurisdictionStride: 10,
		PassPercent:        80,
		TimeLimit:          60 * time.Minute,
	}
	// FamilyCDL is the 600-question, twelve-test commercial family drawn
	// from one undifferentiated pool.
	FamilyCDL = Family{
		Name:               "cdl",
		MaxIndex:           12,
		JurisdictionStride: 50,
		PassPercent:        80,
		TimeLimit:          60 * time.Minute,
	}
)

// CDLJurisdiction is the jurisdiction tag of the commercial family.
const CDLJurisdiction = "CDL"

// SetSize is the number of questions in a full set of this family.
func (f Family) SetSize() int {
	return f.UniversalStride + f.JurisdictionStride
}

// PassingScore returns the number of correct answers needed to pass a test
// of total questions.
func (f Family) PassingScore(total int) int {
	return int(math.Ceil(float64(total) * float64(f.PassPercent) / 100))
}

// FamilyFor returns the content family a jurisdiction belongs to.
func FamilyFor(jurisdiction string) Family {
	if jurisdiction == CDLJurisdiction {
		return FamilyCDL
	}
	return FamilyDMV
}

// NormalizeJurisdiction upper-cases a jurisdiction tag and checks it names a
// state-style two-letter code or the commercial family.
func NormalizeJurisdiction(raw string) (string, error) {
	j := strings.ToUpper(strings.TrimSpace(raw))
	if j == CDLJurisdiction {
		return j, nil
	}
	if len(j) != 2 || j[0] < 'A' || j[0] > 'Z' || j[1] < 'A' || j[1] > 'Z' {
		return "", fmt.Errorf("%w: %q", ErrUnknownJurisdiction, raw)
	}
	return j, nil
}

// AssignSubset returns the fixed set for index within jurisdiction: a window
// into the ID-sorted universal pool followed by a window into the ID-sorted
// jurisdiction pool. Short pools produce short or empty sets.
func AssignSubset(f Family, index int, jurisdiction string, bank []models.Question) ([]models.Question, error) {
	if index < 1 || index > f.MaxIndex {
		return nil, fmt.Errorf("%w: %s index %d (valid 1-%d)", ErrIndexOutOfRange, f.Name, index, f.MaxIndex)
	}

	var universal, local []models.Question
	for _, q := range bank {
		switch {
		case q.IsUniversal():
			if f.UniversalStride > 0 {
				universal = append(universal, q)
			}
		case q.Jurisdiction == jurisdiction:
			local = append(local, q)
		}
	}
	sortByID(universal)
	sortByID(local)

	subset := make([]models.Question, 0, f.SetSize())
	subset = append(subset, window(universal, index, f.UniversalStride)...)
	subset = append(subset, window(local, index, f.JurisdictionStride)...)
	return subset, nil
}

// window returns pool[(n-1)*stride : n*stride], clipped to the pool.
func window(pool []models.Question, n, stride int) []models.Question {
	if stride <= 0 {
		return nil
	}
	start := (n - 1) * stride
	if start >= len(pool) {
		return nil
	}
	end := start + stride
	if end > len(pool) {
		end = len(pool)
	}
	return pool[start:end]
}

func sortByID(qs []models.Question) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
}
