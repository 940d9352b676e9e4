package progress

import (
	"math"

	"github.com/permitprep/backend/internal/models"
)

const (
	// referenceLength is the test length the readiness bands are defined on.
	referenceLength = 50
	// trainingOnlyCap bounds the estimate when no timed test has been taken.
	trainingOnlyCap = 75
	// breadthBonus rewards practising on several distinct tests.
	breadthBonus        = 5
	breadthBonusMinimum = 3
)

// PassProbability estimates the chance (0-100) of passing the real exam.
//
// With no test attempts it falls back to training accuracy, capped at 75.
// Otherwise the mean best score, scaled to a 50-question test, is mapped
// through four linear bands:
//
//	>= 40       85 + min((avg-40)*1.5, 15)
//	[35, 40)    60 -> 85
//	[30, 35)    35 -> 60
//	< 30        0 -> 35
//
// Three or more distinct tests add a flat 5, capped at 100.
func PassProbability(attempts []models.AttemptRecord, tally models.TrainingTally, testLength int) int {
	if len(attempts) == 0 {
		total := tally.CorrectCount + tally.IncorrectCount
		if total == 0 {
			return 0
		}
		acc := math.Round(float64(tally.CorrectCount) / float64(total) * 100)
		return int(math.Min(acc, trainingOnlyCap))
	}

	sum := 0
	for _, a := range attempts {
		sum += a.BestScore
	}
	avg := float64(sum) / float64(len(attempts))
	if testLength > 0 && testLength != referenceLength {
		avg = avg * referenceLength / float64(testLength)
	}

	p := ScoreBand(avg)
	if len(attempts) >= breadthBonusMinimum {
		p += breadthBonus
	}
	return int(math.Round(clamp(p, 0, 100)))
}

// ScoreBand maps an average best score out of 50 to the base probability.
func ScoreBand(avg float64) float64 {
	switch {
	case avg >= 40:
		return 85 + math.Min((avg-40)*1.5, 15)
	case avg >= 35:
		return 60 + (avg-35)/5*25
	case avg >= 30:
		return 35 + (avg-30)/5*25
	default:
		return math.Max(avg, 0) / 30 * 35
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
