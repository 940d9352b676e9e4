package questions

import (
	"math/rand"

	"github.com/permitprep/backend/internal/models"
)

// ShuffleOrder returns a uniformly shuffled copy of qs. Set membership is
// untouched; only presentation order changes.
func ShuffleOrder(qs []models.Question) []models.Question {
	shuffled := make([]models.Question, len(qs))
	copy(shuffled, qs)

	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled
}

// ShuffleOptions permutes the options of q, relabels them A-D and moves
// CorrectAnswer to wherever the correct text landed.
func ShuffleOptions(q models.Question) models.Question {
	out := q
	out.Options = make([]models.Option, len(q.Options))

	for i, src := range rand.Perm(len(q.Options)) {
		opt := q.Options[src]
		letter := opt.Letter
		if i < len(models.OptionLetters) {
			letter = models.OptionLetters[i]
		}
		out.Options[i] = models.Option{Letter: letter, Text: opt.Text}
		if opt.Letter == q.CorrectAnswer {
			out.CorrectAnswer = letter
		}
	}

	return out
}
