package training

import "github.com/permitprep/backend/internal/models"

// NextQuestion picks the next question to serve from subset.
//
// Priority: never-missed questions in subset order, then the wrong queue in
// FIFO order. The last served question is skipped while anything else is
// still unmastered. ok is false once every question in subset is mastered.
func NextQuestion(subset []models.Question, mastered map[string]bool, wrongQueue []string, lastServedID string) (q models.Question, ok bool) {
	unmastered := make([]models.Question, 0, len(subset))
	for _, sq := range subset {
		if !mastered[sq.ID] {
			unmastered = append(unmastered, sq)
		}
	}
	if len(unmastered) == 0 {
		return models.Question{}, false
	}

	candidates := unmastered
	if len(unmastered) > 1 && lastServedID != "" {
		candidates = make([]models.Question, 0, len(unmastered))
		for _, sq := range unmastered {
			if sq.ID != lastServedID {
				candidates = append(candidates, sq)
			}
		}
	}

	queued := make(map[string]bool, len(wrongQueue))
	for _, id := range wrongQueue {
		queued[id] = true
	}
	for _, sq := range candidates {
		if !queued[sq.ID] {
			return sq, true
		}
	}

	byID := make(map[string]models.Question, len(candidates))
	for _, sq := range candidates {
		byID[sq.ID] = sq
	}
	for _, id := range wrongQueue {
		if sq, found := byID[id]; found {
			return sq, true
		}
	}

	// Unreachable while the queue only holds unmastered subset members.
	return candidates[0], true
}

// InQueue reports whether id is pending re-drill.
func InQueue(wrongQueue []string, id string) bool {
	return containsID(wrongQueue, id)
}
