package progress

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/permitprep/backend/internal/models"
)

// Repository persists attempt records and training tallies. Both update
// methods are atomic read-modify-writes.
type Repository interface {
	ListAttempts(ctx context.Context, userID int64, jurisdiction string) ([]models.AttemptRecord, error)
	RecordAttempt(ctx context.Context, userID int64, jurisdiction string, testIndex, score int, at time.Time) (*models.AttemptRecord, error)
	GetTally(ctx context.Context, userID int64) (*models.TrainingTally, error)
	UpdateTally(ctx context.Context, userID int64, fn func(models.TrainingTally) models.TrainingTally) (*models.TrainingTally, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Attempt Records ─────────────────────────────────────

func (s *Store) ListAttempts(ctx context.Context, userID int64, jurisdiction string) ([]models.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jurisdiction, test_index, attempt_count, first_score, best_score, last_score, last_attempt_at
		 FROM test_attempts
		 WHERE user_id = $1 AND jurisdiction = $2
		 ORDER BY test_index`,
		userID, jurisdiction,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []models.AttemptRecord
	for rows.Next() {
		var a models.AttemptRecord
		if err := rows.Scan(&a.Jurisdiction, &a.TestIndex, &a.AttemptCount, &a.FirstScore,
			&a.BestScore, &a.LastScore, &a.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) RecordAttempt(ctx context.Context, userID int64, jurisdiction string, testIndex, score int, at time.Time) (*models.AttemptRecord, error) {
	var a models.AttemptRecord
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO test_attempts
		    (user_id, jurisdiction, test_index, attempt_count, first_score, best_score, last_score, last_attempt_at)
		 VALUES ($1, $2, $3, 1, $4, $4, $4, $5)
		 ON CONFLICT (user_id, jurisdiction, test_index) DO UPDATE SET
		    attempt_count = test_attempts.attempt_count + 1,
		    best_score = GREATEST(test_attempts.best_score, EXCLUDED.best_score),
		    last_score = EXCLUDED.last_score,
		    last_attempt_at = EXCLUDED.last_attempt_at
		 RETURNING jurisdiction, test_index, attempt_count, first_score, best_score, last_score, last_attempt_at`,
		userID, jurisdiction, testIndex, score, at,
	).Scan(&a.Jurisdiction, &a.TestIndex, &a.AttemptCount, &a.FirstScore, &a.BestScore, &a.LastScore, &a.LastAttemptAt)
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return &a, nil
}

// ── Training Tallies ────────────────────────────────────

func (s *Store) GetTally(ctx context.Context, userID int64) (*models.TrainingTally, error) {
	var t models.TrainingTally
	err := s.db.QueryRowContext(ctx,
		`SELECT correct_count, incorrect_count, current_streak, best_streak, total_correct_all_time, updated_at
		 FROM training_tallies WHERE user_id = $1`,
		userID,
	).Scan(&t.CorrectCount, &t.IncorrectCount, &t.CurrentStreak, &t.BestStreak, &t.TotalCorrectAllTime, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.TrainingTally{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tally: %w", err)
	}
	return &t, nil
}

func (s *Store) UpdateTally(ctx context.Context, userID int64, fn func(models.TrainingTally) models.TrainingTally) (*models.TrainingTally, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO training_tallies (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert tally: %w", err)
	}

	var t models.TrainingTally
	err = tx.QueryRowContext(ctx,
		`SELECT correct_count, incorrect_count, current_streak, best_streak, total_correct_all_time, updated_at
		 FROM training_tallies WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).Scan(&t.CorrectCount, &t.IncorrectCount, &t.CurrentStreak, &t.BestStreak, &t.TotalCorrectAllTime, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock tally: %w", err)
	}

	next := fn(t)
	_, err = tx.ExecContext(ctx,
		`UPDATE training_tallies SET
		    correct_count = $2, incorrect_count = $3,
		    current_streak = $4, best_streak = $5,
		    total_correct_all_time = $6, updated_at = NOW()
		 WHERE user_id = $1`,
		userID, next.CorrectCount, next.IncorrectCount,
		next.CurrentStreak, next.BestStreak, next.TotalCorrectAllTime,
	)
	if err != nil {
		return nil, fmt.Errorf("update tally: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tally: %w", err)
	}
	return &next, nil
}

// ── In-Memory Repository ────────────────────────────────

type attemptKey struct {
	userID       int64
	jurisdiction string
	testIndex    int
}

type MemoryStore struct {
	mu       sync.Mutex
	attempts map[attemptKey]models.AttemptRecord
	tallies  map[int64]models.TrainingTally
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[attemptKey]models.AttemptRecord),
		tallies:  make(map[int64]models.TrainingTally),
	}
}

func (m *MemoryStore) ListAttempts(ctx context.Context, userID int64, jurisdiction string) ([]models.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.AttemptRecord
	for k, a := range m.attempts {
		if k.userID == userID && k.jurisdiction == jurisdiction {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestIndex < out[j].TestIndex })
	return out, nil
}

func (m *MemoryStore) RecordAttempt(ctx context.Context, userID int64, jurisdiction string, testIndex, score int, at time.Time) (*models.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := attemptKey{userID, jurisdiction, testIndex}
	rec := m.attempts[k]
	rec.Jurisdiction = jurisdiction
	rec.TestIndex = testIndex
	rec = ApplyAttempt(rec, score, at)
	m.attempts[k] = rec
	return &rec, nil
}

func (m *MemoryStore) GetTally(ctx context.Context, userID int64) (*models.TrainingTally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tallies[userID]
	return &t, nil
}

func (m *MemoryStore) UpdateTally(ctx context.Context, userID int64, fn func(models.TrainingTally) models.TrainingTally) (*models.TrainingTally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := fn(m.tallies[userID])
	m.tallies[userID] = next
	return &next, nil
}
