package training

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/permitprep/backend/internal/models"
)

// Repository persists mastery state. UpdateMastery must run fn against the
// freshest committed state and write its result atomically.
type Repository interface {
	GetMastery(ctx context.Context, key models.MasteryKey) (*models.MasteryState, error)
	UpdateMastery(ctx context.Context, key models.MasteryKey, fn func(models.MasteryState) (models.MasteryState, error)) (*models.MasteryState, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Mastery State ───────────────────────────────────────

func (s *Store) GetMastery(ctx context.Context, key models.MasteryKey) (*models.MasteryState, error) {
	var st models.MasteryState
	var served []byte
	var updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT mastered_ids, wrong_queue, last_served_id, served_answers, updated_at
		 FROM mastery_states
		 WHERE user_id = $1 AND jurisdiction = $2 AND set_key = $3`,
		key.UserID, key.Jurisdiction, key.Set,
	).Scan(pq.Array(&st.MasteredIDs), pq.Array(&st.WrongQueue), &st.LastServedID, &served, &updatedAt)
	if err == sql.ErrNoRows {
		return &models.MasteryState{MasteredIDs: []string{}, WrongQueue: []string{}, ServedAnswers: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mastery: %w", err)
	}
	if err := json.Unmarshal(served, &st.ServedAnswers); err != nil {
		return nil, fmt.Errorf("decode served answers: %w", err)
	}
	if updatedAt.Valid {
		st.UpdatedAt = updatedAt.Time
	}
	return &st, nil
}

func (s *Store) UpdateMastery(ctx context.Context, key models.MasteryKey, fn func(models.MasteryState) (models.MasteryState, error)) (*models.MasteryState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO mastery_states (user_id, jurisdiction, set_key) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, jurisdiction, set_key) DO NOTHING`,
		key.UserID, key.Jurisdiction, key.Set,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert mastery: %w", err)
	}

	var current models.MasteryState
	var served []byte
	err = tx.QueryRowContext(ctx,
		`SELECT mastered_ids, wrong_queue, last_served_id, served_answers, updated_at
		 FROM mastery_states
		 WHERE user_id = $1 AND jurisdiction = $2 AND set_key = $3
		 FOR UPDATE`,
		key.UserID, key.Jurisdiction, key.Set,
	).Scan(pq.Array(&current.MasteredIDs), pq.Array(&current.WrongQueue),
		&current.LastServedID, &served, &current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock mastery: %w", err)
	}
	if err := json.Unmarshal(served, &current.ServedAnswers); err != nil {
		return nil, fmt.Errorf("decode served answers: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next.MasteredIDs == nil {
		next.MasteredIDs = []string{}
	}
	if next.WrongQueue == nil {
		next.WrongQueue = []string{}
	}
	if next.ServedAnswers == nil {
		next.ServedAnswers = map[string]string{}
	}
	servedJSON, err := json.Marshal(next.ServedAnswers)
	if err != nil {
		return nil, fmt.Errorf("encode served answers: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE mastery_states SET
		    mastered_ids = $4, wrong_queue = $5,
		    last_served_id = $6, served_answers = $7::jsonb,
		    updated_at = NOW()
		 WHERE user_id = $1 AND jurisdiction = $2 AND set_key = $3`,
		key.UserID, key.Jurisdiction, key.Set,
		pq.Array(next.MasteredIDs), pq.Array(next.WrongQueue),
		next.LastServedID, string(servedJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("update mastery: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mastery: %w", err)
	}
	return &next, nil
}

// ── In-Memory Repository ────────────────────────────────

// MemoryStore is a Repository for tests and single-process development.
// One mutex serializes every update, which makes each one atomic.
type MemoryStore struct {
	mu     sync.Mutex
	states map[models.MasteryKey]models.MasteryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[models.MasteryKey]models.MasteryState)}
}

func (m *MemoryStore) GetMastery(ctx context.Context, key models.MasteryKey) (*models.MasteryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.states[key].Clone()
	return &st, nil
}

func (m *MemoryStore) UpdateMastery(ctx context.Context, key models.MasteryKey, fn func(models.MasteryState) (models.MasteryState, error)) (*models.MasteryState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(m.states[key].Clone())
	if err != nil {
		return nil, err
	}
	m.states[key] = next.Clone()
	return &next, nil
}
