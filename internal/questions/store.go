package questions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/permitprep/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrSessionClosed = errors.New("test session already submitted")
)

// Repository persists the question bank and timed test sessions.
type Repository interface {
	ListQuestions(ctx context.Context) ([]models.Question, error)
	// UpsertQuestions writes qs in one transaction, replacing any existing
	// question with the same ID.
	UpsertQuestions(ctx context.Context, qs []models.Question) (inserted, updated int, err error)

	CreateSession(ctx context.Context, s *models.TestSession) error
	GetSession(ctx context.Context, id string) (*models.TestSession, error)
	// CloseSession records the result. It returns ErrSessionClosed when the
	// session was already submitted, so a result is stored exactly once.
	CloseSession(ctx context.Context, id string, score int, timedOut bool, at time.Time) error
	// DeleteExpiredSessions drops unsubmitted sessions that expired before cutoff.
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Question Bank ───────────────────────────────────────

func (s *Store) ListQuestions(ctx context.Context) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, jurisdiction, category, prompt, correct_answer, explanation
		 FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var qs []models.Question
	index := make(map[string]int)
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Jurisdiction, &q.Category, &q.Prompt, &q.CorrectAnswer, &q.Explanation); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(qs)
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	optRows, err := s.db.QueryContext(ctx,
		`SELECT question_id, letter, text FROM question_options ORDER BY question_id, letter`)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var qid string
		var o models.Option
		if err := optRows.Scan(&qid, &o.Letter, &o.Text); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[qid]; ok {
			qs[i].Options = append(qs[i].Options, o)
		}
	}
	return qs, optRows.Err()
}

func (s *Store) UpsertQuestions(ctx context.Context, qs []models.Question) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted, updated := 0, 0
	for _, q := range qs {
		var isInsert bool
		err := tx.QueryRowContext(ctx,
			`INSERT INTO questions (id, jurisdiction, category, prompt, correct_answer, explanation)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			    jurisdiction = EXCLUDED.jurisdiction,
			    category = EXCLUDED.category,
			    prompt = EXCLUDED.prompt,
			    correct_answer = EXCLUDED.correct_answer,
			    explanation = EXCLUDED.explanation,
			    updated_at = NOW()
			 RETURNING (xmax = 0)`,
			q.ID, q.Jurisdiction, q.Category, q.Prompt, q.CorrectAnswer, q.Explanation,
		).Scan(&isInsert)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert question %s: %w", q.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id = $1`, q.ID); err != nil {
			return 0, 0, fmt.Errorf("clear options %s: %w", q.ID, err)
		}
		for _, o := range q.Options {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO question_options (question_id, letter, text) VALUES ($1, $2, $3)`,
				q.ID, o.Letter, o.Text,
			); err != nil {
				return 0, 0, fmt.Errorf("insert option %s/%s: %w", q.ID, o.Letter, err)
			}
		}

		if isInsert {
			inserted++
		} else {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit upsert: %w", err)
	}
	return inserted, updated, nil
}

// ── Test Sessions ───────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, sess *models.TestSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_sessions (id, user_id, jurisdiction, test_index, question_ids, started_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.UserID, sess.Jurisdiction, sess.TestIndex, pq.Array(sess.QuestionIDs),
		sess.StartedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.TestSession, error) {
	var sess models.TestSession
	var submittedAt sql.NullTime
	var score sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, jurisdiction, test_index, question_ids, started_at, expires_at,
		        submitted_at, score, timed_out
		 FROM test_sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.UserID, &sess.Jurisdiction, &sess.TestIndex, pq.Array(&sess.QuestionIDs),
		&sess.StartedAt, &sess.ExpiresAt, &submittedAt, &score, &sess.TimedOut)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if submittedAt.Valid {
		sess.SubmittedAt = &submittedAt.Time
	}
	if score.Valid {
		v := int(score.Int64)
		sess.Score = &v
	}
	return &sess, nil
}

func (s *Store) CloseSession(ctx context.Context, id string, score int, timedOut bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_sessions SET submitted_at = $2, score = $3, timed_out = $4
		 WHERE id = $1 AND submitted_at IS NULL`,
		id, at, score, timedOut,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM test_sessions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrSessionClosed
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM test_sessions WHERE submitted_at IS NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// ── In-memory ───────────────────────────────────────────

// MemoryStore is a Repository for tests and database-less runs.
type MemoryStore struct {
	mu        sync.Mutex
	questions map[string]models.Question
	sessions  map[string]models.TestSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions: make(map[string]models.Question),
		sessions:  make(map[string]models.TestSession),
	}
}

func (m *MemoryStore) ListQuestions(_ context.Context) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Question, 0, len(m.questions))
	for _, q := range m.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertQuestions(_ context.Context, qs []models.Question) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted, updated := 0, 0
	for _, q := range qs {
		if _, ok := m.questions[q.ID]; ok {
			updated++
		} else {
			inserted++
		}
		q.Options = append([]models.Option(nil), q.Options...)
		m.questions[q.ID] = q
	}
	return inserted, updated, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *models.TestSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("create session: duplicate id %s", s.ID)
	}
	cp := *s
	cp.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	m.sessions[s.ID] = cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	return &s, nil
}

func (m *MemoryStore) CloseSession(_ context.Context, id string, score int, timedOut bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.SubmittedAt != nil {
		return ErrSessionClosed
	}
	s.SubmittedAt = &at
	s.Score = &score
	s.TimedOut = timedOut
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.SubmittedAt == nil && s.ExpiresAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
