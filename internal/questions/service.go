package questions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/permitprep/backend/internal/bankcheck"
	"github.com/permitprep/backend/internal/content"
	"github.com/permitprep/backend/internal/models"
)

var (
	// ErrEmptySet means the bank holds no questions for the requested test.
	ErrEmptySet = errors.New("no questions available for this test")
	// ErrVerifierUnavailable is returned when a verified report is requested
	// but no model client is configured.
	ErrVerifierUnavailable = errors.New("answer verification is not configured")
)

// Unsubmitted sessions are kept this long past their deadline so a late
// submit can still be scored.
const sessionRetention = 24 * time.Hour

// AttemptRecorder receives every scored test exactly once.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, userID int64, jurisdiction string, testIndex, score int) (*models.AttemptRecord, error)
}

type Service struct {
	repo     Repository
	catalog  *Catalog
	attempts AttemptRecorder
	verifier *bankcheck.Verifier
	now      func() time.Time
}

func NewService(repo Repository, catalog *Catalog) *Service {
	return &Service{repo: repo, catalog: catalog, now: time.Now}
}

// SetAttemptRecorder sets the progress sink. Breaks the init cycle between
// the questions and progress services.
func (s *Service) SetAttemptRecorder(a AttemptRecorder) {
	s.attempts = a
}

func (s *Service) SetVerifier(v *bankcheck.Verifier) {
	s.verifier = v
}

// ── Bank Loading ────────────────────────────────────────

// LoadBank replaces the in-memory snapshot with the persisted bank.
func (s *Service) LoadBank(ctx context.Context) error {
	qs, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return fmt.Errorf("load bank: %w", err)
	}
	s.catalog.Replace(qs)
	log.Printf("[questions] bank loaded: %d questions across %d jurisdictions",
		len(qs), len(s.catalog.Bank().Jurisdictions()))
	return nil
}

// SeedFromDir imports every *.json file in dir. A file named after a
// jurisdiction (ca.json, all.json) supplies the default tag for records
// that carry none.
func (s *Service) SeedFromDir(ctx context.Context, dir string) (*models.ImportResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list seed files: %w", err)
	}
	sort.Strings(paths)

	total := &models.ImportResult{}
	var all []models.Question
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		base := filepath.Base(p)
		qs, res, err := s.normalize(data, jurisdictionFromFilename(base))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", base, err)
		}
		for _, e := range res.Errors {
			total.Errors = append(total.Errors, base+": "+e)
		}
		total.TotalInPayload += res.TotalInPayload
		total.Skipped += res.Skipped
		all = append(all, qs...)
	}

	if err := s.store(ctx, all, total); err != nil {
		return nil, err
	}
	log.Printf("[questions] seeded from %s: %d files, %d new, %d updated, %d skipped",
		dir, len(paths), total.Imported, total.Updated, total.Skipped)
	return total, nil
}

func jurisdictionFromFilename(name string) string {
	stem := strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name)))
	switch stem {
	case models.UniversalJurisdiction, "UNIVERSAL":
		return models.UniversalJurisdiction
	}
	if j, err := NormalizeJurisdiction(stem); err == nil {
		return j
	}
	return ""
}

// ── Import / Export ─────────────────────────────────────

// Import normalizes a bank file of any supported shape and upserts it.
// Malformed records are skipped and reported; they never abort the import.
func (s *Service) Import(ctx context.Context, data []byte, defaultJurisdiction string) (*models.ImportResult, error) {
	qs, result, err := s.normalize(data, defaultJurisdiction)
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, qs, result); err != nil {
		return nil, err
	}
	log.Printf("[questions] import: %d in payload, %d new, %d updated, %d skipped",
		result.TotalInPayload, result.Imported, result.Updated, result.Skipped)
	return result, nil
}

func (s *Service) normalize(data []byte, defaultJurisdiction string) ([]models.Question, *models.ImportResult, error) {
	res, err := content.Normalize(data, defaultJurisdiction)
	if err != nil {
		return nil, nil, err
	}

	result := &models.ImportResult{TotalInPayload: len(res.Questions) + len(res.Errors)}
	for _, e := range res.Errors {
		result.Errors = append(result.Errors, e.Error())
	}

	valid := make([]models.Question, 0, len(res.Questions))
	for _, q := range res.Questions {
		if q.Jurisdiction != models.UniversalJurisdiction {
			j, err := NormalizeJurisdiction(q.Jurisdiction)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v %q", q.ID, err, q.Jurisdiction))
				continue
			}
			q.Jurisdiction = j
		}
		valid = append(valid, q)
	}
	result.Skipped = result.TotalInPayload - len(valid)
	return valid, result, nil
}

func (s *Service) store(ctx context.Context, qs []models.Question, result *models.ImportResult) error {
	if len(qs) == 0 {
		return nil
	}
	inserted, updated, err := s.repo.UpsertQuestions(ctx, qs)
	if err != nil {
		return fmt.Errorf("import questions: %w", err)
	}
	result.Imported += inserted
	result.Updated += updated
	return s.LoadBank(ctx)
}

func (s *Service) Export(ctx context.Context) (*models.BankEnvelope, error) {
	qs, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("export questions: %w", err)
	}
	if qs == nil {
		qs = []models.Question{}
	}
	return &models.BankEnvelope{
		Version:    1,
		ExportedAt: s.now().UTC(),
		Questions:  qs,
	}, nil
}

// ── Timed Tests ─────────────────────────────────────────

// StartTest opens a timed session over the fixed subset for (jurisdiction,
// index), presented in a fresh random order.
func (s *Service) StartTest(ctx context.Context, userID int64, jurisdiction string, index int) (*models.TestSessionResponse, error) {
	subset, err := s.catalog.Bank().Subset(jurisdiction, index)
	if err != nil {
		return nil, err
	}
	if len(subset) == 0 {
		return nil, ErrEmptySet
	}

	family := FamilyFor(jurisdiction)
	ordered := ShuffleOrder(subset)
	now := s.now()
	sess := &models.TestSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		Jurisdiction: jurisdiction,
		TestIndex:    index,
		QuestionIDs:  models.QuestionIDs(ordered),
		StartedAt:    now,
		ExpiresAt:    now.Add(family.TimeLimit),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	log.Printf("[tests] user %d started %s test %d (%d questions)", userID, jurisdiction, index, len(ordered))
	return s.sessionResponse(sess, ordered), nil
}

func (s *Service) GetTestSession(ctx context.Context, userID int64, id string) (*models.TestSessionResponse, error) {
	sess, err := s.ownedSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.sessionResponse(sess, s.lookup(sess.QuestionIDs)), nil
}

// SubmitTest scores a session. A submission after the deadline is still
// scored but flagged as timed out. A second submission gets ErrSessionClosed.
func (s *Service) SubmitTest(ctx context.Context, userID int64, id string, answers map[string]string) (*models.TestResult, error) {
	sess, err := s.ownedSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.SubmittedAt != nil {
		return nil, ErrSessionClosed
	}

	now := s.now()
	result := &models.TestResult{
		SessionID:    sess.ID,
		Jurisdiction: sess.Jurisdiction,
		TestIndex:    sess.TestIndex,
		TimedOut:     now.After(sess.ExpiresAt),
		Review:       make([]models.ReviewItem, 0, len(sess.QuestionIDs)),
	}
	for _, q := range s.lookup(sess.QuestionIDs) {
		selected := strings.ToUpper(strings.TrimSpace(answers[q.ID]))
		correct := selected == q.CorrectAnswer
		if correct {
			result.Score++
		}
		result.Review = append(result.Review, models.ReviewItem{
			QuestionID:    q.ID,
			Selected:      selected,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       correct,
			Explanation:   q.Explanation,
		})
	}
	result.Total = len(result.Review)
	result.PassingScore = FamilyFor(sess.Jurisdiction).PassingScore(result.Total)
	result.Passed = result.Total > 0 && result.Score >= result.PassingScore

	if err := s.repo.CloseSession(ctx, sess.ID, result.Score, result.TimedOut, now); err != nil {
		return nil, err
	}

	if s.attempts != nil {
		rec, err := s.attempts.RecordAttempt(ctx, userID, sess.Jurisdiction, sess.TestIndex, result.Score)
		if err != nil {
			log.Printf("WARN: attempt not recorded for session %s: %v", sess.ID, err)
		} else {
			result.Attempt = rec
		}
	}

	log.Printf("[tests] user %d submitted %s test %d: %d/%d (timed_out=%v)",
		userID, sess.Jurisdiction, sess.TestIndex, result.Score, result.Total, result.TimedOut)
	return result, nil
}

func (s *Service) ownedSession(ctx context.Context, userID int64, id string) (*models.TestSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// lookup resolves ids against the current bank, keeping order. Questions
// removed since the session started are dropped.
func (s *Service) lookup(ids []string) []models.Question {
	bank := s.catalog.Bank()
	out := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := bank.Get(id)
		if !ok {
			log.Printf("WARN: question %s no longer in bank", id)
			continue
		}
		out = append(out, q)
	}
	return out
}

func (s *Service) sessionResponse(sess *models.TestSession, qs []models.Question) *models.TestSessionResponse {
	served := make([]models.ServedQuestion, len(qs))
	for i, q := range qs {
		served[i] = q.ToServed()
	}
	return &models.TestSessionResponse{
		SessionID:        sess.ID,
		Jurisdiction:     sess.Jurisdiction,
		TestIndex:        sess.TestIndex,
		Questions:        served,
		TimeLimitSeconds: int(FamilyFor(sess.Jurisdiction).TimeLimit.Seconds()),
		ExpiresAt:        sess.ExpiresAt,
		Submitted:        sess.SubmittedAt != nil,
	}
}

// ── Session Sweeper ─────────────────────────────────────

func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, s.now().Add(-sessionRetention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[session-sweeper] removed %d abandoned sessions", n)
	}
	return n, nil
}

func (s *Service) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[session-sweeper] started")

	for {
		select {
		case <-ctx.Done():
			log.Println("[session-sweeper] shutting down")
			return
		case <-ticker.C:
			if _, err := s.SweepExpiredSessions(ctx); err != nil {
				log.Printf("[session-sweeper] error: %v", err)
			}
		}
	}
}

// ── Bank Report ─────────────────────────────────────────

// ExpectedCount is how many questions a complete bank holds for tag j.
func ExpectedCount(j string) int {
	switch j {
	case models.UniversalJurisdiction:
		return FamilyDMV.MaxIndex * FamilyDMV.UniversalStride
	case CDLJurisdiction:
		return FamilyCDL.MaxIndex * FamilyCDL.JurisdictionStride
	default:
		return FamilyDMV.MaxIndex * FamilyDMV.JurisdictionStride
	}
}

// BankReport runs the content checks over each jurisdiction in the loaded
// bank. With verify set, each question is also answered by the model.
func (s *Service) BankReport(ctx context.Context, verify bool) ([]*bankcheck.Report, error) {
	if verify && s.verifier == nil {
		return nil, ErrVerifierUnavailable
	}

	bank := s.catalog.Bank()
	reports := make([]*bankcheck.Report, 0, len(bank.Jurisdictions()))
	for _, j := range bank.Jurisdictions() {
		qs := bank.Jurisdiction(j)
		r := bankcheck.Run(qs, bankcheck.Options{Jurisdiction: j, Expected: ExpectedCount(j)})
		if verify {
			r.Add(bankcheck.CategoryVerification, s.verifier.Verify(ctx, qs))
		}
		reports = append(reports, r)
	}
	return reports, nil
}
