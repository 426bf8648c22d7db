package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"puzzlehunt/internal/answer"
	"puzzlehunt/internal/metrics"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
)

type memStore struct {
	mu          sync.Mutex
	puzzles     map[int]models.Puzzle
	issues      map[int]models.Issue
	submissions []models.Submission
	// beforeCreate runs between the solved check and the insert.
	beforeCreate func()
}

func (m *memStore) PuzzleByID(_ context.Context, id int) (models.Puzzle, error) {
	p, ok := m.puzzles[id]
	if !ok {
		return models.Puzzle{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) IssueByID(_ context.Context, id int) (models.Issue, error) {
	is, ok := m.issues[id]
	if !ok {
		return models.Issue{}, store.ErrNotFound
	}
	return is, nil
}

func (m *memStore) HasCorrectSubmission(_ context.Context, userID, puzzleID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.submissions {
		if s.UserID == userID && s.PuzzleID == puzzleID && s.IsCorrect {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateSubmission(_ context.Context, sub *models.Submission) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.IsCorrect {
		for _, s := range m.submissions {
			if s.UserID == sub.UserID && s.PuzzleID == sub.PuzzleID && s.IsCorrect {
				return store.ErrConflict
			}
		}
	}
	sub.ID = len(m.submissions) + 1
	sub.SubmittedAt = time.Now()
	m.submissions = append(m.submissions, *sub)
	return nil
}

func digest(t *testing.T, raw string) string {
	t.Helper()
	d, err := answer.Digest(answer.Normalize(raw))
	require.NoError(t, err)
	return d
}

func intPtr(i int) *int { return &i }

func newTestSubmissionService(t *testing.T, now time.Time) (*SubmissionService, *memStore, *metrics.Metrics) {
	t.Helper()
	st := &memStore{
		puzzles: map[int]models.Puzzle{
			1: {ID: 1, Title: "Palindrome", AnswerHash: digest(t, "A man")},
			2: {ID: 2, Title: "Locked", AnswerHash: digest(t, "later"), IssueID: intPtr(10)},
			3: {ID: 3, Title: "Open", AnswerHash: digest(t, "open sesame"), IssueID: intPtr(11)},
		},
		issues: map[int]models.Issue{
			10: {ID: 10, Title: "Next week", AvailableAt: now.Add(time.Hour)},
			11: {ID: 11, Title: "This week", AvailableAt: now.Add(-time.Hour)},
		},
	}
	m := metrics.NewNop()
	svc := NewSubmissionService(st, zap.NewNop(), m)
	svc.now = func() time.Time { return now }
	return svc, st, m
}

func TestSubmit_IncorrectThenCorrectThenRejected(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, st, m := newTestSubmissionService(t, now)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, 7, 1, "a woman")
	require.NoError(t, err)
	assert.False(t, sub.IsCorrect)
	assert.Equal(t, "a woman", sub.SubmittedAnswer)

	sub, err = svc.Submit(ctx, 7, 1, "A-MAN!")
	require.NoError(t, err)
	assert.True(t, sub.IsCorrect)
	assert.Equal(t, "A-MAN!", sub.SubmittedAnswer, "raw text is stored")

	_, err = svc.Submit(ctx, 7, 1, "aman")
	assert.ErrorIs(t, err, ErrAlreadySolved)

	require.Len(t, st.submissions, 2)
	assert.False(t, st.submissions[0].IsCorrect)
	assert.True(t, st.submissions[1].IsCorrect)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsProcessed.WithLabelValues("correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsProcessed.WithLabelValues("incorrect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsProcessed.WithLabelValues("already_solved")))
}

func TestSubmit_OtherUsersAreIndependent(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestSubmissionService(t, now)
	ctx := context.Background()

	_, err := svc.Submit(ctx, 7, 1, "aman")
	require.NoError(t, err)

	sub, err := svc.Submit(ctx, 8, 1, "a man")
	require.NoError(t, err)
	assert.True(t, sub.IsCorrect)
}

func TestSubmit_LockedIssue(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestSubmissionService(t, now)

	_, err := svc.Submit(context.Background(), 7, 2, "later")
	assert.ErrorIs(t, err, ErrPuzzleLocked)
	assert.Empty(t, st.submissions)

	sub, err := svc.Submit(context.Background(), 7, 3, "Open, Sesame!")
	require.NoError(t, err)
	assert.True(t, sub.IsCorrect)
}

func TestSubmit_UnlocksAtExactInstant(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestSubmissionService(t, now)
	st.issues[10] = models.Issue{ID: 10, AvailableAt: now}

	_, err := svc.Submit(context.Background(), 7, 2, "later")
	require.NoError(t, err)
}

func TestSubmit_Errors(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestSubmissionService(t, now)

	_, err := svc.Submit(context.Background(), 7, 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	_, err = svc.Submit(context.Background(), 7, 404, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Empty(t, st.submissions)
}

func TestGate(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestSubmissionService(t, now)
	ctx := context.Background()

	issue, err := svc.Gate(ctx, st.puzzles[1])
	require.NoError(t, err)
	assert.Nil(t, issue)

	issue, err = svc.Gate(ctx, st.puzzles[2])
	assert.ErrorIs(t, err, ErrPuzzleLocked)
	require.NotNil(t, issue)
	assert.Equal(t, 10, issue.ID)

	issue, err = svc.Gate(ctx, st.puzzles[3])
	require.NoError(t, err)
	assert.Equal(t, 11, issue.ID)

	// Issue deleted out from under the puzzle: treated as standalone.
	orphan := models.Puzzle{ID: 4, IssueID: intPtr(99)}
	issue, err = svc.Gate(ctx, orphan)
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestSubmit_ConcurrentSolveIsRecordedOnce(t *testing.T) {
	svc, st, m := newTestSubmissionService(t, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))
	st.beforeCreate = func() {
		st.beforeCreate = nil
		st.mu.Lock()
		st.submissions = append(st.submissions, models.Submission{ID: 99, UserID: 7, PuzzleID: 1, SubmittedAnswer: "a man", IsCorrect: true})
		st.mu.Unlock()
	}

	_, err := svc.Submit(context.Background(), 7, 1, "A Man")
	assert.ErrorIs(t, err, ErrAlreadySolved)
	require.Len(t, st.submissions, 1)
	assert.Equal(t, 99, st.submissions[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsProcessed.WithLabelValues("already_solved")))
}
