package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"puzzlehunt/internal/answer"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/timegate"
)

func newAdminHandler(t *testing.T) (*AdminHandler, *memStore, *fakeAnnouncer) {
	t.Helper()
	st := newMemStore()
	ann := &fakeAnnouncer{}
	return NewAdminHandler(st, ann, zap.NewNop()), st, ann
}

func TestAdminCreateIssue_AnnouncesWhenLive(t *testing.T) {
	h, st, ann := newAdminHandler(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	rec := serve(h.CreateIssue, request(http.MethodPost, "/", `{"title":"Live","available_at":"2025-07-01T11:00"}`, 1, 0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var live adminIssueDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	assert.True(t, live.Available)
	assert.Equal(t, "2025-07-01T11:00:00Z", live.AvailableAt)

	rec = serve(h.CreateIssue, request(http.MethodPost, "/", `{"title":"Later","available_at":"2025-07-02T09:00:00+02:00"}`, 1, 0))
	require.Equal(t, http.StatusCreated, rec.Code)
	var later adminIssueDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &later))
	assert.False(t, later.Available)

	assert.Equal(t, []int{live.ID}, ann.issues)
	assert.Len(t, st.issues, 2)
}

func TestAdminCreateIssue_Validation(t *testing.T) {
	h, st, _ := newAdminHandler(t)

	rec := serve(h.CreateIssue, request(http.MethodPost, "/", `{"title":"X","available_at":"tomorrow"}`, 1, 0))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp validationErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "available_at")

	rec = serve(h.CreateIssue, request(http.MethodPost, "/", `{"available_at":"2025-07-01T11:00"}`, 1, 0))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, st.issues)
}

func TestAdminUpdateIssue_MovingIntoFutureRearms(t *testing.T) {
	h, st, ann := newAdminHandler(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	notified := now.Add(-time.Hour)
	is := models.Issue{Title: "Old", AvailableAt: now.Add(-2 * time.Hour), NotifiedAt: &notified}
	require.NoError(t, st.CreateIssue(t.Context(), &is))

	rec := serve(h.UpdateIssue, request(http.MethodPut, "/", `{"title":"Moved","available_at":"2025-07-03T00:00"}`, 1, is.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var out adminIssueDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Moved", out.Title)
	assert.False(t, out.Announced)
	assert.Empty(t, ann.issues)

	rec = serve(h.UpdateIssue, request(http.MethodPut, "/", `{"title":"Moved","available_at":"2025-07-03T00:00"}`, 1, 999))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPuzzles(t *testing.T) {
	h, st, _ := newAdminHandler(t)
	is := models.Issue{Title: "Summer", AvailableAt: time.Now()}
	require.NoError(t, st.CreateIssue(t.Context(), &is))

	rec := serve(h.CreatePuzzle, request(http.MethodPost, "/", `{"title":"Sphinx","description":"Legs?"}`, 1, 0))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, "answer is required on create")

	rec = serve(h.CreatePuzzle, request(http.MethodPost, "/", `{"title":"Sphinx","description":"Legs?","answer":"?!"}`, 1, 0))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, "answer with nothing left after normalizing")

	rec = serve(h.CreatePuzzle, request(http.MethodPost, "/", `{"title":"Sphinx","description":"Legs?","answer":"x","issue_id":999}`, 1, 0))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unknown issue")

	body := `{"title":"Sphinx","description":"Legs?","answer":"A Man","issue_id":` + itoa(is.ID) + `}`
	rec = serve(h.CreatePuzzle, request(http.MethodPost, "/", body, 1, 0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created PuzzleDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotContains(t, rec.Body.String(), "answer")

	stored := st.puzzles[created.ID]
	assert.True(t, answer.Verify(stored.AnswerHash, "aman"))
	originalHash := stored.AnswerHash

	rec = serve(h.UpdatePuzzle, request(http.MethodPut, "/", `{"title":"Sphinx II","description":"Legs?","answer":""}`, 1, created.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, originalHash, st.puzzles[created.ID].AnswerHash)
	assert.Equal(t, "Sphinx II", st.puzzles[created.ID].Title)
	assert.Nil(t, st.puzzles[created.ID].IssueID)

	rec = serve(h.UpdatePuzzle, request(http.MethodPut, "/", `{"title":"Sphinx II","description":"Legs?","answer":"Oedipus"}`, 1, created.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, answer.Verify(st.puzzles[created.ID].AnswerHash, "oedipus"))

	rec = serve(h.DeletePuzzle, request(http.MethodDelete, "/", "", 1, created.ID))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(h.DeletePuzzle, request(http.MethodDelete, "/", "", 1, created.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminHints(t *testing.T) {
	h, st, ann := newAdminHandler(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	p := models.Puzzle{Title: "Sphinx"}
	require.NoError(t, st.CreatePuzzle(t.Context(), &p))

	rec := serve(h.CreateHint, request(http.MethodPost, "/", `{"puzzle_id":`+itoa(p.ID)+`,"hint_text":"Later","unlock_date":"2025-07-03"}`, 1, 0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var later HintDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &later))
	assert.Equal(t, "2025-07-03", later.UnlockDate)
	assert.Empty(t, ann.hints)

	rec = serve(h.CreateHint, request(http.MethodPost, "/", `{"puzzle_id":`+itoa(p.ID)+`,"hint_text":"Today","unlock_date":"2025-07-01"}`, 1, 0))
	require.Equal(t, http.StatusCreated, rec.Code)
	var today HintDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &today))
	assert.Equal(t, []int{today.ID}, ann.hints)

	rec = serve(h.CreateHint, request(http.MethodPost, "/", `{"puzzle_id":`+itoa(p.ID)+`,"hint_text":"x","unlock_date":"07/01/2025"}`, 1, 0))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = serve(h.CreateHint, request(http.MethodPost, "/", `{"puzzle_id":999,"hint_text":"x","unlock_date":"2025-07-01"}`, 1, 0))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(h.UpdateHint, request(http.MethodPut, "/", `{"puzzle_id":`+itoa(p.ID)+`,"hint_text":"Sooner","unlock_date":"2025-06-30"}`, 1, later.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, timegate.Day(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)), st.hints[later.ID].UnlockDate)
	assert.Equal(t, []int{today.ID, later.ID}, ann.hints)
}

func TestAdminDeleteUser(t *testing.T) {
	h, st, _ := newAdminHandler(t)
	admin := addUser(t, st, "root", "root@example.com", "secret1")
	admin.IsAdmin = true
	st.users[admin.ID] = admin
	player := addUser(t, st, "alice", "alice@example.com", "secret1")

	rec := serve(h.DeleteUser, request(http.MethodDelete, "/", "", admin.ID, admin.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h.DeleteUser, request(http.MethodDelete, "/", "", admin.ID, player.ID))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, st.users, player.ID)

	rec = serve(h.DeleteUser, request(http.MethodDelete, "/", "", admin.ID, player.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminOverview(t *testing.T) {
	h, st, _ := newAdminHandler(t)
	u := addUser(t, st, "alice", "alice@example.com", "secret1")
	p := models.Puzzle{Title: "Sphinx"}
	require.NoError(t, st.CreatePuzzle(t.Context(), &p))
	require.NoError(t, st.CreateSubmission(t.Context(), &models.Submission{UserID: u.ID, PuzzleID: p.ID, IsCorrect: true}))

	rec := serve(h.Overview, request(http.MethodGet, "/", "", u.ID, 0))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		TotalUsers         int             `json:"total_users"`
		TotalPuzzles       int             `json:"total_puzzles"`
		CorrectSubmissions int             `json:"correct_submissions"`
		RecentUsers        []UserDTO       `json:"recent_users"`
		RecentSubmissions  []SubmissionDTO `json:"recent_submissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.TotalUsers)
	assert.Equal(t, 1, out.TotalPuzzles)
	assert.Equal(t, 1, out.CorrectSubmissions)
	require.Len(t, out.RecentUsers, 1)
	require.Len(t, out.RecentSubmissions, 1)
	assert.Equal(t, "alice", out.RecentSubmissions[0].Username)
}

func TestHealth(t *testing.T) {
	ok := NewHealthHandler(fakePinger{}, func() []string { return nil }, func() bool { return true })
	rec := serve(ok.Detailed, request(http.MethodGet, "/health/detailed", "", 0, 0))
	require.Equal(t, http.StatusOK, rec.Code)
	var out detailedHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, "running", out.Checks["poller"].Status)

	down := NewHealthHandler(fakePinger{err: errDown}, func() []string { return []string{"JWT_SECRET"} }, nil)
	rec = serve(down.Detailed, request(http.MethodGet, "/health/detailed", "", 0, 0))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out = detailedHealth{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "unhealthy", out.Checks["database"].Status)
	assert.Contains(t, out.Checks["environment"].Error, "JWT_SECRET")
	assert.Equal(t, "disabled", out.Checks["poller"].Status)

	assert.Equal(t, http.StatusServiceUnavailable, serve(down.Readiness, request(http.MethodGet, "/", "", 0, 0)).Code)
	assert.Equal(t, http.StatusOK, serve(ok.Readiness, request(http.MethodGet, "/", "", 0, 0)).Code)
	assert.Equal(t, http.StatusOK, serve(down.Liveness, request(http.MethodGet, "/", "", 0, 0)).Code)
	assert.Equal(t, http.StatusOK, serve(down.Health, request(http.MethodGet, "/", "", 0, 0)).Code)
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
