package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"puzzlehunt/internal/middleware"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
	"puzzlehunt/internal/timegate"
)

// memStore is an in-memory stand-in for store.Store.
type memStore struct {
	mu          sync.Mutex
	users       map[int]models.User
	issues      map[int]models.Issue
	puzzles     map[int]models.Puzzle
	hints       map[int]models.Hint
	submissions []models.Submission
	nextID      int
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[int]models.User{},
		issues:  map[int]models.Issue{},
		puzzles: map[int]models.Puzzle{},
		hints:   map[int]models.Hint{},
	}
}

func (m *memStore) id() int {
	m.nextID++
	return m.nextID
}

func (m *memStore) UsernameTaken(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) EmailTaken(_ context.Context, email string) (bool, error) {
	_, err := m.UserByEmail(context.Background(), email)
	return err == nil, nil
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.id()
	u.CreatedAt = time.Now()
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) UserByID(_ context.Context, id int) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) UserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (m *memStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (m *memStore) UpdatePassword(_ context.Context, userID int, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[userID] = u
	return nil
}

func (m *memStore) UpdatePreferences(_ context.Context, userID int, p store.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.DisplayName = p.DisplayName
	u.EmailNotifications = p.EmailNotifications
	u.NotifyNewIssues = p.NotifyNewIssues
	u.NotifyNewHints = p.NotifyNewHints
	m.users[userID] = u
	return nil
}

func (m *memStore) ListUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) RecentUsers(ctx context.Context, limit int) ([]models.User, error) {
	users, _ := m.ListUsers(ctx)
	sort.Slice(users, func(i, j int) bool { return users[i].ID > users[j].ID })
	return users[:min(limit, len(users))], nil
}

func (m *memStore) DeleteUser(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ListIssues(context.Context) ([]models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Issue{}
	for _, is := range m.issues {
		out = append(out, is)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) IssueByID(_ context.Context, id int) (models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, ok := m.issues[id]
	if !ok {
		return models.Issue{}, store.ErrNotFound
	}
	return is, nil
}

func (m *memStore) CreateIssue(_ context.Context, is *models.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	is.ID = m.id()
	m.issues[is.ID] = *is
	return nil
}

func (m *memStore) UpdateIssue(_ context.Context, is models.Issue, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.issues[is.ID]
	if !ok {
		return store.ErrNotFound
	}
	if is.AvailableAt.After(now) {
		cur.NotifiedAt = nil
	}
	cur.Title, cur.Description, cur.PDFFilename, cur.AvailableAt = is.Title, is.Description, is.PDFFilename, is.AvailableAt
	m.issues[is.ID] = cur
	return nil
}

func (m *memStore) DeleteIssue(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.issues, id)
	return nil
}

func (m *memStore) ListPuzzles(context.Context) ([]models.Puzzle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Puzzle{}
	for _, p := range m.puzzles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) PuzzlesByIssue(ctx context.Context, issueID int) ([]models.Puzzle, error) {
	all, _ := m.ListPuzzles(ctx)
	out := []models.Puzzle{}
	for _, p := range all {
		if p.IssueID != nil && *p.IssueID == issueID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) PuzzleByID(_ context.Context, id int) (models.Puzzle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.puzzles[id]
	if !ok {
		return models.Puzzle{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) CreatePuzzle(_ context.Context, p *models.Puzzle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	m.puzzles[p.ID] = *p
	return nil
}

func (m *memStore) UpdatePuzzle(_ context.Context, p models.Puzzle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.puzzles[p.ID]; !ok {
		return store.ErrNotFound
	}
	m.puzzles[p.ID] = p
	return nil
}

func (m *memStore) DeletePuzzle(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.puzzles[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.puzzles, id)
	return nil
}

func (m *memStore) ListHints(context.Context) ([]models.Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Hint{}
	for _, h := range m.hints {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) HintByID(_ context.Context, id int) (models.Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hints[id]
	if !ok {
		return models.Hint{}, store.ErrNotFound
	}
	return h, nil
}

func (m *memStore) UnlockedHints(ctx context.Context, puzzleID int, today time.Time) ([]models.Hint, error) {
	all, _ := m.ListHints(ctx)
	out := []models.Hint{}
	for _, h := range all {
		if h.PuzzleID == puzzleID && timegate.DateVisible(today, h.UnlockDate) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UnlockDate.Before(out[j].UnlockDate) })
	return out, nil
}

func (m *memStore) CreateHint(_ context.Context, h *models.Hint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = m.id()
	m.hints[h.ID] = *h
	return nil
}

func (m *memStore) UpdateHint(_ context.Context, h models.Hint, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hints[h.ID]; !ok {
		return store.ErrNotFound
	}
	m.hints[h.ID] = h
	return nil
}

func (m *memStore) DeleteHint(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hints[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.hints, id)
	return nil
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
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = m.id()
	sub.SubmittedAt = time.Now()
	m.submissions = append(m.submissions, *sub)
	return nil
}

func (m *memStore) SolvedPuzzleIDs(_ context.Context, userID int) (map[int]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int]bool{}
	for _, s := range m.submissions {
		if s.UserID == userID && s.IsCorrect {
			out[s.PuzzleID] = true
		}
	}
	return out, nil
}

func (m *memStore) SubmissionsByUser(_ context.Context, userID int, correctOnly bool, limit int) ([]store.SubmissionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.SubmissionView{}
	for i := len(m.submissions) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.submissions[i]
		if s.UserID != userID || (correctOnly && !s.IsCorrect) {
			continue
		}
		out = append(out, store.SubmissionView{Submission: s, PuzzleTitle: m.puzzles[s.PuzzleID].Title, Username: m.users[s.UserID].Username})
	}
	return out, nil
}

func (m *memStore) RecentSubmissions(_ context.Context, limit int) ([]store.SubmissionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.SubmissionView{}
	for i := len(m.submissions) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.submissions[i]
		out = append(out, store.SubmissionView{Submission: s, PuzzleTitle: m.puzzles[s.PuzzleID].Title, Username: m.users[s.UserID].Username})
	}
	return out, nil
}

func (m *memStore) UserStats(_ context.Context, userID int) (store.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := store.UserStats{TotalPuzzles: len(m.puzzles)}
	solved := map[int]bool{}
	for _, s := range m.submissions {
		if s.UserID != userID {
			continue
		}
		st.TotalSubmissions++
		if s.IsCorrect {
			st.CorrectSubmissions++
			solved[s.PuzzleID] = true
		}
	}
	st.SolvedPuzzles = len(solved)
	return st, nil
}

func (m *memStore) IssueProgress(ctx context.Context, userID int) ([]store.IssueProgress, error) {
	issues, _ := m.ListIssues(ctx)
	solved, _ := m.SolvedPuzzleIDs(ctx, userID)
	out := []store.IssueProgress{}
	for _, is := range issues {
		p := store.IssueProgress{IssueID: is.ID, Title: is.Title, AvailableAt: is.AvailableAt}
		puzzles, _ := m.PuzzlesByIssue(ctx, is.ID)
		p.PuzzleCount = len(puzzles)
		for _, pz := range puzzles {
			if solved[pz.ID] {
				p.SolvedCount++
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) Overview(context.Context) (store.Overview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := store.Overview{
		TotalUsers:       len(m.users),
		TotalPuzzles:     len(m.puzzles),
		TotalIssues:      len(m.issues),
		TotalSubmissions: len(m.submissions),
	}
	for _, s := range m.submissions {
		if s.IsCorrect {
			o.CorrectSubmissions++
		}
	}
	return o, nil
}

type sentMail struct {
	kind string
	user models.User
	url  string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Welcome(_ context.Context, u models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{kind: "welcome", user: u})
	return f.err
}

func (f *fakeMailer) PasswordReset(_ context.Context, u models.User, resetURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{kind: "password_reset", user: u, url: resetURL})
	return f.err
}

type fakeAnnouncer struct {
	issues []int
	hints  []int
}

func (f *fakeAnnouncer) AnnounceIssue(_ context.Context, issue models.Issue, _ time.Time) (bool, error) {
	f.issues = append(f.issues, issue.ID)
	return true, nil
}

func (f *fakeAnnouncer) AnnounceHint(_ context.Context, hint models.Hint, _ time.Time) (bool, error) {
	f.hints = append(f.hints, hint.ID)
	return true, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

var errDown = errors.New("connection refused")

// request builds a request authenticated as userID (0 for anonymous) with
// an optional {id} URL parameter.
func request(method, target, body string, userID, id int) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := req.Context()
	if userID != 0 {
		ctx = middleware.WithUserID(ctx, userID)
	}
	if id != 0 {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", strconv.Itoa(id))
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func ptr[T any](v T) *T { return &v }
