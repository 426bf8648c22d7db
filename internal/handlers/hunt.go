package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"puzzlehunt/internal/middleware"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/services"
	"puzzlehunt/internal/store"
	"puzzlehunt/internal/timegate"
)

const (
	defaultSubmissionLimit = 50
	maxSubmissionLimit     = 200
)

// HuntStore is the read side of the player API.
type HuntStore interface {
	ListIssues(ctx context.Context) ([]models.Issue, error)
	IssueByID(ctx context.Context, id int) (models.Issue, error)
	IssueProgress(ctx context.Context, userID int) ([]store.IssueProgress, error)
	ListPuzzles(ctx context.Context) ([]models.Puzzle, error)
	PuzzlesByIssue(ctx context.Context, issueID int) ([]models.Puzzle, error)
	PuzzleByID(ctx context.Context, id int) (models.Puzzle, error)
	UnlockedHints(ctx context.Context, puzzleID int, today time.Time) ([]models.Hint, error)
	SolvedPuzzleIDs(ctx context.Context, userID int) (map[int]bool, error)
	SubmissionsByUser(ctx context.Context, userID int, correctOnly bool, limit int) ([]store.SubmissionView, error)
}

// Submitter gates puzzles and records answers.
type Submitter interface {
	Gate(ctx context.Context, p models.Puzzle) (*models.Issue, error)
	Submit(ctx context.Context, userID, puzzleID int, raw string) (models.Submission, error)
}

type HuntHandler struct {
	store     HuntStore
	submitter Submitter
	logger    *zap.Logger
	now       func() time.Time
}

func NewHuntHandler(st HuntStore, submitter Submitter, logger *zap.Logger) *HuntHandler {
	return &HuntHandler{store: st, submitter: submitter, logger: logger.Named("hunt"), now: time.Now}
}

type issueSummary struct {
	IssueDTO
	PuzzleCount int     `json:"puzzle_count"`
	SolvedCount int     `json:"solved_count"`
	Percentage  float64 `json:"percentage"`
}

type issueDetail struct {
	IssueDTO
	Puzzles []PuzzleDTO `json:"puzzles"`
}

type puzzleDetail struct {
	PuzzleDTO
	Issue *IssueDTO `json:"issue,omitempty"`
	Hints []HintDTO `json:"hints"`
}

type lockedResponse struct {
	Message     string `json:"message"`
	AvailableAt string `json:"available_at"`
}

func writeLocked(w http.ResponseWriter, msg string, at time.Time) {
	writeJSON(w, http.StatusForbidden, lockedResponse{Message: msg, AvailableAt: at.UTC().Format(time.RFC3339)})
}

// ListIssues godoc
// @Summary List issues with the caller's progress
// @Tags hunt
// @Produce json
// @Security BearerAuth
// @Success 200 {array} issueSummary
// @Router /issues [get]
func (h *HuntHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	issues, err := h.store.ListIssues(r.Context())
	if err != nil {
		http.Error(w, "could not list issues", http.StatusInternalServerError)
		return
	}
	progress, err := h.store.IssueProgress(r.Context(), userID)
	if err != nil {
		http.Error(w, "could not load progress", http.StatusInternalServerError)
		return
	}
	byIssue := make(map[int]store.IssueProgress, len(progress))
	for _, p := range progress {
		byIssue[p.IssueID] = p
	}

	now := h.now()
	out := make([]issueSummary, 0, len(issues))
	for _, is := range issues {
		p := byIssue[is.ID]
		out = append(out, issueSummary{
			IssueDTO:    ToIssueDTO(is, now),
			PuzzleCount: p.PuzzleCount,
			SolvedCount: p.SolvedCount,
			Percentage:  p.Percentage(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HuntHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	issue, err := h.store.IssueByID(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	now := h.now()
	if !timegate.IsVisible(now, issue.AvailableAt) {
		writeLocked(w, "issue not yet available", issue.AvailableAt)
		return
	}

	userID, _ := middleware.UserID(r.Context())
	puzzles, err := h.store.PuzzlesByIssue(r.Context(), id)
	if err != nil {
		http.Error(w, "could not list puzzles", http.StatusInternalServerError)
		return
	}
	solved, err := h.store.SolvedPuzzleIDs(r.Context(), userID)
	if err != nil {
		http.Error(w, "could not load progress", http.StatusInternalServerError)
		return
	}
	out := issueDetail{IssueDTO: ToIssueDTO(issue, now), Puzzles: make([]PuzzleDTO, 0, len(puzzles))}
	for _, p := range puzzles {
		out.Puzzles = append(out.Puzzles, ToPuzzleDTO(p, solved[p.ID]))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListPuzzles returns every puzzle the caller can currently open.
func (h *HuntHandler) ListPuzzles(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	puzzles, err := h.store.ListPuzzles(r.Context())
	if err != nil {
		http.Error(w, "could not list puzzles", http.StatusInternalServerError)
		return
	}
	issues, err := h.store.ListIssues(r.Context())
	if err != nil {
		http.Error(w, "could not list issues", http.StatusInternalServerError)
		return
	}
	solved, err := h.store.SolvedPuzzleIDs(r.Context(), userID)
	if err != nil {
		http.Error(w, "could not load progress", http.StatusInternalServerError)
		return
	}

	now := h.now()
	locked := make(map[int]bool, len(issues))
	for _, is := range issues {
		locked[is.ID] = !timegate.IsVisible(now, is.AvailableAt)
	}
	out := make([]PuzzleDTO, 0, len(puzzles))
	for _, p := range puzzles {
		if p.IssueID != nil && locked[*p.IssueID] {
			continue
		}
		out = append(out, ToPuzzleDTO(p, solved[p.ID]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HuntHandler) GetPuzzle(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	p, err := h.store.PuzzleByID(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	issue, err := h.submitter.Gate(r.Context(), p)
	if errors.Is(err, services.ErrPuzzleLocked) {
		writeLocked(w, "puzzle not yet available", issue.AvailableAt)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	now := h.now()
	hints, err := h.store.UnlockedHints(r.Context(), id, timegate.Today(now))
	if err != nil {
		http.Error(w, "could not load hints", http.StatusInternalServerError)
		return
	}
	userID, _ := middleware.UserID(r.Context())
	solved, err := h.store.SolvedPuzzleIDs(r.Context(), userID)
	if err != nil {
		http.Error(w, "could not load progress", http.StatusInternalServerError)
		return
	}

	out := puzzleDetail{PuzzleDTO: ToPuzzleDTO(p, solved[p.ID]), Hints: make([]HintDTO, 0, len(hints))}
	if issue != nil {
		dto := ToIssueDTO(*issue, now)
		out.Issue = &dto
	}
	for _, hint := range hints {
		out.Hints = append(out.Hints, ToHintDTO(hint))
	}
	writeJSON(w, http.StatusOK, out)
}

// Submit godoc
// @Summary Submit an answer
// @Tags hunt
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Puzzle ID"
// @Param data body submitRequest true "Answer"
// @Success 201 {object} SubmissionDTO
// @Failure 403 {object} lockedResponse
// @Failure 409 {string} string "Already solved"
// @Router /puzzles/{id}/submissions [post]
func (h *HuntHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req submitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID, _ := middleware.UserID(r.Context())
	sub, err := h.submitter.Submit(r.Context(), userID, id, req.Answer)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, ToSubmissionDTO(sub))
	case errors.Is(err, services.ErrEmptyAnswer):
		writeFieldError(w, "answer", "The answer field is required")
	case errors.Is(err, services.ErrAlreadySolved):
		http.Error(w, "you have already solved this puzzle", http.StatusConflict)
	case errors.Is(err, services.ErrPuzzleLocked):
		http.Error(w, "puzzle not yet available", http.StatusForbidden)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Error("submit answer", zap.Int("puzzle_id", id), zap.Error(err))
		http.Error(w, "could not record submission", http.StatusInternalServerError)
	}
}

// MySubmissions lists the caller's attempts, newest first. Query params:
// correct=true to list solves only, limit (default 50, max 200).
func (h *HuntHandler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	limit := defaultSubmissionLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSubmissionLimit)
	}
	correctOnly := r.URL.Query().Get("correct") == "true"

	subs, err := h.store.SubmissionsByUser(r.Context(), userID, correctOnly, limit)
	if err != nil {
		http.Error(w, "could not list submissions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionViewDTOs(subs))
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, "server error", http.StatusInternalServerError)
}
