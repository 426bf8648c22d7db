package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"puzzlehunt/internal/answer"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
	"puzzlehunt/internal/timegate"
)

// AdminStore is the persistence behind the admin API.
type AdminStore interface {
	Overview(ctx context.Context) (store.Overview, error)
	RecentUsers(ctx context.Context, limit int) ([]models.User, error)
	RecentSubmissions(ctx context.Context, limit int) ([]store.SubmissionView, error)

	ListUsers(ctx context.Context) ([]models.User, error)
	UserByID(ctx context.Context, id int) (models.User, error)
	DeleteUser(ctx context.Context, id int) error

	ListIssues(ctx context.Context) ([]models.Issue, error)
	IssueByID(ctx context.Context, id int) (models.Issue, error)
	CreateIssue(ctx context.Context, is *models.Issue) error
	UpdateIssue(ctx context.Context, is models.Issue, now time.Time) error
	DeleteIssue(ctx context.Context, id int) error

	ListPuzzles(ctx context.Context) ([]models.Puzzle, error)
	PuzzleByID(ctx context.Context, id int) (models.Puzzle, error)
	CreatePuzzle(ctx context.Context, p *models.Puzzle) error
	UpdatePuzzle(ctx context.Context, p models.Puzzle) error
	DeletePuzzle(ctx context.Context, id int) error

	ListHints(ctx context.Context) ([]models.Hint, error)
	HintByID(ctx context.Context, id int) (models.Hint, error)
	CreateHint(ctx context.Context, h *models.Hint) error
	UpdateHint(ctx context.Context, h models.Hint, today time.Time) error
	DeleteHint(ctx context.Context, id int) error
}

// ContentAnnouncer announces content that is already live when an admin
// saves it. The claim inside makes repeated calls harmless.
type ContentAnnouncer interface {
	AnnounceIssue(ctx context.Context, issue models.Issue, now time.Time) (bool, error)
	AnnounceHint(ctx context.Context, hint models.Hint, now time.Time) (bool, error)
}

type AdminHandler struct {
	store     AdminStore
	announcer ContentAnnouncer
	logger    *zap.Logger
	now       func() time.Time
}

func NewAdminHandler(st AdminStore, announcer ContentAnnouncer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{store: st, announcer: announcer, logger: logger.Named("admin"), now: time.Now}
}

type adminOverview struct {
	store.Overview
	RecentUsers       []UserDTO       `json:"recent_users"`
	RecentSubmissions []SubmissionDTO `json:"recent_submissions"`
}

// Overview godoc
// @Summary Get admin overview
// @Description Returns site-wide counters with the newest users and submissions (admin only)
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} adminOverview
// @Failure 403 {string} string "Forbidden"
// @Failure 500 {string} string "Internal server error"
// @Router /admin/overview [get]
func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.store.Overview(ctx)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	users, err := h.store.RecentUsers(ctx, 5)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	subs, err := h.store.RecentSubmissions(ctx, 5)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := adminOverview{Overview: stats, RecentUsers: make([]UserDTO, 0, len(users)), RecentSubmissions: toSubmissionViewDTOs(subs)}
	for _, u := range users {
		out.RecentUsers = append(out.RecentUsers, ToUserDTO(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, ToUserDTO(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteUser removes a player and their submissions. Admin accounts cannot
// be deleted here.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	u, err := h.store.UserByID(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if u.IsAdmin {
		http.Error(w, "cannot delete admin users", http.StatusForbidden)
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}
	h.logger.Info("user deleted", zap.Int("user_id", id), zap.String("username", u.Username))
	w.WriteHeader(http.StatusNoContent)
}

type adminIssueDTO struct {
	IssueDTO
	Announced bool `json:"announced"`
}

func toAdminIssueDTO(is models.Issue, now time.Time) adminIssueDTO {
	return adminIssueDTO{IssueDTO: ToIssueDTO(is, now), Announced: is.NotifiedAt != nil}
}

func (h *AdminHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.store.ListIssues(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	now := h.now()
	out := make([]adminIssueDTO, 0, len(issues))
	for _, is := range issues {
		out = append(out, toAdminIssueDTO(is, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// issueFromRequest validates the form. It writes the error response and
// returns false when the form is unusable.
func issueFromRequest(w http.ResponseWriter, r *http.Request) (models.Issue, bool) {
	var req issueRequest
	if !decodeAndValidate(w, r, &req) {
		return models.Issue{}, false
	}
	at, err := timegate.ParseThreshold(req.AvailableAt)
	if err != nil {
		writeFieldError(w, "available_at", "The available_at field must be a date and time")
		return models.Issue{}, false
	}
	if req.PDFFilename != nil && strings.TrimSpace(*req.PDFFilename) == "" {
		req.PDFFilename = nil
	}
	return models.Issue{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		PDFFilename: req.PDFFilename,
		AvailableAt: at,
	}, true
}

// CreateIssue stores a new issue. An issue that is already available is
// announced right away.
func (h *AdminHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	issue, ok := issueFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.store.CreateIssue(r.Context(), &issue); err != nil {
		h.logger.Error("create issue", zap.Error(err))
		http.Error(w, "could not create issue", http.StatusInternalServerError)
		return
	}
	now := h.now()
	h.announceIssue(r.Context(), issue, now)
	writeJSON(w, http.StatusCreated, toAdminIssueDTO(issue, now))
}

func (h *AdminHandler) UpdateIssue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	issue, ok := issueFromRequest(w, r)
	if !ok {
		return
	}
	issue.ID = id
	now := h.now()
	if err := h.store.UpdateIssue(r.Context(), issue, now); err != nil {
		writeLookupError(w, err)
		return
	}
	h.announceIssue(r.Context(), issue, now)

	saved, err := h.store.IssueByID(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminIssueDTO(saved, now))
}

func (h *AdminHandler) announceIssue(ctx context.Context, issue models.Issue, now time.Time) {
	if !timegate.IsVisible(now, issue.AvailableAt) {
		return
	}
	if _, err := h.announcer.AnnounceIssue(ctx, issue, now); err != nil {
		h.logger.Warn("announce issue", zap.Int("issue_id", issue.ID), zap.Error(err))
	}
}

func (h *AdminHandler) DeleteIssue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteIssue(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListPuzzles(w http.ResponseWriter, r *http.Request) {
	puzzles, err := h.store.ListPuzzles(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	out := make([]PuzzleDTO, 0, len(puzzles))
	for _, p := range puzzles {
		out = append(out, ToPuzzleDTO(p, false))
	}
	writeJSON(w, http.StatusOK, out)
}

// puzzleFromRequest validates the form and digests the answer when one is
// given. The returned puzzle has an empty AnswerHash otherwise.
func (h *AdminHandler) puzzleFromRequest(w http.ResponseWriter, r *http.Request) (models.Puzzle, bool) {
	var req puzzleRequest
	if !decodeAndValidate(w, r, &req) {
		return models.Puzzle{}, false
	}
	if req.IssueID != nil {
		if _, err := h.store.IssueByID(r.Context(), *req.IssueID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeFieldError(w, "issue_id", "The selected issue does not exist")
			} else {
				http.Error(w, "server error", http.StatusInternalServerError)
			}
			return models.Puzzle{}, false
		}
	}

	p := models.Puzzle{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		IssueID:     req.IssueID,
	}
	if strings.TrimSpace(req.Answer) == "" {
		return p, true
	}
	digest, err := answer.Digest(answer.Normalize(req.Answer))
	switch {
	case errors.Is(err, answer.ErrEmpty):
		writeFieldError(w, "answer", "The answer must contain letters or digits")
		return models.Puzzle{}, false
	case errors.Is(err, answer.ErrTooLong):
		writeFieldError(w, "answer", "The answer is too long")
		return models.Puzzle{}, false
	case err != nil:
		http.Error(w, "could not hash answer", http.StatusInternalServerError)
		return models.Puzzle{}, false
	}
	p.AnswerHash = digest
	return p, true
}

func (h *AdminHandler) CreatePuzzle(w http.ResponseWriter, r *http.Request) {
	p, ok := h.puzzleFromRequest(w, r)
	if !ok {
		return
	}
	if p.AnswerHash == "" {
		writeFieldError(w, "answer", "The answer field is required")
		return
	}
	if err := h.store.CreatePuzzle(r.Context(), &p); err != nil {
		h.logger.Error("create puzzle", zap.Error(err))
		http.Error(w, "could not create puzzle", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, ToPuzzleDTO(p, false))
}

// UpdatePuzzle keeps the stored answer when the form leaves it blank.
func (h *AdminHandler) UpdatePuzzle(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	current, err := h.store.PuzzleByID(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	p, ok := h.puzzleFromRequest(w, r)
	if !ok {
		return
	}
	p.ID = id
	p.CreatedAt = current.CreatedAt
	if p.AnswerHash == "" {
		p.AnswerHash = current.AnswerHash
	}
	if err := h.store.UpdatePuzzle(r.Context(), p); err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToPuzzleDTO(p, false))
}

func (h *AdminHandler) DeletePuzzle(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeletePuzzle(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListHints(w http.ResponseWriter, r *http.Request) {
	hints, err := h.store.ListHints(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	out := make([]HintDTO, 0, len(hints))
	for _, hint := range hints {
		out = append(out, ToHintDTO(hint))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) hintFromRequest(w http.ResponseWriter, r *http.Request) (models.Hint, bool) {
	var req hintRequest
	if !decodeAndValidate(w, r, &req) {
		return models.Hint{}, false
	}
	day, err := timegate.ParseDate(req.UnlockDate)
	if err != nil {
		writeFieldError(w, "unlock_date", "The unlock_date field must be a date (YYYY-MM-DD)")
		return models.Hint{}, false
	}
	if _, err := h.store.PuzzleByID(r.Context(), req.PuzzleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeFieldError(w, "puzzle_id", "The selected puzzle does not exist")
		} else {
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return models.Hint{}, false
	}
	return models.Hint{PuzzleID: req.PuzzleID, HintText: strings.TrimSpace(req.HintText), UnlockDate: day}, true
}

// CreateHint stores a hint. A hint dated today or earlier is announced right
// away since the poller only looks at recent unlock dates.
func (h *AdminHandler) CreateHint(w http.ResponseWriter, r *http.Request) {
	hint, ok := h.hintFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.store.CreateHint(r.Context(), &hint); err != nil {
		h.logger.Error("create hint", zap.Error(err))
		http.Error(w, "could not create hint", http.StatusInternalServerError)
		return
	}
	h.announceHint(r.Context(), hint, h.now())
	writeJSON(w, http.StatusCreated, ToHintDTO(hint))
}

func (h *AdminHandler) UpdateHint(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	hint, ok := h.hintFromRequest(w, r)
	if !ok {
		return
	}
	hint.ID = id
	now := h.now()
	if err := h.store.UpdateHint(r.Context(), hint, timegate.Today(now)); err != nil {
		writeLookupError(w, err)
		return
	}
	h.announceHint(r.Context(), hint, now)
	writeJSON(w, http.StatusOK, ToHintDTO(hint))
}

func (h *AdminHandler) announceHint(ctx context.Context, hint models.Hint, now time.Time) {
	if !timegate.DateVisible(now, hint.UnlockDate) {
		return
	}
	if _, err := h.announcer.AnnounceHint(ctx, hint, now); err != nil {
		h.logger.Warn("announce hint", zap.Int("hint_id", hint.ID), zap.Error(err))
	}
}

func (h *AdminHandler) DeleteHint(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteHint(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
