package handlers

import (
	"context"
	"net/http"

	"puzzlehunt/internal/middleware"
	"puzzlehunt/internal/store"
)

type DashboardStore interface {
	UserStats(ctx context.Context, userID int) (store.UserStats, error)
	SubmissionsByUser(ctx context.Context, userID int, correctOnly bool, limit int) ([]store.SubmissionView, error)
	IssueProgress(ctx context.Context, userID int) ([]store.IssueProgress, error)
}

type DashboardHandler struct {
	store DashboardStore
}

func NewDashboardHandler(st DashboardStore) *DashboardHandler { return &DashboardHandler{store: st} }

type issueProgressDTO struct {
	IssueID     int     `json:"issue_id"`
	Title       string  `json:"title"`
	PuzzleCount int     `json:"puzzle_count"`
	SolvedCount int     `json:"solved_count"`
	Percentage  float64 `json:"percentage"`
}

type dashboardResponse struct {
	TotalSubmissions   int                `json:"total_submissions"`
	CorrectSubmissions int                `json:"correct_submissions"`
	SolvedPuzzles      int                `json:"solved_puzzles"`
	TotalPuzzles       int                `json:"total_puzzles"`
	SuccessRate        float64            `json:"success_rate"`
	CompletionRate     float64            `json:"completion_rate"`
	RecentSubmissions  []SubmissionDTO    `json:"recent_submissions"`
	RecentSolves       []SubmissionDTO    `json:"recent_solves"`
	IssueProgress      []issueProgressDTO `json:"issue_progress"`
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// Get aggregates the caller's totals, recent activity and per-issue progress.
// Issues without puzzles are left out of the progress list.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	ctx := r.Context()

	stats, err := h.store.UserStats(ctx, userID)
	if err != nil {
		http.Error(w, "could not fetch aggregates", http.StatusInternalServerError)
		return
	}
	recent, err := h.store.SubmissionsByUser(ctx, userID, false, 10)
	if err != nil {
		http.Error(w, "could not fetch submissions", http.StatusInternalServerError)
		return
	}
	solves, err := h.store.SubmissionsByUser(ctx, userID, true, 5)
	if err != nil {
		http.Error(w, "could not fetch submissions", http.StatusInternalServerError)
		return
	}
	progress, err := h.store.IssueProgress(ctx, userID)
	if err != nil {
		http.Error(w, "could not fetch progress", http.StatusInternalServerError)
		return
	}

	resp := dashboardResponse{
		TotalSubmissions:   stats.TotalSubmissions,
		CorrectSubmissions: stats.CorrectSubmissions,
		SolvedPuzzles:      stats.SolvedPuzzles,
		TotalPuzzles:       stats.TotalPuzzles,
		SuccessRate:        percent(stats.CorrectSubmissions, stats.TotalSubmissions),
		CompletionRate:     percent(stats.SolvedPuzzles, stats.TotalPuzzles),
		RecentSubmissions:  toSubmissionViewDTOs(recent),
		RecentSolves:       toSubmissionViewDTOs(solves),
		IssueProgress:      []issueProgressDTO{},
	}
	for _, p := range progress {
		if p.PuzzleCount == 0 {
			continue
		}
		resp.IssueProgress = append(resp.IssueProgress, issueProgressDTO{
			IssueID:     p.IssueID,
			Title:       p.Title,
			PuzzleCount: p.PuzzleCount,
			SolvedCount: p.SolvedCount,
			Percentage:  p.Percentage(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
