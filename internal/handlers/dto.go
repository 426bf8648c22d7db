package handlers

import (
	"time"

	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
	"puzzlehunt/internal/timegate"
)

type registerRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=150"`
	DisplayName     string `json:"display_name" validate:"required,min=1,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type passwordResetConfirmRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type preferencesRequest struct {
	DisplayName        string `json:"display_name" validate:"required,min=1,max=150"`
	EmailNotifications bool   `json:"email_notifications"`
	NotifyNewIssues    bool   `json:"notify_new_issues"`
	NotifyNewHints     bool   `json:"notify_new_hints"`
}

type submitRequest struct {
	Answer string `json:"answer" validate:"required"`
}

// issueRequest takes available_at as RFC 3339 or as a zoneless
// "YYYY-MM-DDTHH:MM" which is read as UTC.
type issueRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	PDFFilename *string `json:"pdf_filename"`
	AvailableAt string  `json:"available_at" validate:"required"`
}

// puzzleRequest leaves the stored answer alone on edit when Answer is empty.
type puzzleRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Answer      string `json:"answer"`
	IssueID     *int   `json:"issue_id" validate:"omitempty,gt=0"`
}

type hintRequest struct {
	PuzzleID   int    `json:"puzzle_id" validate:"required,gt=0"`
	HintText   string `json:"hint_text" validate:"required"`
	UnlockDate string `json:"unlock_date" validate:"required"`
}

// UserDTO is the public view of an account.
type UserDTO struct {
	ID                 int    `json:"id"`
	Username           string `json:"username"`
	DisplayName        string `json:"display_name"`
	Email              string `json:"email"`
	IsAdmin            bool   `json:"is_admin"`
	EmailNotifications bool   `json:"email_notifications"`
	NotifyNewIssues    bool   `json:"notify_new_issues"`
	NotifyNewHints     bool   `json:"notify_new_hints"`
	CreatedAt          string `json:"created_at"`
}

func ToUserDTO(u models.User) UserDTO {
	return UserDTO{
		ID:                 u.ID,
		Username:           u.Username,
		DisplayName:        u.DisplayName,
		Email:              u.Email,
		IsAdmin:            u.IsAdmin,
		EmailNotifications: u.EmailNotifications,
		NotifyNewIssues:    u.NotifyNewIssues,
		NotifyNewHints:     u.NotifyNewHints,
		CreatedAt:          u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type IssueDTO struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PDFFilename *string `json:"pdf_filename,omitempty"`
	AvailableAt string  `json:"available_at"`
	Available   bool    `json:"available"`
}

func ToIssueDTO(is models.Issue, now time.Time) IssueDTO {
	return IssueDTO{
		ID:          is.ID,
		Title:       is.Title,
		Description: is.Description,
		PDFFilename: is.PDFFilename,
		AvailableAt: is.AvailableAt.UTC().Format(time.RFC3339),
		Available:   timegate.IsVisible(now, is.AvailableAt),
	}
}

type PuzzleDTO struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IssueID     *int   `json:"issue_id,omitempty"`
	Solved      bool   `json:"solved"`
}

func ToPuzzleDTO(p models.Puzzle, solved bool) PuzzleDTO {
	return PuzzleDTO{ID: p.ID, Title: p.Title, Description: p.Description, IssueID: p.IssueID, Solved: solved}
}

type HintDTO struct {
	ID         int    `json:"id"`
	PuzzleID   int    `json:"puzzle_id"`
	HintText   string `json:"hint_text"`
	UnlockDate string `json:"unlock_date"`
}

func ToHintDTO(h models.Hint) HintDTO {
	return HintDTO{ID: h.ID, PuzzleID: h.PuzzleID, HintText: h.HintText, UnlockDate: h.UnlockDate.UTC().Format(timegate.DateLayout)}
}

type SubmissionDTO struct {
	ID              int    `json:"id"`
	PuzzleID        int    `json:"puzzle_id"`
	PuzzleTitle     string `json:"puzzle_title,omitempty"`
	Username        string `json:"username,omitempty"`
	SubmittedAnswer string `json:"submitted_answer"`
	IsCorrect       bool   `json:"is_correct"`
	SubmittedAt     string `json:"submitted_at"`
}

func ToSubmissionDTO(s models.Submission) SubmissionDTO {
	return SubmissionDTO{
		ID:              s.ID,
		PuzzleID:        s.PuzzleID,
		SubmittedAnswer: s.SubmittedAnswer,
		IsCorrect:       s.IsCorrect,
		SubmittedAt:     s.SubmittedAt.UTC().Format(time.RFC3339),
	}
}

func ToSubmissionViewDTO(v store.SubmissionView) SubmissionDTO {
	dto := ToSubmissionDTO(v.Submission)
	dto.PuzzleTitle = v.PuzzleTitle
	dto.Username = v.Username
	return dto
}

func toSubmissionViewDTOs(views []store.SubmissionView) []SubmissionDTO {
	out := make([]SubmissionDTO, 0, len(views))
	for _, v := range views {
		out = append(out, ToSubmissionViewDTO(v))
	}
	return out
}
