package notify

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"

	"puzzlehunt/internal/models"
)

// Category selects the template and recipient rule of a notification.
type Category string

const (
	CategoryWelcome       Category = "welcome"
	CategoryNewIssue      Category = "new_issue"
	CategoryNewHint       Category = "new_hint"
	CategoryPasswordReset Category = "password_reset"
)

var ErrUnknownCategory = errors.New("unknown notification category")

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryWelcome, CategoryNewIssue, CategoryNewHint, CategoryPasswordReset:
		return true
	}
	return false
}

// Wants reports whether u should receive a message of category c based on
// their notification preferences. Account mail is always delivered.
func Wants(u models.User, c Category) bool {
	switch c {
	case CategoryNewIssue:
		return u.EmailNotifications && u.NotifyNewIssues
	case CategoryNewHint:
		return u.EmailNotifications && u.NotifyNewHints
	case CategoryWelcome, CategoryPasswordReset:
		return true
	}
	return false
}

// Content is what a notification is about. Only the fields relevant to the
// category need to be set.
type Content struct {
	Issue    *models.Issue
	Puzzle   *models.Puzzle
	Hint     *models.Hint
	ResetURL string
}

// Message is one rendered notification for one recipient.
type Message struct {
	ID       string
	Category Category
	To       string
	ToName   string
	Subject  string
	HTML     string
}

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns a category, a recipient and content into subject and body.
type Renderer struct {
	siteName string
	siteURL  string
	tmpl     *template.Template
}

func NewRenderer(siteName, siteURL string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Renderer{siteName: siteName, siteURL: siteURL, tmpl: tmpl}, nil
}

type templateData struct {
	SiteName string
	SiteURL  string
	User     models.User
	Issue    *models.Issue
	Puzzle   *models.Puzzle
	Hint     *models.Hint
	ResetURL string
}

// Render returns the subject and HTML body for u.
func (r *Renderer) Render(c Category, u models.User, content Content) (string, string, error) {
	var subject string
	switch c {
	case CategoryWelcome:
		subject = "Welcome to " + r.siteName + "!"
	case CategoryNewIssue:
		if content.Issue == nil {
			return "", "", errors.New("new_issue notification without an issue")
		}
		subject = "New Issue Available: " + content.Issue.Title
	case CategoryNewHint:
		if content.Puzzle == nil || content.Hint == nil {
			return "", "", errors.New("new_hint notification without a puzzle and hint")
		}
		subject = "New Hint for: " + content.Puzzle.Title
	case CategoryPasswordReset:
		if content.ResetURL == "" {
			return "", "", errors.New("password_reset notification without a reset link")
		}
		subject = "Password Reset Request"
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}

	data := templateData{
		SiteName: r.siteName,
		SiteURL:  r.siteURL,
		User:     u,
		Issue:    content.Issue,
		Puzzle:   content.Puzzle,
		Hint:     content.Hint,
		ResetURL: content.ResetURL,
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, string(c)+".html", data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", c, err)
	}
	return fmt.Sprintf("[%s] %s", r.siteName, subject), buf.String(), nil
}
