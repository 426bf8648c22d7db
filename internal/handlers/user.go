package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"puzzlehunt/internal/middleware"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
)

type ProfileStore interface {
	UserByID(ctx context.Context, id int) (models.User, error)
	UpdatePreferences(ctx context.Context, userID int, p store.Preferences) error
}

type UserHandler struct {
	store ProfileStore
}

func NewUserHandler(st ProfileStore) *UserHandler {
	return &UserHandler{store: st}
}

// GetMe returns the current user's profile
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	u, err := h.store.UserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ToUserDTO(u))
}

// UpdatePreferences replaces the display name and notification switches.
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	var req preferencesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		writeFieldError(w, "display_name", "The display_name field is required")
		return
	}

	err := h.store.UpdatePreferences(r.Context(), userID, store.Preferences{
		DisplayName:        name,
		EmailNotifications: req.EmailNotifications,
		NotifyNewIssues:    req.NotifyNewIssues,
		NotifyNewHints:     req.NotifyNewHints,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not update", http.StatusInternalServerError)
		return
	}
	h.GetMe(w, r)
}
