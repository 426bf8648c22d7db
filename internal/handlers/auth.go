package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
)

const (
	sessionTTL       = 24 * time.Hour
	resetTokenTTL    = time.Hour
	resetPurpose     = "password_reset"
	resetRequestSent = "If that email is registered, a password reset link has been sent."
)

// AccountStore is the persistence used by registration and login.
type AccountStore interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id int) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UpdatePassword(ctx context.Context, userID int, hash string) error
}

// AccountMailer sends account mail. Failures never fail the request.
type AccountMailer interface {
	Welcome(ctx context.Context, u models.User) error
	PasswordReset(ctx context.Context, u models.User, resetURL string) error
}

type AuthHandler struct {
	store     AccountStore
	mailer    AccountMailer
	jwtSecret []byte
	siteURL   string
	logger    *zap.Logger
}

func NewAuthHandler(st AccountStore, mailer AccountMailer, jwtSecret []byte, siteURL string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{store: st, mailer: mailer, jwtSecret: jwtSecret, siteURL: siteURL, logger: logger.Named("auth")}
}

type tokenResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// Register godoc
// @Summary Create an account
// @Tags auth
// @Accept json
// @Produce json
// @Param data body registerRequest true "Account details"
// @Success 201 {object} tokenResponse
// @Failure 409 {string} string "Username or email taken"
// @Failure 422 {object} validationErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	ctx := r.Context()
	if taken, err := h.store.UsernameTaken(ctx, req.Username); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if taken {
		http.Error(w, "username already exists", http.StatusConflict)
		return
	}
	if taken, err := h.store.EmailTaken(ctx, req.Email); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if taken {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "could not hash password", http.StatusInternalServerError)
		return
	}
	user := models.User{
		Username:           req.Username,
		DisplayName:        strings.TrimSpace(req.DisplayName),
		Email:              req.Email,
		PasswordHash:       string(hashed),
		EmailNotifications: true,
		NotifyNewIssues:    true,
		NotifyNewHints:     true,
	}
	if err := h.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "username or email already registered", http.StatusConflict)
			return
		}
		h.logger.Error("create user", zap.Error(err))
		http.Error(w, "could not create user", http.StatusInternalServerError)
		return
	}

	if err := h.mailer.Welcome(ctx, user); err != nil {
		h.logger.Warn("welcome email not queued", zap.Int("user_id", user.ID), zap.Error(err))
	}

	token, err := h.issueJWT(user.ID)
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: ToUserDTO(user)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.store.UserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := h.issueJWT(user.ID)
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: ToUserDTO(user)})
}

// RequestPasswordReset answers the same way whether or not the address is
// registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.store.UserByEmail(r.Context(), strings.TrimSpace(req.Email))
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	default:
		token, err := h.issueResetToken(user)
		if err != nil {
			http.Error(w, "could not issue token", http.StatusInternalServerError)
			return
		}
		link := h.siteURL + "/reset-password?token=" + url.QueryEscape(token)
		if err := h.mailer.PasswordReset(r.Context(), user, link); err != nil {
			h.logger.Warn("password reset email not queued", zap.Int("user_id", user.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": resetRequestSent})
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.verifyResetToken(r.Context(), req.Token)
	if err != nil {
		http.Error(w, "invalid or expired reset token", http.StatusBadRequest)
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "could not hash password", http.StatusInternalServerError)
		return
	}
	if err := h.store.UpdatePassword(r.Context(), user.ID, string(hashed)); err != nil {
		http.Error(w, "could not update password", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) issueJWT(userID int) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(sessionTTL).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

// passwordFingerprint ties a reset token to the current password so it
// stops working once used.
func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}

func (h *AuthHandler) issueResetToken(u models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":     u.ID,
		"purpose": resetPurpose,
		"fp":      passwordFingerprint(u.PasswordHash),
		"exp":     time.Now().Add(resetTokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}

var errBadResetToken = errors.New("invalid reset token")

func (h *AuthHandler) verifyResetToken(ctx context.Context, tokenStr string) (models.User, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return models.User{}, errBadResetToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != resetPurpose {
		return models.User{}, errBadResetToken
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return models.User{}, errBadResetToken
	}
	user, err := h.store.UserByID(ctx, int(sub))
	if err != nil {
		return models.User{}, errBadResetToken
	}
	if claims["fp"] != passwordFingerprint(user.PasswordHash) {
		return models.User{}, errBadResetToken
	}
	return user, nil
}
