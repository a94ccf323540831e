// Package login serves the session cookie authentication API under /api/auth.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/unirating/internal/auth"
	httpmiddleware "github.com/wolfeidau/unirating/internal/http"
	"github.com/wolfeidau/unirating/internal/logger"
	"github.com/wolfeidau/unirating/internal/models"
)

const maxBodyBytes = 64 * 1024

// Service is the subset of auth.Service used by the handlers.
type Service interface {
	Register(ctx context.Context, in auth.RegisterInput, meta auth.SessionMeta) (*models.User, string, error)
	Login(ctx context.Context, in auth.LoginInput, previousSessionID string, meta auth.SessionMeta) (*models.User, string, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*models.User, error)
	ChangePassword(ctx context.Context, sessionID string, in auth.ChangePasswordInput, meta auth.SessionMeta) (string, error)
}

type Handler struct {
	service Service
	cookies CookieConfig
}

func NewHandler(service Service, cookies CookieConfig) *Handler {
	return &Handler{
		service: service,
		cookies: cookies,
	}
}

// Routes returns the /api/auth routes.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", h.RegisterHandler)
	mux.HandleFunc("POST /api/auth/login", h.LoginHandler)
	mux.HandleFunc("POST /api/auth/logout", h.LogoutHandler)
	mux.HandleFunc("GET /api/auth/me", h.MeHandler)
	mux.HandleFunc("POST /api/auth/change-password", h.ChangePasswordHandler)
	return mux
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func newUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
	}
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !decode(w, r, &in) {
		return
	}

	user, sessionID, err := h.service.Register(r.Context(), in, sessionMeta(r))
	if err != nil {
		h.writeError(w, r, err, "Server error")
		return
	}

	h.cookies.Set(w, sessionID)
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if !decode(w, r, &in) {
		return
	}

	user, sessionID, err := h.service.Login(r.Context(), in, h.cookies.SessionID(r), sessionMeta(r))
	if err != nil {
		h.writeError(w, r, err, "Server error")
		return
	}

	h.cookies.Set(w, sessionID)
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), h.cookies.SessionID(r)); err != nil {
		h.writeError(w, r, err, "Could not log out")
		return
	}

	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context(), h.cookies.SessionID(r))
	if err != nil {
		h.writeError(w, r, err, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.ChangePasswordInput
	if !decode(w, r, &in) {
		return
	}

	sessionID, err := h.service.ChangePassword(r.Context(), h.cookies.SessionID(r), in, sessionMeta(r))
	if err != nil {
		h.writeError(w, r, err, "Server error")
		return
	}

	h.cookies.Set(w, sessionID)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// writeError maps service errors to responses. Unexpected errors are logged
// and answered with fallback so datastore details never reach the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var validationErr *auth.ValidationError

	switch {
	case errors.Is(err, auth.ErrSessionUpdate):
		// The new password is already stored when rotation fails.
		logger.Err(hlog.FromRequest(r).Error(), err).Str("path", r.URL.Path).Msg("Session rotation failed")
		writeMessage(w, http.StatusInternalServerError, "Could not update session")
	case errors.As(err, &validationErr):
		writeMessage(w, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeMessage(w, http.StatusBadRequest, "Email already in use")
	case errors.Is(err, auth.ErrInvalidCurrentPassword):
		writeMessage(w, http.StatusBadRequest, "Invalid current password")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeMessage(w, http.StatusBadRequest, "Invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeMessage(w, http.StatusUnauthorized, "Not authenticated")
	default:
		logger.Err(hlog.FromRequest(r).Error(), err).Str("path", r.URL.Path).Msg("Request failed")
		writeMessage(w, http.StatusInternalServerError, fallback)
	}
}

func sessionMeta(r *http.Request) auth.SessionMeta {
	ip := httpmiddleware.ClientIPFromContext(r.Context())
	if ip == "" {
		ip = httpmiddleware.ExtractClientIP(r, 0)
	}
	return auth.SessionMeta{
		UserAgent: r.UserAgent(),
		IPAddress: ip,
	}
}

// decode reads a JSON body into v, answering 400 itself when the body is malformed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("Invalid request body")
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return false
	}
	return true
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
