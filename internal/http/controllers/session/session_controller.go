package session

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/users"
)

// SessionController maneja login y logout con cookie.
type SessionController struct {
	sessions *users.Sessions
}

func NewSessionController(s *users.Sessions) *SessionController {
	return &SessionController{sessions: s}
}

// Login maneja POST /v1/session/login. Éxito: 204 + cookie.
func (c *SessionController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionController.Login"))

	var req users.LoginRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		oautherr.Write(ctx, w, err)
		return
	}

	res, err := c.sessions.Login(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidLogin):
			oautherr.Write(ctx, w, oautherr.InvalidRequest(err.Error()))
		case errors.Is(err, users.ErrInvalidCredentials):
			log.Warn("login failed")
			oautherr.Write(ctx, w, oautherr.New(http.StatusUnauthorized, "invalid_credentials", "invalid username or password"))
		case errors.Is(err, users.ErrLocked):
			oautherr.Write(ctx, w, oautherr.New(http.StatusLocked, "user_locked", "the account is locked"))
		default:
			oautherr.Write(ctx, w, oautherr.ServerError(err))
		}
		return
	}

	http.SetCookie(w, c.sessions.Cookie(res.SessionID))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

// Logout maneja POST /v1/session/logout. Idempotente.
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sid := sessionCookie(r, c.sessions); sid != "" {
		if err := c.sessions.Logout(ctx, sid); err != nil {
			oautherr.Write(ctx, w, oautherr.ServerError(err))
			return
		}
	}
	http.SetCookie(w, c.sessions.DeletionCookie())
	w.WriteHeader(http.StatusNoContent)
}
