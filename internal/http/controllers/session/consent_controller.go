package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/users"
)

// ConsentView es la representación JSON de un consent.
type ConsentView struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	Scope     string     `json:"scope"`
	Active    bool       `json:"active"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func viewOf(c *repository.Consent) ConsentView {
	return ConsentView{
		ID:        c.ID,
		ClientID:  c.ClientID,
		Scope:     repository.JoinScope(c.Scope),
		Active:    c.IsActive(),
		IssuedAt:  c.IssuedAt,
		RevokedAt: c.RevokedAt,
	}
}

// ConsentController administra los consents del usuario de la sesión.
type ConsentController struct {
	as *authserver.AuthServer
}

func NewConsentController(as *authserver.AuthServer) *ConsentController {
	return &ConsentController{as: as}
}

var errNotLoggedIn = oautherr.New(http.StatusUnauthorized, oautherr.CodeLoginRequired, "a session is required")

// List maneja GET /v1/consents.
func (c *ConsentController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := c.session(w, r)
	if !ok {
		return
	}
	list, err := c.as.Consents.ListForUser(ctx, sess.UserID)
	if err != nil {
		oautherr.Write(ctx, w, oautherr.ServerError(err))
		return
	}
	out := make([]ConsentView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"consents": out})
}

// Revoke maneja POST /v1/consents/{id}/revoke. Revoca en cascada los
// tokens cubiertos antes de responder.
func (c *ConsentController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := c.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !c.owned(ctx, w, id, sess.UserID) {
		return
	}
	next, n, err := c.as.Consents.Revoke(ctx, id)
	if err != nil {
		oautherr.Write(ctx, w, oautherr.ServerError(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"consent": viewOf(next), "revoked_tokens": n})
}

// Restore maneja POST /v1/consents/{id}/restore.
func (c *ConsentController) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := c.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !c.owned(ctx, w, id, sess.UserID) {
		return
	}
	next, err := c.as.Consents.Restore(ctx, id)
	if err != nil {
		oautherr.Write(ctx, w, oautherr.ServerError(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"consent": viewOf(next)})
}

func (c *ConsentController) session(w http.ResponseWriter, r *http.Request) (*users.Session, bool) {
	sess, err := c.as.Sessions.FromRequest(r)
	if err != nil {
		if errors.Is(err, users.ErrNoSession) {
			oautherr.Write(r.Context(), w, errNotLoggedIn)
		} else {
			oautherr.Write(r.Context(), w, oautherr.ServerError(err))
		}
		return nil, false
	}
	return sess, true
}

// owned responde 404 si el consent no existe o es de otro usuario.
func (c *ConsentController) owned(ctx context.Context, w http.ResponseWriter, id, userID string) bool {
	cur, err := c.as.Consents.Get(ctx, id)
	if err != nil && !repository.IsNotFound(err) {
		oautherr.Write(ctx, w, oautherr.ServerError(err))
		return false
	}
	if err != nil || cur.UserID != userID {
		oautherr.Write(ctx, w, oautherr.New(http.StatusNotFound, "not_found", "consent not found"))
		return false
	}
	return true
}
