package oauth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/registration"
)

// RegisterController maneja el registro dinámico (RFC7591) y la gestión
// del client registrado (RFC7592).
type RegisterController struct {
	as *authserver.AuthServer
}

func NewRegisterController(as *authserver.AuthServer) *RegisterController {
	return &RegisterController{as: as}
}

// Create maneja POST /oauth/register.
func (c *RegisterController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	md, ok := readMetadata(w, r)
	if !ok {
		return
	}
	initial, _ := helpers.BearerToken(r)
	res, err := c.as.Registration.Create(ctx, initial, md)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	oautherr.WriteJSON(w, http.StatusCreated, res)
}

// Read maneja GET /oauth/register/{client_id}.
func (c *RegisterController) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tok, _ := helpers.BearerToken(r)
	res, err := c.as.Registration.Read(ctx, chi.URLParam(r, "client_id"), tok)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	oautherr.WriteJSON(w, http.StatusOK, res)
}

// Update maneja PUT /oauth/register/{client_id}.
func (c *RegisterController) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	md, ok := readMetadata(w, r)
	if !ok {
		return
	}
	tok, _ := helpers.BearerToken(r)
	res, err := c.as.Registration.Update(ctx, chi.URLParam(r, "client_id"), tok, md)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	oautherr.WriteJSON(w, http.StatusOK, res)
}

// Delete maneja DELETE /oauth/register/{client_id}.
func (c *RegisterController) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tok, _ := helpers.BearerToken(r)
	if err := c.as.Registration.Delete(ctx, chi.URLParam(r, "client_id"), tok); err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readMetadata(w http.ResponseWriter, r *http.Request) (registration.Metadata, bool) {
	var md registration.Metadata
	if err := helpers.ReadJSON(w, r, &md); err != nil {
		oautherr.Write(r.Context(), w, oautherr.InvalidClientMetadata(oautherr.From(err).Description))
		return md, false
	}
	return md, true
}
