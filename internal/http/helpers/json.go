// Package helpers junta utilidades chicas compartidas por los controllers.
package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
)

// MaxBodyBytes limita JSON y formularios.
const MaxBodyBytes = 1 << 20

// ReadJSON decodifica el body en v. Valida Content-Type y limita el tamaño.
// Los errores ya vienen como invalid_request.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return oautherr.InvalidRequest("content type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return oautherr.InvalidRequest("malformed JSON body")
	}
	return nil
}

// WriteJSON escribe v como JSON sin headers de cache.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
