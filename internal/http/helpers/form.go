package helpers

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
)

// ParseForm lee el body form-urlencoded con límite de tamaño. Los parámetros
// repetidos son invalid_request (RFC6749 §3.1).
func ParseForm(w http.ResponseWriter, r *http.Request) error {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	}
	if err := r.ParseForm(); err != nil {
		return oautherr.InvalidRequest("malformed form body")
	}
	for k, vs := range r.Form {
		if len(vs) > 1 {
			return oautherr.InvalidRequest("parameter " + k + " is repeated")
		}
	}
	return nil
}

// RequirePOSTForm exige POST con application/x-www-form-urlencoded.
func RequirePOSTForm(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return oautherr.New(http.StatusMethodNotAllowed, oautherr.CodeInvalidRequest, "only POST is allowed")
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		return oautherr.InvalidRequest("content type must be application/x-www-form-urlencoded")
	}
	return ParseForm(w, r)
}
