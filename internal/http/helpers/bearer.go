package helpers

import (
	"net/http"
	"strings"
)

// BearerToken devuelve el token de "Authorization: Bearer". El esquema no
// distingue mayúsculas.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
