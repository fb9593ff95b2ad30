package oautherr

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Body es el cuerpo JSON de error.
type Body struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// Write serializa err como JSON con no-store. Los 5xx se loguean con la
// causa; los invalid_client a nivel WARN sin detalle de credenciales.
func Write(ctx context.Context, w http.ResponseWriter, err error) {
	oe := From(err)
	log := logger.From(ctx)
	switch {
	case oe.Status >= 500:
		log.Error("oauth server error", logger.Err(oe.Err))
	case oe.Code == CodeInvalidClient:
		log.Warn("client authentication failed", logger.String("reason", oe.Description))
	default:
		log.Debug("oauth error", logger.String("error", oe.Code), logger.String("reason", oe.Description))
	}

	if oe.Status == http.StatusUnauthorized {
		if oe.Code == CodeInvalidToken {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		} else {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
		}
	}
	WriteJSON(w, oe.Status, Body{Error: oe.Code, Description: oe.Description})
}

// WriteJSON escribe v con Cache-Control: no-store (RFC6749 §5.1).
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
