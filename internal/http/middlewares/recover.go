package middlewares

import (
	"fmt"
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// WithRecover captura panics y responde server_error en lugar de crashear.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.From(r.Context()).Error("panic recovered", logger.Op("recover"), logger.Any("panic", rec))
				oautherr.WriteJSON(w, http.StatusInternalServerError, oautherr.Body{
					Error:       oautherr.CodeServerError,
					Description: oautherr.ServerError(fmt.Errorf("panic: %v", rec)).Description,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
