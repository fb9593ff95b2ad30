// Package audit emite eventos de auditoría como líneas estructuradas del
// logger, con component=audit para poder rutearlas aparte.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Nombres de eventos.
const (
	ClientRegistered = "client.registered"
	ClientUpdated    = "client.updated"
	ClientDeleted    = "client.deleted"
	ConsentRevoked   = "consent.revoked"
	ConsentRestored  = "consent.restored"
	UserCreated      = "user.created"
	KeyRotated       = "key.rotated"
)

// Log registra event con los campos dados. El logger del request ya trae
// request_id. Nunca incluir secretos.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	base := []zap.Field{logger.Component("audit"), logger.String("event", event)}
	logger.From(ctx).Info("audit", append(base, fields...)...)
}
