// Package consent registra qué scopes aprobó cada usuario para cada client
// y propaga las revocaciones a los tokens emitidos bajo ese consent.
package consent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// Deps contiene las dependencias del ledger.
type Deps struct {
	Consents repository.ConsentRepository
	Tokens   repository.TokenRepository
	Now      func() time.Time
}

// Ledger administra consents.
type Ledger struct {
	consents repository.ConsentRepository
	tokens   repository.TokenRepository
	now      func() time.Time
}

func NewLedger(d Deps) *Ledger {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{consents: d.Consents, tokens: d.Tokens, now: now}
}

// GetAllowedScope intersecta el scope pedido con el del client.
func (l *Ledger) GetAllowedScope(client *repository.Client, requested []string) string {
	return client.GetAllowedScope(requested)
}

// ShouldAutoApprove es true si el client tiene preconsent o si el consent
// activo ya cubre el scope permitido.
func (l *Ledger) ShouldAutoApprove(client *repository.Client, c *repository.Consent, allowedScope string) bool {
	if client.Preconsent {
		return true
	}
	return c != nil && c.Covers(repository.ParseScope(allowedScope))
}

// Get devuelve un consent por id.
func (l *Ledger) Get(ctx context.Context, id string) (*repository.Consent, error) {
	return l.consents.Get(ctx, id)
}

// FindActive devuelve el consent activo más reciente de (user, client).
// repository.ErrNotFound si no hay ninguno.
func (l *Ledger) FindActive(ctx context.Context, userID, clientID string) (*repository.Consent, error) {
	list, err := l.consents.ListByUserClient(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	var best *repository.Consent
	for i := range list {
		c := &list[i]
		if !c.IsActive() {
			continue
		}
		if best == nil || issuedAfter(c, best) {
			best = c
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func issuedAfter(a, b *repository.Consent) bool {
	switch {
	case a.IssuedAt == nil:
		return false
	case b.IssuedAt == nil:
		return true
	default:
		return a.IssuedAt.After(*b.IssuedAt)
	}
}

// ListForUser devuelve los consents del usuario, los más recientes primero.
func (l *Ledger) ListForUser(ctx context.Context, userID string) ([]repository.Consent, error) {
	list, err := l.consents.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return issuedAfter(&list[i], &list[j]) })
	return list, nil
}

// Accept amplía el consent activo con scope o crea uno nuevo.
func (l *Ledger) Accept(ctx context.Context, userID, clientID string, scope []string) (*repository.Consent, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("consent.Accept"))

	active, err := l.FindActive(ctx, userID, clientID)
	switch {
	case err == nil:
		next := active.WithScope(scope)
		if err := l.consents.Update(ctx, next); err != nil {
			return nil, fmt.Errorf("update consent: %w", err)
		}
		return &next, nil
	case repository.IsNotFound(err):
	default:
		return nil, err
	}

	now := l.now()
	c := repository.Consent{
		ID:       uuid.NewString(),
		UserID:   userID,
		ClientID: clientID,
		Scope:    repository.ScopeUnion(nil, scope),
		IssuedAt: &now,
	}
	if err := l.consents.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create consent: %w", err)
	}
	log.Info("consent granted", logger.UserID(userID), logger.ClientID(clientID))
	return &c, nil
}

// Revoke revoca el consent y, antes de volver, todos los tokens vigentes
// de (user, client) cuyo scope esté contenido en el del consent. Devuelve
// cuántos tokens revocó.
func (l *Ledger) Revoke(ctx context.Context, id string) (*repository.Consent, int, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("consent.Revoke"))

	cur, err := l.consents.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	next := cur.Revoke(l.now())
	if err := l.consents.Update(ctx, next); err != nil {
		return nil, 0, fmt.Errorf("update consent: %w", err)
	}
	metrics.ConsentRevocations.Inc()

	toks, err := l.tokens.ListByUserClient(ctx, next.UserID, next.ClientID)
	if err != nil {
		return &next, 0, fmt.Errorf("list tokens: %w", err)
	}
	n := 0
	for _, t := range toks {
		if t.IsRevoked() || !repository.ScopeSubset(t.Scope, next.Scope) {
			continue
		}
		if err := l.tokens.Update(ctx, t.Revoke(*next.RevokedAt)); err != nil {
			return &next, n, fmt.Errorf("revoke token %s: %w", t.ID, err)
		}
		n++
	}
	log.Debug("tokens revoked", logger.Count(n))
	audit.Log(ctx, audit.ConsentRevoked, logger.UserID(next.UserID), logger.ClientID(next.ClientID), logger.Count(n))
	return &next, n, nil
}

// Restore limpia la revocación. No reactiva tokens.
func (l *Ledger) Restore(ctx context.Context, id string) (*repository.Consent, error) {
	cur, err := l.consents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := cur.Restore(l.now())
	if err := l.consents.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("update consent: %w", err)
	}
	audit.Log(ctx, audit.ConsentRestored, logger.UserID(next.UserID), logger.ClientID(next.ClientID))
	return &next, nil
}
