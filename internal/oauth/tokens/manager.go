// Package tokens emite, introspecta, revoca y purga los access/refresh
// tokens opacos. Sólo se persisten sus hashes.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	tokens "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

const GrantClientCredentials = "client_credentials"

// Config son los parámetros de emisión.
type Config struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Deps contiene las dependencias del manager.
type Deps struct {
	Tokens repository.TokenRepository
	Codes  repository.CodeRepository
	Users  repository.UserRepository
	Config Config
	Now    func() time.Time
}

// Manager maneja el ciclo de vida de los tokens.
type Manager struct {
	repo  repository.TokenRepository
	codes repository.CodeRepository
	users repository.UserRepository
	cfg   Config
	now   func() time.Time
}

func NewManager(d Deps) *Manager {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{repo: d.Tokens, codes: d.Codes, users: d.Users, cfg: d.Config, now: now}
}

// Now expone el reloj del manager.
func (m *Manager) Now() time.Time { return m.now() }

// IssueParams describe una emisión.
type IssueParams struct {
	Client      *repository.Client
	GrantType   string
	UserID      string
	Scope       []string
	WithRefresh bool
}

// Issued es el resultado de una emisión. Los valores crudos sólo existen acá.
type Issued struct {
	Record       repository.Token
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Issue genera y persiste un access token y, si corresponde, un refresh.
// client_credentials nunca recibe refresh token.
func (m *Manager) Issue(ctx context.Context, p IssueParams) (*Issued, error) {
	access, err := tokens.GenerateOpaqueToken(tokens.AccessTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	rec := repository.Token{
		ID:              uuid.NewString(),
		AccessTokenHash: tokens.SHA256Base64URL(access),
		TokenType:       repository.TokenTypeBearer,
		ClientID:        p.Client.ClientID,
		UserID:          p.UserID,
		GrantType:       p.GrantType,
		Scope:           p.Scope,
		Audience:        p.Client.AudienceOrSelf(),
		IssuedAt:        m.now(),
		Lifetime:        m.cfg.AccessTTL,
	}
	out := &Issued{AccessToken: access, ExpiresIn: int64(m.cfg.AccessTTL / time.Second)}

	if p.WithRefresh && p.GrantType != GrantClientCredentials {
		refresh, err := tokens.GenerateOpaqueToken(tokens.RefreshTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("generate refresh token: %w", err)
		}
		rec.RefreshTokenHash = tokens.SHA256Base64URL(refresh)
		rec.RefreshLifetime = m.cfg.RefreshTTL
		out.RefreshToken = refresh
	}

	if err := m.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	out.Record = rec
	metrics.TokensIssued.WithLabelValues(p.GrantType).Inc()
	return out, nil
}

// FindRefresh busca por refresh token crudo.
func (m *Manager) FindRefresh(ctx context.Context, raw string) (*repository.Token, error) {
	return m.repo.GetByRefreshHash(ctx, tokens.SHA256Base64URL(raw))
}

// RevokeRecord persiste la revocación de t. Si ya estaba revocado no cambia.
func (m *Manager) RevokeRecord(ctx context.Context, t *repository.Token) error {
	if t.IsRevoked() {
		return nil
	}
	return m.repo.Update(ctx, t.Revoke(m.now()))
}

// ClaimRefresh revoca t para rotarlo. Devuelve false si otro request ya
// lo había revocado, en cuyo caso no hay que emitir nada.
func (m *Manager) ClaimRefresh(ctx context.Context, t *repository.Token) (bool, error) {
	return m.repo.RevokeIfActive(ctx, t.ID, m.now())
}

// lookup busca primero como access y después como refresh.
func (m *Manager) lookup(ctx context.Context, raw string, refreshFirst bool) (*repository.Token, bool, error) {
	hash := tokens.SHA256Base64URL(raw)
	order := []bool{false, true}
	if refreshFirst {
		order = []bool{true, false}
	}
	for _, isRefresh := range order {
		var (
			t   *repository.Token
			err error
		)
		if isRefresh {
			t, err = m.repo.GetByRefreshHash(ctx, hash)
		} else {
			t, err = m.repo.GetByAccessHash(ctx, hash)
		}
		if err == nil {
			return t, isRefresh, nil
		}
		if !repository.IsNotFound(err) {
			return nil, false, err
		}
	}
	return nil, false, repository.ErrNotFound
}

// Introspection es la respuesta RFC7662. Un token inactivo serializa
// exactamente {"active":false}.
type Introspection struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Exp       int64    `json:"exp,omitempty"`
	Iat       int64    `json:"iat,omitempty"`
	Sub       string   `json:"sub,omitempty"`
	Aud       []string `json:"aud,omitempty"`
	Iss       string   `json:"iss,omitempty"`
}

// Introspect responde por rawToken. El requester debe ser el dueño o
// figurar en la audiencia; si no, el token se reporta inactivo.
func (m *Manager) Introspect(ctx context.Context, requester *repository.Client, rawToken, hint string) (*Introspection, error) {
	inactive := &Introspection{Active: false}
	if rawToken == "" {
		return inactive, nil
	}

	t, isRefresh, err := m.lookup(ctx, rawToken, hint == "refresh_token")
	if err != nil {
		if repository.IsNotFound(err) {
			return inactive, nil
		}
		return nil, oautherr.ServerError(err)
	}

	now := m.now()
	exp := t.IssuedAt.Add(t.Lifetime)
	active := t.IsActive(now)
	if isRefresh {
		exp = t.IssuedAt.Add(t.RefreshLifetime)
		active = t.IsRefreshTokenActive(now)
	}
	if !active {
		return inactive, nil
	}
	if requester.ClientID != t.ClientID && !t.InAudience(requester.ClientID) {
		return inactive, nil
	}

	out := &Introspection{
		Active:    true,
		Scope:     repository.JoinScope(t.Scope),
		ClientID:  t.ClientID,
		TokenType: t.TokenType,
		Exp:       exp.Unix(),
		Iat:       t.IssuedAt.Unix(),
		Sub:       t.UserID,
		Aud:       t.Audience,
		Iss:       m.cfg.Issuer,
	}
	if t.UserID != "" && m.users != nil {
		if u, err := m.users.Get(ctx, t.UserID); err == nil {
			out.Username = u.Username
		}
	}
	return out, nil
}

// Revoke implementa RFC7009: desconocidos o de otro client devuelven nil.
func (m *Manager) Revoke(ctx context.Context, requester *repository.Client, rawToken, hint string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("tokens.Revoke"))
	if rawToken == "" {
		return nil
	}

	t, _, err := m.lookup(ctx, rawToken, hint == "refresh_token")
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return oautherr.ServerError(err)
	}
	if t.ClientID != requester.ClientID {
		log.Warn("revocation of foreign token ignored", logger.ClientID(requester.ClientID))
		return nil
	}
	if err := m.RevokeRecord(ctx, t); err != nil {
		return oautherr.ServerError(err)
	}
	return nil
}

// ResolveBearer valida un access token presentado como Bearer.
func (m *Manager) ResolveBearer(ctx context.Context, raw string) (*repository.Token, error) {
	if raw == "" {
		return nil, oautherr.InvalidToken("missing access token")
	}
	t, err := m.repo.GetByAccessHash(ctx, tokens.SHA256Base64URL(raw))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidToken("access token is not active")
		}
		return nil, oautherr.ServerError(err)
	}
	if !t.IsActive(m.now()) {
		return nil, oautherr.InvalidToken("access token is not active")
	}
	return t, nil
}

// SweepResult cuenta lo que borró un Sweep.
type SweepResult struct {
	Codes  int
	Tokens int
}

// Sweep borra en paralelo códigos vencidos y tokens totalmente vencidos.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := m.codes.DeleteExpired(gctx, now)
		if err != nil {
			return fmt.Errorf("sweep codes: %w", err)
		}
		res.Codes = n
		return nil
	})
	g.Go(func() error {
		n, err := m.repo.DeleteExpired(gctx, now)
		if err != nil {
			return fmt.Errorf("sweep tokens: %w", err)
		}
		res.Tokens = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}
	metrics.CleanupDeleted.WithLabelValues("code").Add(float64(res.Codes))
	metrics.CleanupDeleted.WithLabelValues("token").Add(float64(res.Tokens))
	logger.From(ctx).Info("sweep finished",
		logger.Layer("service"), logger.Op("tokens.Sweep"),
		logger.Int("codes", res.Codes), logger.Int("tokens", res.Tokens))
	return res, nil
}
