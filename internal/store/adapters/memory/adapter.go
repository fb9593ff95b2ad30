// Package memory implementa el adapter en memoria para store. Se usa en
// desarrollo y en tests; los datos se pierden al reiniciar.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(_ context.Context, _ store.AdapterConfig) (store.DataAccessLayer, error) {
	return New(), nil
}

// Conn es un DataAccessLayer en memoria. Un único RWMutex protege todos
// los mapas; las entidades se copian al entrar y al salir.
type Conn struct {
	mu       sync.RWMutex
	clients  map[string]repository.Client
	codes    map[string]repository.AuthorizationCode
	tokens   map[string]repository.Token // por ID
	consents map[string]repository.Consent
	users    map[string]repository.User
	keys     []repository.SigningKey
}

// New crea un store vacío.
func New() *Conn {
	return &Conn{
		clients:  make(map[string]repository.Client),
		codes:    make(map[string]repository.AuthorizationCode),
		tokens:   make(map[string]repository.Token),
		consents: make(map[string]repository.Consent),
		users:    make(map[string]repository.User),
	}
}

func (c *Conn) Name() string                           { return "memory" }
func (c *Conn) Ping(context.Context) error             { return nil }
func (c *Conn) Close() error                           { return nil }
func (c *Conn) Clients() repository.ClientRepository   { return &clientRepo{c} }
func (c *Conn) Codes() repository.CodeRepository       { return &codeRepo{c} }
func (c *Conn) Tokens() repository.TokenRepository     { return &tokenRepo{c} }
func (c *Conn) Consents() repository.ConsentRepository { return &consentRepo{c} }
func (c *Conn) Users() repository.UserRepository       { return &userRepo{c} }
func (c *Conn) Keys() repository.KeyRepository         { return &keyRepo{c} }

// ─── Clients ───

type clientRepo struct{ c *Conn }

func cloneClient(cl repository.Client) repository.Client {
	cl.RedirectURIs = slices.Clone(cl.RedirectURIs)
	cl.PostLogoutRedirectURIs = slices.Clone(cl.PostLogoutRedirectURIs)
	cl.GrantTypes = slices.Clone(cl.GrantTypes)
	cl.ResponseTypes = slices.Clone(cl.ResponseTypes)
	cl.Scope = slices.Clone(cl.Scope)
	cl.Audience = slices.Clone(cl.Audience)
	cl.JWKS = slices.Clone(cl.JWKS)
	return cl
}

func (r *clientRepo) Get(_ context.Context, clientID string) (*repository.Client, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	cl, ok := r.c.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneClient(cl)
	return &out, nil
}

func (r *clientRepo) List(_ context.Context) ([]repository.Client, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	out := make([]repository.Client, 0, len(r.c.clients))
	for _, cl := range r.c.clients {
		out = append(out, cloneClient(cl))
	}
	slices.SortFunc(out, func(a, b repository.Client) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (r *clientRepo) Create(_ context.Context, cl repository.Client) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.clients[cl.ClientID]; ok {
		return repository.ErrConflict
	}
	r.c.clients[cl.ClientID] = cloneClient(cl)
	return nil
}

func (r *clientRepo) Update(_ context.Context, cl repository.Client) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.clients[cl.ClientID]; !ok {
		return repository.ErrNotFound
	}
	r.c.clients[cl.ClientID] = cloneClient(cl)
	return nil
}

func (r *clientRepo) Delete(_ context.Context, clientID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.clients[clientID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.c.clients, clientID)
	return nil
}

// ─── Codes ───

type codeRepo struct{ c *Conn }

func (r *codeRepo) Create(_ context.Context, code repository.AuthorizationCode) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.codes[code.Code]; ok {
		return repository.ErrConflict
	}
	code.Scope = slices.Clone(code.Scope)
	r.c.codes[code.Code] = code
	return nil
}

func (r *codeRepo) Get(_ context.Context, hash string) (*repository.AuthorizationCode, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	code, ok := r.c.codes[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	code.Scope = slices.Clone(code.Scope)
	return &code, nil
}

func (r *codeRepo) Delete(_ context.Context, hash string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.codes[hash]; !ok {
		return repository.ErrNotFound
	}
	delete(r.c.codes, hash)
	return nil
}

func (r *codeRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	n := 0
	for k, code := range r.c.codes {
		if code.IsExpired(now) {
			delete(r.c.codes, k)
			n++
		}
	}
	return n, nil
}

// ─── Tokens ───

type tokenRepo struct{ c *Conn }

func cloneToken(t repository.Token) repository.Token {
	t.Scope = slices.Clone(t.Scope)
	t.Audience = slices.Clone(t.Audience)
	return t
}

func (r *tokenRepo) Create(_ context.Context, t repository.Token) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.tokens[t.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.c.tokens {
		if existing.AccessTokenHash == t.AccessTokenHash ||
			(t.RefreshTokenHash != "" && existing.RefreshTokenHash == t.RefreshTokenHash) {
			return repository.ErrConflict
		}
	}
	r.c.tokens[t.ID] = cloneToken(t)
	return nil
}

func (r *tokenRepo) find(match func(repository.Token) bool) (*repository.Token, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	for _, t := range r.c.tokens {
		if match(t) {
			out := cloneToken(t)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *tokenRepo) GetByAccessHash(_ context.Context, hash string) (*repository.Token, error) {
	return r.find(func(t repository.Token) bool { return t.AccessTokenHash == hash })
}

func (r *tokenRepo) GetByRefreshHash(_ context.Context, hash string) (*repository.Token, error) {
	if hash == "" {
		return nil, repository.ErrNotFound
	}
	return r.find(func(t repository.Token) bool { return t.RefreshTokenHash == hash })
}

func (r *tokenRepo) ListByUserClient(_ context.Context, userID, clientID string) ([]repository.Token, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []repository.Token
	for _, t := range r.c.tokens {
		if t.UserID == userID && t.ClientID == clientID {
			out = append(out, cloneToken(t))
		}
	}
	return out, nil
}

func (r *tokenRepo) Update(_ context.Context, t repository.Token) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.tokens[t.ID]; !ok {
		return repository.ErrNotFound
	}
	r.c.tokens[t.ID] = cloneToken(t)
	return nil
}

func (r *tokenRepo) RevokeIfActive(_ context.Context, id string, at time.Time) (bool, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	t, ok := r.c.tokens[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.RevokedAt != nil {
		return false, nil
	}
	r.c.tokens[id] = t.Revoke(at)
	return true, nil
}

func (r *tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	n := 0
	for id, t := range r.c.tokens {
		if t.IsFullyExpired(now) {
			delete(r.c.tokens, id)
			n++
		}
	}
	return n, nil
}

// ─── Consents ───

type consentRepo struct{ c *Conn }

func cloneConsent(c repository.Consent) repository.Consent {
	c.Scope = slices.Clone(c.Scope)
	return c
}

func (r *consentRepo) Get(_ context.Context, id string) (*repository.Consent, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	c, ok := r.c.consents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneConsent(c)
	return &out, nil
}

func (r *consentRepo) list(match func(repository.Consent) bool) []repository.Consent {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []repository.Consent
	for _, c := range r.c.consents {
		if match(c) {
			out = append(out, cloneConsent(c))
		}
	}
	slices.SortFunc(out, func(a, b repository.Consent) int {
		switch {
		case a.IssuedAt == nil && b.IssuedAt == nil:
			return 0
		case a.IssuedAt == nil:
			return -1
		case b.IssuedAt == nil:
			return 1
		}
		return a.IssuedAt.Compare(*b.IssuedAt)
	})
	return out
}

func (r *consentRepo) ListByUserClient(_ context.Context, userID, clientID string) ([]repository.Consent, error) {
	return r.list(func(c repository.Consent) bool { return c.UserID == userID && c.ClientID == clientID }), nil
}

func (r *consentRepo) ListByUser(_ context.Context, userID string) ([]repository.Consent, error) {
	return r.list(func(c repository.Consent) bool { return c.UserID == userID }), nil
}

func (r *consentRepo) Create(_ context.Context, c repository.Consent) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.consents[c.ID]; ok {
		return repository.ErrConflict
	}
	r.c.consents[c.ID] = cloneConsent(c)
	return nil
}

func (r *consentRepo) Update(_ context.Context, c repository.Consent) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.consents[c.ID]; !ok {
		return repository.ErrNotFound
	}
	r.c.consents[c.ID] = cloneConsent(c)
	return nil
}

// ─── Users ───

type userRepo struct{ c *Conn }

func cloneUser(u repository.User) repository.User {
	if u.Profile != nil {
		p := make(map[string]string, len(u.Profile))
		for k, v := range u.Profile {
			p[k] = v
		}
		u.Profile = p
	}
	u.Groups = slices.Clone(u.Groups)
	return u
}

func (r *userRepo) Get(_ context.Context, id string) (*repository.User, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	u, ok := r.c.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*repository.User, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	for _, u := range r.c.users {
		if u.Username == username || (u.Email != "" && u.Email == username) {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) Create(_ context.Context, u repository.User) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.users[u.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.c.users {
		if existing.Username == u.Username {
			return repository.ErrConflict
		}
	}
	r.c.users[u.ID] = cloneUser(u)
	return nil
}

func (r *userRepo) Update(_ context.Context, u repository.User) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	r.c.users[u.ID] = cloneUser(u)
	return nil
}

// ─── Keys ───

type keyRepo struct{ c *Conn }

func (r *keyRepo) GetActive(_ context.Context) (*repository.SigningKey, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	for _, k := range r.c.keys {
		if k.Status == repository.KeyStatusActive {
			out := k
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *keyRepo) ListPublished(_ context.Context) ([]repository.SigningKey, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []repository.SigningKey
	for _, k := range r.c.keys {
		if k.Status == repository.KeyStatusActive || k.Status == repository.KeyStatusRetiring {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *keyRepo) Rotate(_ context.Context, next repository.SigningKey) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	now := time.Now().UTC()
	for i := range r.c.keys {
		switch r.c.keys[i].Status {
		case repository.KeyStatusActive:
			r.c.keys[i].Status = repository.KeyStatusRetiring
			r.c.keys[i].RotatedAt = &now
		case repository.KeyStatusRetiring:
			r.c.keys[i].Status = repository.KeyStatusRetired
		}
	}
	next.Status = repository.KeyStatusActive
	r.c.keys = append(r.c.keys, next)
	return nil
}
