package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	tokens "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

var (
	ErrInvalidLogin   = errors.New("username and password are required")
	ErrNoSession      = errors.New("session not found")
	ErrSessionFailure = errors.New("failed to create session")
)

// SessionConfig describe la cookie de sesión.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
	SameSite   string // Lax | Strict | None
	Domain     string
}

// LoginRequest es el payload de POST /v1/session/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Session es lo que se guarda en cache bajo sid:<hash>.
type Session struct {
	UserID   string    `json:"user_id"`
	AuthTime time.Time `json:"auth_time"`
	Expires  time.Time `json:"expires"`
}

// LoginResult es una sesión recién creada. SessionID es el valor crudo de
// la cookie; en cache sólo vive su hash.
type LoginResult struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

type SessionDeps struct {
	Cache  cache.Client
	Auth   Authenticator
	Config SessionConfig
	Now    func() time.Time
}

// Sessions crea, resuelve y destruye sesiones.
type Sessions struct {
	cache cache.Client
	auth  Authenticator
	cfg   SessionConfig
	now   func() time.Time
}

var validate = validator.New()

func NewSessions(d SessionDeps) *Sessions {
	if d.Config.CookieName == "" {
		d.Config.CookieName = "sid"
	}
	if d.Config.TTL <= 0 {
		d.Config.TTL = 24 * time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Sessions{cache: d.Cache, auth: d.Auth, cfg: d.Config, now: d.Now}
}

func (s *Sessions) CookieName() string { return s.cfg.CookieName }

func sessionKey(sid string) string {
	return "sid:" + tokens.SHA256Base64URL(sid)
}

// Login autentica y crea la sesión.
func (s *Sessions) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("session.login"), logger.Op("Login"))

	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		return nil, ErrInvalidLogin
	}
	u, err := s.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	sid, err := tokens.GenerateOpaqueToken(tokens.SessionBytes)
	if err != nil {
		log.Error("failed to generate session ID", logger.Err(err))
		return nil, ErrSessionFailure
	}
	now := s.now()
	sess := Session{UserID: u.ID, AuthTime: now, Expires: now.Add(s.cfg.TTL)}
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, ErrSessionFailure
	}
	if err := s.cache.Set(ctx, sessionKey(sid), string(payload), s.cfg.TTL); err != nil {
		log.Error("failed to store session in cache", logger.Err(err))
		return nil, ErrSessionFailure
	}
	log.Debug("session created", logger.UserID(u.ID))
	return &LoginResult{SessionID: sid, UserID: u.ID, ExpiresAt: sess.Expires}, nil
}

// Resolve devuelve la sesión viva de sid. ErrNoSession si no existe o venció.
func (s *Sessions) Resolve(ctx context.Context, sid string) (*Session, error) {
	if strings.TrimSpace(sid) == "" {
		return nil, ErrNoSession
	}
	raw, err := s.cache.Get(ctx, sessionKey(sid))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, ErrNoSession
	}
	if !s.now().Before(sess.Expires) {
		_ = s.cache.Delete(ctx, sessionKey(sid))
		return nil, ErrNoSession
	}
	return &sess, nil
}

// FromRequest resuelve la sesión de la cookie del request.
func (s *Sessions) FromRequest(r *http.Request) (*Session, error) {
	ck, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return nil, ErrNoSession
	}
	return s.Resolve(r.Context(), ck.Value)
}

// Logout borra la sesión. Idempotente.
func (s *Sessions) Logout(ctx context.Context, sid string) error {
	if strings.TrimSpace(sid) == "" {
		return nil
	}
	return s.cache.Delete(ctx, sessionKey(sid))
}

// Cookie arma la cookie de sesión.
func (s *Sessions) Cookie(sid string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sid,
		Path:     "/",
		Domain:   s.cfg.Domain,
		MaxAge:   int(s.cfg.TTL.Seconds()),
		Expires:  s.now().Add(s.cfg.TTL),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.sameSite(),
	}
}

// DeletionCookie expira la cookie en el browser.
func (s *Sessions) DeletionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.sameSite(),
	}
}

func (s *Sessions) sameSite() http.SameSite {
	switch s.cfg.SameSite {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
