// Package users es el colaborador de autenticación de usuarios: verifica
// credenciales contra el store y administra las sesiones por cookie que
// el authorize endpoint usa para resolver al sujeto.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/password"
	"github.com/dropDatabas3/hellojohn-oidc/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLocked             = errors.New("user is locked")
	ErrUsernameTaken      = errors.New("username already exists")
)

// Authenticator verifica usuario/contraseña.
type Authenticator interface {
	Authenticate(ctx context.Context, username, plain string) (*repository.User, error)
	IsLocked(u *repository.User) bool
}

// NewUser son los datos de alta de un usuario.
type NewUser struct {
	Username      string
	Email         string
	EmailVerified bool
	Password      string
	Profile       map[string]string
	Groups        []string
}

type Deps struct {
	Users  repository.UserRepository
	Params password.Params
	Now    func() time.Time
}

// Service implementa Authenticator sobre el UserRepository.
type Service struct {
	users  repository.UserRepository
	params password.Params
	now    func() time.Time
}

func NewService(d Deps) *Service {
	if d.Params == (password.Params{}) {
		d.Params = password.Default
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{users: d.Users, params: d.Params, now: d.Now}
}

// Authenticate no distingue usuario inexistente de contraseña incorrecta.
// Un usuario bloqueado devuelve ErrLocked sólo si la contraseña es válida.
func (s *Service) Authenticate(ctx context.Context, username, plain string) (*repository.User, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("users.Authenticate"))

	username = strings.TrimSpace(username)
	if username == "" || plain == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Debug("user not found")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" || !password.Verify(plain, u.PasswordHash) {
		log.Debug("password mismatch", logger.UserID(u.ID))
		return nil, ErrInvalidCredentials
	}
	if s.IsLocked(u) {
		log.Warn("locked user tried to log in", logger.UserID(u.ID))
		return nil, ErrLocked
	}
	return u, nil
}

func (s *Service) IsLocked(u *repository.User) bool {
	return u == nil || u.IsLocked()
}

// Create da de alta un usuario con la contraseña hasheada con argon2id.
func (s *Service) Create(ctx context.Context, nu NewUser) (*repository.User, error) {
	username := strings.TrimSpace(nu.Username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	hash, err := password.Hash(s.params, nu.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	u := repository.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         strings.ToLower(strings.TrimSpace(nu.Email)),
		EmailVerified: nu.EmailVerified,
		PasswordHash:  hash,
		Profile:       nu.Profile,
		Groups:        nu.Groups,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if repository.IsConflict(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	audit.Log(ctx, audit.UserCreated, logger.UserID(u.ID), logger.String("email", util.MaskEmail(u.Email)))
	return &u, nil
}
