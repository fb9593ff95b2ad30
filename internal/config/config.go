// Package config carga la configuración desde YAML (opcional) y la pisa
// con variables de entorno. main carga .env con godotenv antes de Load.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellojohn-oidc/internal/validation"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string        `yaml:"addr"`
		Issuer             string        `yaml:"issuer"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
		WriteTimeout       time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver         string `yaml:"driver"` // memory | postgres
		DSN            string `yaml:"dsn"`
		MaxConns       int    `yaml:"max_conns"`
		MinConns       int    `yaml:"min_conns"`
		MigrateOnStart bool   `yaml:"migrate_on_start"`
	} `yaml:"storage"`

	Cache struct {
		Driver   string `yaml:"driver"` // memory | redis
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"cache"`

	OAuth struct {
		AccessTTL        time.Duration     `yaml:"access_ttl"`
		RefreshTTL       time.Duration     `yaml:"refresh_ttl"`
		CodeTTL          time.Duration     `yaml:"code_ttl"`
		IDTokenTTL       time.Duration     `yaml:"id_token_ttl"`
		RequireNonce     bool              `yaml:"require_nonce"`
		SelfRegistration bool              `yaml:"self_registration"`
		LoginURL         string            `yaml:"login_url"`
		ConsentURL       string            `yaml:"consent_url"`
		RegisterURL      string            `yaml:"register_url"`
		JWKSFetchTimeout time.Duration     `yaml:"jwks_fetch_timeout"`
		JWKSCacheTTL     time.Duration     `yaml:"jwks_cache_ttl"`
		JTITTL           time.Duration     `yaml:"jti_ttl"`
		ClaimTemplates   map[string]string `yaml:"claim_templates"`
		ScopesSupported  []string          `yaml:"scopes_supported"`
	} `yaml:"oauth"`

	Registration struct {
		Policy string   `yaml:"policy"` // open | bearer
		Tokens []string `yaml:"tokens"`
	} `yaml:"registration"`

	Keys struct {
		Alg string `yaml:"alg"` // EdDSA | RS256
	} `yaml:"keys"`

	Session struct {
		CookieName string        `yaml:"cookie_name"`
		TTL        time.Duration `yaml:"ttl"`
		Secure     bool          `yaml:"secure"`
		SameSite   string        `yaml:"same_site"`
		Domain     string        `yaml:"domain"`
	} `yaml:"session"`

	Rate struct {
		Enabled     bool          `yaml:"enabled"`
		Driver      string        `yaml:"driver"` // memory | redis
		Window      time.Duration `yaml:"window"`
		MaxRequests int           `yaml:"max_requests"`
	} `yaml:"rate"`

	Cleanup struct {
		Interval time.Duration `yaml:"interval"` // 0 = sin ticker in-process
	} `yaml:"cleanup"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee path (si no está vacío), aplica defaults y env overrides.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.OAuth.AccessTTL == 0 {
		c.OAuth.AccessTTL = time.Hour
	}
	if c.OAuth.RefreshTTL == 0 {
		c.OAuth.RefreshTTL = 720 * time.Hour // 30d
	}
	if c.OAuth.CodeTTL == 0 {
		c.OAuth.CodeTTL = 10 * time.Minute
	}
	if c.OAuth.IDTokenTTL == 0 {
		c.OAuth.IDTokenTTL = time.Hour
	}
	if c.OAuth.JWKSFetchTimeout == 0 {
		c.OAuth.JWKSFetchTimeout = 5 * time.Second
	}
	if c.OAuth.JWKSCacheTTL == 0 {
		c.OAuth.JWKSCacheTTL = 50 * time.Second
	}
	if c.OAuth.JTITTL == 0 {
		c.OAuth.JTITTL = time.Hour
	}
	if c.OAuth.LoginURL == "" {
		c.OAuth.LoginURL = "/login"
	}
	if c.OAuth.ConsentURL == "" {
		c.OAuth.ConsentURL = "/consent"
	}
	if c.OAuth.RegisterURL == "" {
		c.OAuth.RegisterURL = "/register"
	}
	if len(c.OAuth.ScopesSupported) == 0 {
		c.OAuth.ScopesSupported = []string{"openid", "profile", "email", "address", "phone", "groups", "offline_access"}
	}
	if c.Registration.Policy == "" {
		c.Registration.Policy = "bearer"
	}
	if c.Keys.Alg == "" {
		c.Keys.Alg = "EdDSA"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Rate.Driver == "" {
		c.Rate.Driver = c.Cache.Driver
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("ISSUER"); ok {
		c.Server.Issuer = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.MaxConns = v
	}
	if v, ok := getEnvBool("STORAGE_MIGRATE_ON_START"); ok {
		c.Storage.MigrateOnStart = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("REDIS_HOST"); ok {
		c.Cache.Host = v
	}
	if v, ok := getEnvInt("REDIS_PORT"); ok {
		c.Cache.Port = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.DB = v
	}
	if v, ok := getEnvStr("CACHE_PREFIX"); ok {
		c.Cache.Prefix = v
	}

	// OAUTH
	if v, ok := getEnvDur("OAUTH_ACCESS_TTL"); ok {
		c.OAuth.AccessTTL = v
	}
	if v, ok := getEnvDur("OAUTH_REFRESH_TTL"); ok {
		c.OAuth.RefreshTTL = v
	}
	if v, ok := getEnvDur("OAUTH_CODE_TTL"); ok {
		c.OAuth.CodeTTL = v
	}
	if v, ok := getEnvDur("OAUTH_ID_TOKEN_TTL"); ok {
		c.OAuth.IDTokenTTL = v
	}
	if v, ok := getEnvBool("REQUIRE_NONCE"); ok {
		c.OAuth.RequireNonce = v
	}
	if v, ok := getEnvBool("SELF_REGISTRATION"); ok {
		c.OAuth.SelfRegistration = v
	}
	if v, ok := getEnvStr("OAUTH_LOGIN_URL"); ok {
		c.OAuth.LoginURL = v
	}
	if v, ok := getEnvStr("OAUTH_CONSENT_URL"); ok {
		c.OAuth.ConsentURL = v
	}
	if v, ok := getEnvStr("OAUTH_REGISTER_URL"); ok {
		c.OAuth.RegisterURL = v
	}
	if v, ok := getEnvDur("JWKS_FETCH_TIMEOUT"); ok {
		c.OAuth.JWKSFetchTimeout = v
	}
	if v, ok := getEnvDur("JWKS_CACHE_TTL"); ok {
		c.OAuth.JWKSCacheTTL = v
	}

	// REGISTRATION
	if v, ok := getEnvStr("REGISTRATION_POLICY"); ok {
		c.Registration.Policy = v
	}
	if v, ok := getEnvCSV("REGISTRATION_TOKENS"); ok {
		c.Registration.Tokens = v
	}

	// KEYS
	if v, ok := getEnvStr("SIGNING_ALG"); ok {
		c.Keys.Alg = v
	}

	// SESSION
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_DRIVER"); ok {
		c.Rate.Driver = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}

	// CLEANUP
	if v, ok := getEnvDur("CLEANUP_INTERVAL"); ok {
		c.Cleanup.Interval = v
	}

	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

// Validate chequea valores críticos. Un issuer vacío no es error: sólo
// deshabilita la autenticación de clientes por JWT (se avisa al arrancar).
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Host == "" {
			errs = append(errs, errors.New("cache.host is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q not supported", c.Cache.Driver))
	}
	if c.Server.Issuer != "" {
		u, err := url.Parse(c.Server.Issuer)
		if err != nil || u.Scheme == "" || u.Host == "" || u.RawQuery != "" || u.Fragment != "" {
			errs = append(errs, fmt.Errorf("server.issuer %q must be an absolute URL without query or fragment", c.Server.Issuer))
		}
	}
	switch c.Registration.Policy {
	case "open":
	case "bearer":
		if len(c.Registration.Tokens) == 0 {
			errs = append(errs, errors.New("registration.tokens is required when policy is bearer"))
		}
	default:
		errs = append(errs, fmt.Errorf("registration.policy %q not supported", c.Registration.Policy))
	}
	switch c.Keys.Alg {
	case "EdDSA", "RS256":
	default:
		errs = append(errs, fmt.Errorf("keys.alg %q not supported", c.Keys.Alg))
	}
	if v, bad := validation.FirstInvalidScope(c.OAuth.ScopesSupported); bad {
		errs = append(errs, fmt.Errorf("oauth.scopes_supported: %q is not a valid scope-token", v))
	}
	if c.OAuth.CodeTTL <= 0 || c.OAuth.AccessTTL <= 0 {
		errs = append(errs, errors.New("oauth ttls must be positive"))
	}
	return errors.Join(errs...)
}
