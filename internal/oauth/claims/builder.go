// Package claims arma las claims de usuario del ID token y de /userinfo a
// partir de templates por claim sobre el perfil del usuario.
package claims

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	jwtx "github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
)

// DefaultTemplates son los templates por claim. Los datos disponibles son
// los atributos del perfil más username, email y sub.
var DefaultTemplates = map[string]string{
	"name":                   "{{.given_name}} {{.family_name}}",
	"given_name":             "{{.given_name}}",
	"family_name":            "{{.family_name}}",
	"middle_name":            "{{.middle_name}}",
	"nickname":               "{{.nickname}}",
	"preferred_username":     "{{.username}}",
	"profile":                "{{.profile}}",
	"picture":                "{{.picture}}",
	"website":                "{{.website}}",
	"gender":                 "{{.gender}}",
	"birthdate":              "{{.birthdate}}",
	"zoneinfo":               "{{.zoneinfo}}",
	"locale":                 "{{.locale}}",
	"email":                  "{{.email}}",
	"phone_number":           "{{.phone_number}}",
	"address.formatted":      "{{.formatted}}",
	"address.street_address": "{{.street_address}}",
	"address.locality":       "{{.locality}}",
	"address.region":         "{{.region}}",
	"address.postal_code":    "{{.postal_code}}",
	"address.country":        "{{.country}}",
}

// scopeClaims mapea scope -> claims que habilita (OIDC Core §5.4).
var scopeClaims = map[string][]string{
	"profile": {"name", "given_name", "family_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at"},
	"email":   {"email", "email_verified"},
	"phone":   {"phone_number", "phone_number_verified"},
	"address": {"address"},
	"groups":  {"groups"},
}

var addressFields = []string{"formatted", "street_address", "locality", "region", "postal_code", "country"}

// Builder renderiza claims de usuario.
type Builder struct {
	tpl map[string]*template.Template
}

// NewBuilder compila los templates. custom no vacío reemplaza a los
// defaults por completo.
func NewBuilder(custom map[string]string) (*Builder, error) {
	src := DefaultTemplates
	if len(custom) > 0 {
		src = custom
	}
	b := &Builder{tpl: make(map[string]*template.Template, len(src))}
	for name, text := range src {
		t, err := template.New(name).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("claim template %q: %w", name, err)
		}
		b.tpl[name] = t
	}
	return b, nil
}

func templateData(u *repository.User) map[string]string {
	data := make(map[string]string, len(u.Profile)+3)
	maps.Copy(data, u.Profile)
	data["sub"] = u.ID
	data["username"] = u.Username
	if u.Email != "" {
		data["email"] = u.Email
	}
	return data
}

func (b *Builder) render(name string, data map[string]string) string {
	t, ok := b.tpl[name]
	if !ok {
		return ""
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return ""
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// UserClaims devuelve sub más las claims que habilita scope. Las claims
// que renderizan vacías se omiten.
func (b *Builder) UserClaims(u *repository.User, scope []string) map[string]any {
	out := map[string]any{"sub": u.ID}
	data := templateData(u)

	for _, s := range scope {
		for _, name := range scopeClaims[s] {
			switch name {
			case "updated_at":
				if !u.UpdatedAt.IsZero() {
					out[name] = u.UpdatedAt.Unix()
				}
			case "email_verified":
				if _, ok := out["email"]; ok || u.Email != "" {
					out[name] = u.EmailVerified
				}
			case "phone_number_verified":
				if v, ok := u.Profile["phone_number_verified"]; ok {
					verified, _ := strconv.ParseBool(v)
					out[name] = verified
				}
			case "address":
				addr := map[string]string{}
				for _, f := range addressFields {
					if v := b.render("address."+f, data); v != "" {
						addr[f] = v
					}
				}
				if len(addr) > 0 {
					out[name] = addr
				}
			case "groups":
				if len(u.Groups) > 0 {
					out[name] = slices.Clone(u.Groups)
				}
			default:
				if v := b.render(name, data); v != "" {
					out[name] = v
				}
			}
		}
	}
	return out
}

// IDTokenParams son los datos de una emisión de ID token.
type IDTokenParams struct {
	Issuer      string
	ClientID    string
	User        *repository.User
	Scope       []string
	AuthTime    time.Time
	Nonce       string
	AccessToken string // para at_hash
	Code        string // para c_hash
	Alg         string // alg de la clave activa
	IssuedAt    time.Time
	TTL         time.Duration
}

// IDTokenClaims arma las claims core más las de usuario.
func (b *Builder) IDTokenClaims(p IDTokenParams) jwtv5.MapClaims {
	c := jwtv5.MapClaims{}
	maps.Copy(c, b.UserClaims(p.User, p.Scope))

	c["iss"] = p.Issuer
	c["sub"] = p.User.ID
	c["aud"] = p.ClientID
	c["azp"] = p.ClientID
	c["iat"] = p.IssuedAt.Unix()
	c["exp"] = p.IssuedAt.Add(p.TTL).Unix()
	if !p.AuthTime.IsZero() {
		c["auth_time"] = p.AuthTime.Unix()
	}
	if p.Nonce != "" {
		c["nonce"] = p.Nonce
	}
	if p.AccessToken != "" {
		c["at_hash"] = jwtx.HalfHash(p.Alg, p.AccessToken)
	}
	if p.Code != "" {
		c["c_hash"] = jwtx.HalfHash(p.Alg, p.Code)
	}
	return c
}
