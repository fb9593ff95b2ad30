package grant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	jwtx "github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/pkce"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectok "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// ResponseTypesSupported son las combinaciones aceptadas en /authorize.
var ResponseTypesSupported = []string{
	"code",
	"token",
	"id_token",
	"id_token token",
	"code id_token",
	"code token",
	"code id_token token",
}

// PromptValues válidos (OIDC Core §3.1.2.1). prompt=create se acepta solo
// con self-registration habilitado.
var PromptValues = []string{"none", "login", "consent", "select_account"}

const consentChallengeTyp = "consent+jwt"

// AuthorizeRequest son los parámetros de /authorize.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	ResponseMode        string
	Scope               string
	State               string
	Nonce               string
	Prompt              string
	CodeChallenge       string
	CodeChallengeMethod string
	Request             string
	RequestURI          string
	// ReturnTo es la URL original del request; login vuelve acá.
	ReturnTo string
}

// ParseAuthorizeRequest lee los parámetros desde query o form.
func ParseAuthorizeRequest(v url.Values) AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		ResponseType:        v.Get("response_type"),
		ResponseMode:        v.Get("response_mode"),
		Scope:               v.Get("scope"),
		State:               v.Get("state"),
		Nonce:               v.Get("nonce"),
		Prompt:              v.Get("prompt"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: v.Get("code_challenge_method"),
		Request:             v.Get("request"),
		RequestURI:          v.Get("request_uri"),
	}
}

// Subject es el usuario autenticado que hace el request.
type Subject struct {
	UserID   string
	AuthTime time.Time
}

// ResultKind indica cómo responder un AuthorizeResult.
type ResultKind int

const (
	// ResultRedirect: 302 a RedirectURL.
	ResultRedirect ResultKind = iota
	// ResultJSON: Body con Status.
	ResultJSON
)

// AuthorizeResult es la respuesta del authorization endpoint.
type AuthorizeResult struct {
	Kind        ResultKind
	RedirectURL string
	Status      int
	Body        any
}

// ConsentPrompt se devuelve cuando hace falta que el usuario apruebe. El
// challenge firmado vuelve en el POST de la decisión.
type ConsentPrompt struct {
	Error      string `json:"error"`
	ConsentURL string `json:"consent_url"`
	Challenge  string `json:"consent_challenge"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	Scope      string `json:"scope"`
}

// Decision es la respuesta del usuario al prompt de consent.
type Decision struct {
	Accept    bool
	Challenge string
}

// Authorizer implementa GET/POST /oauth/authorize.
type Authorizer struct {
	d *Deps
}

func NewAuthorizer(d *Deps) *Authorizer {
	return &Authorizer{d: d}
}

type validated struct {
	client   *repository.Client
	types    []string
	fragment bool
	prompts  []string
}

func (v *validated) has(rt string) bool { return slices.Contains(v.types, rt) }

// Authorize procesa un request sin decisión del usuario.
func (a *Authorizer) Authorize(ctx context.Context, req AuthorizeRequest, subject *Subject) (*AuthorizeResult, error) {
	v, res, err := a.validate(ctx, req)
	if err != nil || res != nil {
		return res, err
	}
	if subject == nil {
		return a.loginResult(req, v), nil
	}

	allowed := v.client.GetAllowedScope(repository.ParseScope(req.Scope))
	active, err := a.d.Consents.FindActive(ctx, subject.UserID, v.client.ClientID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, oautherr.ServerError(err)
	}

	if a.d.Consents.ShouldAutoApprove(v.client, active, allowed) && !slices.Contains(v.prompts, "consent") {
		return a.issue(ctx, req, v, subject, allowed)
	}
	if slices.Contains(v.prompts, "none") {
		return jsonResult(http.StatusOK, oautherr.Body{Error: oautherr.CodeConsentRequired}), nil
	}

	challenge, err := a.signChallenge(ctx, req, subject, allowed)
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	return jsonResult(http.StatusOK, ConsentPrompt{
		Error:      oautherr.CodeConsentRequired,
		ConsentURL: a.d.Config.ConsentURL,
		Challenge:  challenge,
		ClientID:   v.client.ClientID,
		ClientName: v.client.Name,
		Scope:      allowed,
	}), nil
}

// Decide procesa el POST con la decisión del usuario.
func (a *Authorizer) Decide(ctx context.Context, req AuthorizeRequest, subject *Subject, dec Decision) (*AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("grant.Decide"))

	v, res, err := a.validate(ctx, req)
	if err != nil || res != nil {
		return res, err
	}
	if subject == nil {
		return a.loginResult(req, v), nil
	}
	allowed := v.client.GetAllowedScope(repository.ParseScope(req.Scope))

	if err := a.verifyChallenge(ctx, dec.Challenge, req, subject, allowed); err != nil {
		log.Warn("consent challenge rejected", logger.ClientID(v.client.ClientID), logger.Err(err))
		return redirectError(req, v, oautherr.InvalidRequest("consent challenge is invalid")), nil
	}
	if !dec.Accept {
		return redirectError(req, v, oautherr.AccessDenied("the resource owner denied the request")), nil
	}
	if _, err := a.d.Consents.Accept(ctx, subject.UserID, v.client.ClientID, repository.ParseScope(allowed)); err != nil {
		return nil, oautherr.ServerError(err)
	}
	return a.issue(ctx, req, v, subject, allowed)
}

// validate aplica las reglas en orden. Hasta validar redirect_uri los
// errores vuelven como error (JSON 400); después, como redirección.
func (a *Authorizer) validate(ctx context.Context, req AuthorizeRequest) (*validated, *AuthorizeResult, error) {
	if req.ClientID == "" {
		return nil, nil, oautherr.InvalidRequest("client_id is required")
	}
	client, err := a.d.Clients.Get(ctx, req.ClientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, oautherr.UnknownClient("client is not registered")
		}
		return nil, nil, oautherr.ServerError(err)
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, nil, oautherr.InvalidRequest("redirect_uri is missing or not registered")
	}

	prompts := strings.Fields(req.Prompt)
	for _, p := range prompts {
		if p == "create" && a.d.Config.SelfRegistration {
			continue
		}
		if !slices.Contains(PromptValues, p) {
			return nil, nil, oautherr.InvalidRequest("prompt value is not supported")
		}
	}

	v := &validated{
		client:  client,
		types:   strings.Fields(req.ResponseType),
		prompts: prompts,
	}
	v.fragment = req.ResponseMode == "fragment" ||
		(req.ResponseMode != "query" && repository.NormalizeResponseType(req.ResponseType) != "code")

	if slices.Contains(v.prompts, "none") && len(v.prompts) > 1 {
		return nil, redirectError(req, v, oautherr.InvalidRequest("prompt=none cannot be combined")), nil
	}

	if req.ResponseType == "" {
		return nil, redirectError(req, v, oautherr.InvalidRequest("response_type is required")), nil
	}
	norm := repository.NormalizeResponseType(req.ResponseType)
	supported := slices.ContainsFunc(ResponseTypesSupported, func(rt string) bool {
		return repository.NormalizeResponseType(rt) == norm
	})
	if !supported || !client.AllowsResponseType(req.ResponseType) {
		return nil, redirectError(req, v, oautherr.UnsupportedResponseType("response_type not supported for this client")), nil
	}
	if req.ResponseMode != "" && req.ResponseMode != "query" && req.ResponseMode != "fragment" {
		return nil, redirectError(req, v, oautherr.InvalidRequest("response_mode not supported")), nil
	}
	if req.ResponseMode == "query" && norm != "code" {
		return nil, redirectError(req, v, oautherr.InvalidRequest("response_mode=query is not allowed for this response_type")), nil
	}

	if !pkce.ValidMethod(req.CodeChallengeMethod) {
		return nil, redirectError(req, v, oautherr.InvalidRequest("code_challenge_method not supported")), nil
	}
	if req.CodeChallengeMethod != "" && req.CodeChallenge == "" {
		return nil, redirectError(req, v, oautherr.InvalidRequest("code_challenge is required")), nil
	}

	if req.Request != "" {
		return nil, redirectError(req, v, oautherr.New(http.StatusBadRequest, oautherr.CodeRequestNotSupported, "request objects are not supported")), nil
	}
	if req.RequestURI != "" {
		return nil, redirectError(req, v, oautherr.New(http.StatusBadRequest, oautherr.CodeRequestURINotSupported, "request_uri is not supported")), nil
	}

	if v.has("id_token") && norm != "code" && req.Nonce == "" {
		return nil, redirectError(req, v, oautherr.InvalidRequest("nonce is required for this response_type")), nil
	}
	if a.d.Config.RequireNonce && req.Nonce == "" && slices.Contains(repository.ParseScope(req.Scope), "openid") {
		return nil, redirectError(req, v, oautherr.InvalidRequest("nonce is required")), nil
	}
	return v, nil, nil
}

func (a *Authorizer) loginResult(req AuthorizeRequest, v *validated) *AuthorizeResult {
	if slices.Contains(v.prompts, "none") {
		return jsonResult(http.StatusOK, oautherr.Body{Error: oautherr.CodeLoginRequired})
	}
	target := a.d.Config.LoginURL
	if slices.Contains(v.prompts, "create") && a.d.Config.SelfRegistration {
		target = a.d.Config.RegisterURL
	}
	return &AuthorizeResult{
		Kind:        ResultRedirect,
		RedirectURL: withQuery(target, url.Values{"return_to": {req.ReturnTo}}),
	}
}

// issue emite los artefactos del response_type y redirige.
func (a *Authorizer) issue(ctx context.Context, req AuthorizeRequest, v *validated, subject *Subject, allowed string) (*AuthorizeResult, error) {
	d := a.d
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("grant.Authorize"),
		logger.ClientID(v.client.ClientID), logger.UserID(subject.UserID))
	scope := repository.ParseScope(allowed)
	now := d.now()
	params := url.Values{}

	var rawCode, rawAccess string
	if v.has("code") {
		if d.Config.RequireNonce && req.Nonce != "" {
			fresh, err := d.Cache.SetNX(ctx, "nonce:"+v.client.ClientID+":"+req.Nonce, "1", d.Config.CodeTTL)
			if err != nil {
				return nil, oautherr.ServerError(err)
			}
			if !fresh {
				return redirectError(req, v, oautherr.InvalidRequest("nonce was already used")), nil
			}
		}

		code, err := sectok.GenerateOpaqueToken(sectok.CodeBytes)
		if err != nil {
			return nil, oautherr.ServerError(err)
		}
		method := req.CodeChallengeMethod
		if req.CodeChallenge != "" && method == "" {
			method = pkce.MethodPlain
		}
		err = d.Codes.Create(ctx, repository.AuthorizationCode{
			Code:                sectok.SHA256Base64URL(code),
			ClientID:            v.client.ClientID,
			UserID:              subject.UserID,
			RedirectURI:         req.RedirectURI,
			Scope:               scope,
			Nonce:               req.Nonce,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: method,
			IssuedAt:            now,
			Lifetime:            d.Config.CodeTTL,
			AuthTime:            subject.AuthTime,
		})
		if err != nil {
			return nil, oautherr.ServerError(err)
		}
		rawCode = code
		params.Set("code", code)
	}

	if v.has("token") {
		issued, err := d.Tokens.Issue(ctx, tokens.IssueParams{
			Client:    v.client,
			GrantType: TypeImplicit,
			UserID:    subject.UserID,
			Scope:     scope,
		})
		if err != nil {
			return nil, oautherr.ServerError(err)
		}
		rawAccess = issued.AccessToken
		params.Set("access_token", issued.AccessToken)
		params.Set("token_type", issued.Record.TokenType)
		params.Set("expires_in", strconv.FormatInt(issued.ExpiresIn, 10))
		params.Set("scope", allowed)
	}

	if v.has("id_token") {
		user, err := d.Users.Get(ctx, subject.UserID)
		if err != nil {
			return nil, oautherr.ServerError(err)
		}
		idt, err := d.mintIDToken(ctx, idTokenInput{
			Client:      v.client,
			User:        user,
			Scope:       scope,
			AuthTime:    subject.AuthTime,
			Nonce:       req.Nonce,
			AccessToken: rawAccess,
			Code:        rawCode,
		})
		if err != nil {
			return nil, oautherr.ServerError(err)
		}
		params.Set("id_token", idt)
	}

	if req.State != "" {
		params.Set("state", req.State)
	}
	log.Info("authorization granted", logger.String("response_type", req.ResponseType))
	return &AuthorizeResult{Kind: ResultRedirect, RedirectURL: buildRedirect(req.RedirectURI, params, v.fragment)}, nil
}

func (a *Authorizer) signChallenge(ctx context.Context, req AuthorizeRequest, subject *Subject, allowed string) (string, error) {
	now := a.d.now()
	return a.d.Signer.Sign(ctx, jwtv5.MapClaims{
		"iss":          a.d.Config.Issuer,
		"aud":          a.d.Config.Issuer,
		"sub":          subject.UserID,
		"client_id":    req.ClientID,
		"redirect_uri": req.RedirectURI,
		"scope":        allowed,
		"iat":          now.Unix(),
		"exp":          now.Add(a.d.Config.CodeTTL).Unix(),
	}, consentChallengeTyp)
}

func (a *Authorizer) verifyChallenge(ctx context.Context, challenge string, req AuthorizeRequest, subject *Subject, allowed string) error {
	if challenge == "" {
		return fmt.Errorf("missing consent challenge")
	}
	c, err := a.d.Signer.Parse(ctx, challenge, jwtx.ParseOptions{Audience: a.d.Config.Issuer, Typ: consentChallengeTyp})
	if err != nil {
		return err
	}
	sub, _ := c.GetSubject()
	clientID, _ := c["client_id"].(string)
	redirectURI, _ := c["redirect_uri"].(string)
	scope, _ := c["scope"].(string)
	if sub != subject.UserID || clientID != req.ClientID || redirectURI != req.RedirectURI || scope != allowed {
		return fmt.Errorf("consent challenge does not match the request")
	}
	return nil
}

func jsonResult(status int, body any) *AuthorizeResult {
	return &AuthorizeResult{Kind: ResultJSON, Status: status, Body: body}
}

func redirectError(req AuthorizeRequest, v *validated, oe *oautherr.Error) *AuthorizeResult {
	params := url.Values{"error": {oe.Code}}
	if oe.Description != "" {
		params.Set("error_description", oe.Description)
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	return &AuthorizeResult{Kind: ResultRedirect, RedirectURL: buildRedirect(req.RedirectURI, params, v.fragment)}
}

// buildRedirect agrega params a la query o al fragment de base.
func buildRedirect(base string, params url.Values, fragment bool) string {
	if fragment {
		u, err := url.Parse(base)
		if err != nil {
			return base + "#" + params.Encode()
		}
		u.Fragment = ""
		return u.String() + "#" + params.Encode()
	}
	return withQuery(base, params)
}

func withQuery(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}
