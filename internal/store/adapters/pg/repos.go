package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// ─── ClientRepository ───

type clientRepo struct{ pool *pgxpool.Pool }

const clientColumns = `client_id, secret_hash, name, redirect_uris, post_logout_redirect_uris,
	grant_types, response_types, token_endpoint_auth_method, scope, jwks, jwks_uri, audience,
	preconsent, software_id, software_version, userinfo_signed_response_alg,
	registration_token_hash, created_at, updated_at`

func scanClient(row pgx.Row) (*repository.Client, error) {
	var c repository.Client
	err := row.Scan(&c.ClientID, &c.SecretHash, &c.Name, &c.RedirectURIs, &c.PostLogoutRedirectURIs,
		&c.GrantTypes, &c.ResponseTypes, &c.TokenEndpointAuthMethod, &c.Scope, &c.JWKS, &c.JWKSURI,
		&c.Audience, &c.Preconsent, &c.SoftwareID, &c.SoftwareVersion, &c.UserinfoSignedResponseAlg,
		&c.RegistrationTokenHash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func jwksArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	return scanClient(r.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM oauth_client WHERE client_id = $1`, clientID))
}

func (r *clientRepo) List(ctx context.Context) ([]repository.Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM oauth_client ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repository.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *clientRepo) Create(ctx context.Context, c repository.Client) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_client (`+clientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		c.ClientID, c.SecretHash, c.Name, c.RedirectURIs, c.PostLogoutRedirectURIs,
		c.GrantTypes, c.ResponseTypes, c.TokenEndpointAuthMethod, c.Scope, jwksArg(c.JWKS), c.JWKSURI,
		c.Audience, c.Preconsent, c.SoftwareID, c.SoftwareVersion, c.UserinfoSignedResponseAlg,
		c.RegistrationTokenHash, c.CreatedAt, c.UpdatedAt)
	return mapErr(err)
}

func (r *clientRepo) Update(ctx context.Context, c repository.Client) error {
	return execOne(r.pool.Exec(ctx, `
		UPDATE oauth_client SET secret_hash=$2, name=$3, redirect_uris=$4, post_logout_redirect_uris=$5,
			grant_types=$6, response_types=$7, token_endpoint_auth_method=$8, scope=$9, jwks=$10::jsonb,
			jwks_uri=$11, audience=$12, preconsent=$13, software_id=$14, software_version=$15,
			userinfo_signed_response_alg=$16, registration_token_hash=$17, updated_at=$18
		WHERE client_id=$1`,
		c.ClientID, c.SecretHash, c.Name, c.RedirectURIs, c.PostLogoutRedirectURIs,
		c.GrantTypes, c.ResponseTypes, c.TokenEndpointAuthMethod, c.Scope, jwksArg(c.JWKS),
		c.JWKSURI, c.Audience, c.Preconsent, c.SoftwareID, c.SoftwareVersion,
		c.UserinfoSignedResponseAlg, c.RegistrationTokenHash, c.UpdatedAt))
}

func (r *clientRepo) Delete(ctx context.Context, clientID string) error {
	return execOne(r.pool.Exec(ctx, `DELETE FROM oauth_client WHERE client_id = $1`, clientID))
}

// ─── CodeRepository ───

type codeRepo struct{ pool *pgxpool.Pool }

func (r *codeRepo) Create(ctx context.Context, c repository.AuthorizationCode) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO authorization_code (code_hash, client_id, user_id, redirect_uri, scope, nonce,
			code_challenge, code_challenge_method, issued_at, lifetime_seconds, auth_time, revoked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.Code, c.ClientID, c.UserID, c.RedirectURI, c.Scope, c.Nonce, c.CodeChallenge,
		c.CodeChallengeMethod, c.IssuedAt, int64(c.Lifetime/time.Second), c.AuthTime, c.RevokedAt)
	return mapErr(err)
}

func (r *codeRepo) Get(ctx context.Context, hash string) (*repository.AuthorizationCode, error) {
	var c repository.AuthorizationCode
	var lifetime int64
	err := r.pool.QueryRow(ctx, `
		SELECT code_hash, client_id, user_id, redirect_uri, scope, nonce, code_challenge,
			code_challenge_method, issued_at, lifetime_seconds, auth_time, revoked_at
		FROM authorization_code WHERE code_hash = $1`, hash).Scan(
		&c.Code, &c.ClientID, &c.UserID, &c.RedirectURI, &c.Scope, &c.Nonce, &c.CodeChallenge,
		&c.CodeChallengeMethod, &c.IssuedAt, &lifetime, &c.AuthTime, &c.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	c.Lifetime = time.Duration(lifetime) * time.Second
	return &c, nil
}

// Delete es el punto de serialización del single-use: sólo un caller ve
// RowsAffected == 1.
func (r *codeRepo) Delete(ctx context.Context, hash string) error {
	return execOne(r.pool.Exec(ctx, `DELETE FROM authorization_code WHERE code_hash = $1`, hash))
}

func (r *codeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM authorization_code
		WHERE issued_at + make_interval(secs => lifetime_seconds) < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ─── TokenRepository ───

type tokenRepo struct{ pool *pgxpool.Pool }

const tokenColumns = `id, access_token_hash, refresh_token_hash, token_type, client_id, user_id,
	grant_type, scope, audience, issued_at, lifetime_seconds, refresh_lifetime_seconds, revoked_at`

func scanToken(row pgx.Row) (*repository.Token, error) {
	var t repository.Token
	var refresh *string
	var lifetime, refreshLifetime int64
	err := row.Scan(&t.ID, &t.AccessTokenHash, &refresh, &t.TokenType, &t.ClientID, &t.UserID,
		&t.GrantType, &t.Scope, &t.Audience, &t.IssuedAt, &lifetime, &refreshLifetime, &t.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if refresh != nil {
		t.RefreshTokenHash = *refresh
	}
	t.Lifetime = time.Duration(lifetime) * time.Second
	t.RefreshLifetime = time.Duration(refreshLifetime) * time.Second
	return &t, nil
}

func (r *tokenRepo) Create(ctx context.Context, t repository.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_token (`+tokenColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.AccessTokenHash, nullIfEmpty(t.RefreshTokenHash), t.TokenType, t.ClientID, t.UserID,
		t.GrantType, t.Scope, t.Audience, t.IssuedAt, int64(t.Lifetime/time.Second),
		int64(t.RefreshLifetime/time.Second), t.RevokedAt)
	return mapErr(err)
}

func (r *tokenRepo) GetByAccessHash(ctx context.Context, hash string) (*repository.Token, error) {
	return scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM oauth_token WHERE access_token_hash = $1`, hash))
}

func (r *tokenRepo) GetByRefreshHash(ctx context.Context, hash string) (*repository.Token, error) {
	if hash == "" {
		return nil, repository.ErrNotFound
	}
	return scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM oauth_token WHERE refresh_token_hash = $1`, hash))
}

func (r *tokenRepo) ListByUserClient(ctx context.Context, userID, clientID string) ([]repository.Token, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM oauth_token WHERE user_id = $1 AND client_id = $2`, userID, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repository.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Update sólo persiste los campos mutables. revoked_at nunca retrocede.
func (r *tokenRepo) Update(ctx context.Context, t repository.Token) error {
	return execOne(r.pool.Exec(ctx, `
		UPDATE oauth_token SET scope = $2, audience = $3, revoked_at = COALESCE(revoked_at, $4)
		WHERE id = $1`, t.ID, t.Scope, t.Audience, t.RevokedAt))
}

func (r *tokenRepo) RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE oauth_token SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM oauth_token
		WHERE issued_at + make_interval(secs => GREATEST(lifetime_seconds, refresh_lifetime_seconds)) < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ─── ConsentRepository ───

type consentRepo struct{ pool *pgxpool.Pool }

const consentColumns = `id, user_id, client_id, scope, issued_at, revoked_at`

func scanConsent(row pgx.Row) (*repository.Consent, error) {
	var c repository.Consent
	if err := row.Scan(&c.ID, &c.UserID, &c.ClientID, &c.Scope, &c.IssuedAt, &c.RevokedAt); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *consentRepo) Get(ctx context.Context, id string) (*repository.Consent, error) {
	return scanConsent(r.pool.QueryRow(ctx, `SELECT `+consentColumns+` FROM consent WHERE id = $1`, id))
}

func (r *consentRepo) query(ctx context.Context, sql string, args ...any) ([]repository.Consent, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repository.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *consentRepo) ListByUserClient(ctx context.Context, userID, clientID string) ([]repository.Consent, error) {
	return r.query(ctx, `SELECT `+consentColumns+` FROM consent
		WHERE user_id = $1 AND client_id = $2 ORDER BY issued_at NULLS FIRST`, userID, clientID)
}

func (r *consentRepo) ListByUser(ctx context.Context, userID string) ([]repository.Consent, error) {
	return r.query(ctx, `SELECT `+consentColumns+` FROM consent
		WHERE user_id = $1 ORDER BY issued_at NULLS FIRST`, userID)
}

func (r *consentRepo) Create(ctx context.Context, c repository.Consent) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO consent (`+consentColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.UserID, c.ClientID, c.Scope, c.IssuedAt, c.RevokedAt)
	return mapErr(err)
}

func (r *consentRepo) Update(ctx context.Context, c repository.Consent) error {
	return execOne(r.pool.Exec(ctx,
		`UPDATE consent SET scope = $2, issued_at = $3, revoked_at = $4 WHERE id = $1`,
		c.ID, c.Scope, c.IssuedAt, c.RevokedAt))
}

// ─── UserRepository ───

type userRepo struct{ pool *pgxpool.Pool }

const userColumns = `id, username, email, email_verified, password_hash, profile, groups,
	disabled_at, created_at, updated_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.EmailVerified, &u.PasswordHash, &u.Profile,
		&u.Groups, &u.DisabledAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *userRepo) Get(ctx context.Context, id string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user
		WHERE username = $1 OR (email <> '' AND email = $1) ORDER BY username = $1 DESC LIMIT 1`, username))
}

func profileArg(p map[string]string) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return p
}

func (r *userRepo) Create(ctx context.Context, u repository.User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO app_user (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.Username, u.Email, u.EmailVerified, u.PasswordHash, profileArg(u.Profile), u.Groups,
		u.DisabledAt, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (r *userRepo) Update(ctx context.Context, u repository.User) error {
	return execOne(r.pool.Exec(ctx, `
		UPDATE app_user SET username=$2, email=$3, email_verified=$4, password_hash=$5, profile=$6,
			groups=$7, disabled_at=$8, updated_at=$9
		WHERE id=$1`,
		u.ID, u.Username, u.Email, u.EmailVerified, u.PasswordHash, profileArg(u.Profile), u.Groups,
		u.DisabledAt, u.UpdatedAt))
}

// ─── KeyRepository ───

type keyRepo struct{ pool *pgxpool.Pool }

const keyColumns = `kid, algorithm, private_pem, public_pem, status, created_at, rotated_at`

func scanKey(row pgx.Row) (*repository.SigningKey, error) {
	var k repository.SigningKey
	var status string
	err := row.Scan(&k.KID, &k.Algorithm, &k.PrivatePEM, &k.PublicPEM, &status, &k.CreatedAt, &k.RotatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	k.Status = repository.KeyStatus(status)
	return &k, nil
}

func (r *keyRepo) GetActive(ctx context.Context) (*repository.SigningKey, error) {
	return scanKey(r.pool.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM signing_key WHERE status = 'active'`))
}

func (r *keyRepo) ListPublished(ctx context.Context) ([]repository.SigningKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+keyColumns+` FROM signing_key
		WHERE status IN ('active', 'retiring') ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repository.SigningKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (r *keyRepo) Rotate(ctx context.Context, next repository.SigningKey) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE signing_key SET status = 'retired' WHERE status = 'retiring'`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE signing_key SET status = 'retiring', rotated_at = NOW() WHERE status = 'active'`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO signing_key (`+keyColumns+`) VALUES ($1,$2,$3,$4,'active',$5,NULL)`,
			next.KID, next.Algorithm, next.PrivatePEM, next.PublicPEM, next.CreatedAt)
		return mapErr(err)
	})
}
