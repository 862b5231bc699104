// Package auth implements the OAuth 2.1 authorization server guarding the
// MCP endpoint: dynamic client registration, PKCE authorization-code grant,
// token issuance and rotation, bearer validation.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brainsh/brain/internal/db"
)

const (
	clientIDPrefix = "brain_"

	// Token lifetimes.
	CodeTTL         = 10 * time.Minute
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Client is a registered OAuth client.
type Client struct {
	ID                      string    `json:"client_id"`
	Secret                  string    `json:"client_secret,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	Scope                   string    `json:"scope"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	CreatedAt               time.Time `json:"-"`
}

// HasRedirectURI reports whether uri exactly matches a registered URI.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// Code is a single-use authorization code.
type Code struct {
	Code          string
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	Scope         string
	ExpiresAt     time.Time
}

// Token is an issued access or refresh token.
type Token struct {
	Token     string
	ClientID  string
	Scope     string
	ExpiresAt time.Time
}

// Store persists OAuth entities in the shared database.
type Store struct {
	db *db.DB
}

// NewStore creates a store over an open database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// randomHex returns n random bytes hex-encoded (2n characters).
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random source: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateClient registers a new client with a generated id and secret.
func (s *Store) CreateClient(ctx context.Context, redirectURIs []string, authMethod, scope string) (*Client, error) {
	idSuffix, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	secret, err := randomHex(32)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:                      clientIDPrefix + idSuffix,
		Secret:                  secret,
		RedirectURIs:            redirectURIs,
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		Scope:                   scope,
		TokenEndpointAuthMethod: authMethod,
		CreatedAt:               time.Now(),
	}

	uris, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Driver().Exec(ctx, `
		INSERT INTO oauth_clients
			(id, secret, redirect_uris, grant_types, response_types, scope, token_endpoint_auth_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Secret, string(uris),
		strings.Join(c.GrantTypes, " "), strings.Join(c.ResponseTypes, " "),
		c.Scope, c.TokenEndpointAuthMethod, c.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

// GetClient loads a client by id. Returns nil when unknown.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	var (
		c       Client
		uris    string
		grants  string
		resps   string
		created int64
	)
	err := s.db.Driver().QueryRow(ctx, `
		SELECT id, secret, redirect_uris, grant_types, response_types, scope, token_endpoint_auth_method, created_at
		FROM oauth_clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Secret, &uris, &grants, &resps, &c.Scope, &c.TokenEndpointAuthMethod, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	if err := json.Unmarshal([]byte(uris), &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decode redirect uris: %w", err)
	}
	c.GrantTypes = strings.Fields(grants)
	c.ResponseTypes = strings.Fields(resps)
	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}

// CreateCode issues a single-use authorization code bound to the client,
// redirect URI, code challenge, and scope.
func (s *Store) CreateCode(ctx context.Context, clientID, redirectURI, challenge, scope string) (*Code, error) {
	value, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	code := &Code{
		Code:          value,
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		CodeChallenge: challenge,
		Scope:         scope,
		ExpiresAt:     time.Now().Add(CodeTTL),
	}
	_, err = s.db.Driver().Exec(ctx, `
		INSERT INTO oauth_codes (code, client_id, redirect_uri, code_challenge, scope, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		code.Code, code.ClientID, code.RedirectURI, code.CodeChallenge, code.Scope, code.ExpiresAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert code: %w", err)
	}
	return code, nil
}

// ConsumeCode atomically validates and deletes a code. A second consumption,
// an unknown code, and an expired code all return nil.
func (s *Store) ConsumeCode(ctx context.Context, value string) (*Code, error) {
	tx, err := s.db.Driver().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		c       Code
		expires int64
	)
	err = tx.QueryRow(ctx, `
		SELECT code, client_id, redirect_uri, code_challenge, scope, expires_at
		FROM oauth_codes WHERE code = ?`, value).
		Scan(&c.Code, &c.ClientID, &c.RedirectURI, &c.CodeChallenge, &c.Scope, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM oauth_codes WHERE code = ?", value); err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	c.ExpiresAt = time.Unix(expires, 0)
	if time.Now().After(c.ExpiresAt) {
		return nil, nil
	}
	return &c, nil
}

// CreateAccessToken issues a bearer access token.
func (s *Store) CreateAccessToken(ctx context.Context, clientID, scope string) (*Token, error) {
	return s.createToken(ctx, "oauth_access_tokens", clientID, scope, AccessTokenTTL)
}

// CreateRefreshToken issues a refresh token.
func (s *Store) CreateRefreshToken(ctx context.Context, clientID, scope string) (*Token, error) {
	return s.createToken(ctx, "oauth_refresh_tokens", clientID, scope, RefreshTokenTTL)
}

func (s *Store) createToken(ctx context.Context, table, clientID, scope string, ttl time.Duration) (*Token, error) {
	value, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	t := &Token{
		Token:     value,
		ClientID:  clientID,
		Scope:     scope,
		ExpiresAt: time.Now().Add(ttl),
	}
	_, err = s.db.Driver().Exec(ctx,
		"INSERT INTO "+table+" (token, client_id, scope, expires_at) VALUES (?, ?, ?, ?)",
		t.Token, t.ClientID, t.Scope, t.ExpiresAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}
	return t, nil
}

// ValidateAccessToken returns the token metadata, or nil when the token is
// unknown or past its expiry.
func (s *Store) ValidateAccessToken(ctx context.Context, value string) (*Token, error) {
	var (
		t       Token
		expires int64
	)
	err := s.db.Driver().QueryRow(ctx,
		"SELECT token, client_id, scope, expires_at FROM oauth_access_tokens WHERE token = ?", value).
		Scan(&t.Token, &t.ClientID, &t.Scope, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	t.ExpiresAt = time.Unix(expires, 0)
	if time.Now().After(t.ExpiresAt) {
		return nil, nil
	}
	return &t, nil
}

// RotateRefreshToken atomically deletes the presented refresh token and
// issues a new access+refresh pair. A reused, unknown, or expired token
// returns nil, nil.
func (s *Store) RotateRefreshToken(ctx context.Context, value string) (*Token, *Token, error) {
	tx, err := s.db.Driver().BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var (
		old     Token
		expires int64
	)
	err = tx.QueryRow(ctx,
		"SELECT token, client_id, scope, expires_at FROM oauth_refresh_tokens WHERE token = ?", value).
		Scan(&old.Token, &old.ClientID, &old.Scope, &expires)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load refresh token: %w", err)
	}

	// Delete first: the old token must never be reusable, even if issuing
	// the new pair fails.
	if _, err := tx.Exec(ctx, "DELETE FROM oauth_refresh_tokens WHERE token = ?", value); err != nil {
		return nil, nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	old.ExpiresAt = time.Unix(expires, 0)
	if time.Now().After(old.ExpiresAt) {
		if err := tx.Commit(); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	accessValue, err := randomHex(32)
	if err != nil {
		return nil, nil, err
	}
	refreshValue, err := randomHex(32)
	if err != nil {
		return nil, nil, err
	}
	access := &Token{Token: accessValue, ClientID: old.ClientID, Scope: old.Scope, ExpiresAt: time.Now().Add(AccessTokenTTL)}
	refresh := &Token{Token: refreshValue, ClientID: old.ClientID, Scope: old.Scope, ExpiresAt: time.Now().Add(RefreshTokenTTL)}

	if _, err := tx.Exec(ctx,
		"INSERT INTO oauth_access_tokens (token, client_id, scope, expires_at) VALUES (?, ?, ?, ?)",
		access.Token, access.ClientID, access.Scope, access.ExpiresAt.Unix()); err != nil {
		return nil, nil, fmt.Errorf("insert access token: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO oauth_refresh_tokens (token, client_id, scope, expires_at) VALUES (?, ?, ?, ?)",
		refresh.Token, refresh.ClientID, refresh.Scope, refresh.ExpiresAt.Unix()); err != nil {
		return nil, nil, fmt.Errorf("insert refresh token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

// CleanupExpired deletes expired codes and tokens.
func (s *Store) CleanupExpired(ctx context.Context) error {
	now := time.Now().Unix()
	for _, table := range []string{"oauth_codes", "oauth_access_tokens", "oauth_refresh_tokens"} {
		if _, err := s.db.Driver().Exec(ctx,
			"DELETE FROM "+table+" WHERE expires_at < ?", now); err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	return nil
}

// StartCleanup runs CleanupExpired on an interval until ctx is done.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.CleanupExpired(ctx)
			}
		}
	}()
}
