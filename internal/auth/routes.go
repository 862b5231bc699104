package auth

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Server exposes the OAuth 2.1 endpoints.
type Server struct {
	store  *Store
	logger *slog.Logger
}

// NewServer creates the OAuth route handler.
func NewServer(store *Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger}
}

// RegisterRoutes mounts the OAuth endpoints on a mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("GET /.well-known/oauth-protected-resource/mcp", s.handleProtectedResource)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /authorize", s.handleAuthorizeGet)
	mux.HandleFunc("POST /authorize", s.handleAuthorizePost)
	mux.HandleFunc("POST /token", s.handleToken)
}

// SupportedScopes are the scopes the server understands.
var SupportedScopes = []string{"mcp", "mcp:read", "mcp:write"}

// issuer derives the issuer URL from the request's scheme and host.
func issuer(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// oauthError writes the RFC 6749 error body.
func oauthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	iss := issuer(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                iss,
		"authorization_endpoint":                iss + "/authorize",
		"token_endpoint":                        iss + "/token",
		"registration_endpoint":                 iss + "/register",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic", "none"},
		"scopes_supported":                      SupportedScopes,
	})
}

func (s *Server) handleProtectedResource(w http.ResponseWriter, r *http.Request) {
	iss := issuer(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"resource":                 iss + "/mcp",
		"authorization_servers":    []string{iss},
		"bearer_methods_supported": []string{"header"},
		"scopes_supported":         SupportedScopes,
	})
}

// registerRequest is the dynamic client registration body.
type registerRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if len(req.RedirectURIs) == 0 {
		oauthError(w, http.StatusBadRequest, "invalid_request", "redirect_uris must be a non-empty array")
		return
	}
	for _, raw := range req.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			oauthError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("redirect uri %q is not a valid URI", raw))
			return
		}
	}

	method := req.TokenEndpointAuthMethod
	switch method {
	case "":
		method = "client_secret_post"
	case "client_secret_post", "client_secret_basic", "none":
	default:
		oauthError(w, http.StatusBadRequest, "invalid_request", "unsupported token_endpoint_auth_method")
		return
	}
	scope := req.Scope
	if scope == "" {
		scope = "mcp"
	}

	client, err := s.store.CreateClient(r.Context(), req.RedirectURIs, method, scope)
	if err != nil {
		s.logger.Error("client registration failed", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "could not register client")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"client_id":                  client.ID,
		"client_secret":              client.Secret,
		"client_secret_expires_at":   0,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"response_types":             client.ResponseTypes,
		"scope":                      client.Scope,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
	})
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html><head><title>Authorization Error</title></head>
<body><h1>Authorization Error</h1><p>{{.}}</p></body></html>`))

var consentPage = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html><head><title>Authorize {{.ClientID}}</title></head>
<body>
<h1>Authorization Request</h1>
<p>Client <code>{{.ClientID}}</code> requests access with scope <code>{{.Scope}}</code>.</p>
<form method="post" action="/authorize">
<input type="hidden" name="response_type" value="code">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
<input type="hidden" name="code_challenge_method" value="S256">
<input type="hidden" name="state" value="{{.State}}">
<input type="hidden" name="scope" value="{{.Scope}}">
<button type="submit" name="action" value="allow">Allow</button>
<button type="submit" name="action" value="deny">Deny</button>
</form>
</body></html>`))

// htmlError renders the pre-redirect-validation error page.
func htmlError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = errorPage.Execute(w, msg)
}

// redirectError sends the post-validation error to the client's redirect URI.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, code, description, state string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		htmlError(w, http.StatusBadRequest, "invalid redirect uri")
		return
	}
	q := u.Query()
	q.Set("error", code)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// authorizeParams are the validated GET /authorize inputs.
type authorizeParams struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	State         string
	Scope         string
}

// validateAuthorize checks the authorize parameters. Client identity and
// redirect URI are validated first; until both pass, errors render an HTML
// page rather than redirecting anywhere.
func (s *Server) validateAuthorize(w http.ResponseWriter, r *http.Request, q url.Values) (*authorizeParams, bool) {
	clientID := q.Get("client_id")
	if clientID == "" {
		htmlError(w, http.StatusBadRequest, "missing client_id")
		return nil, false
	}
	client, err := s.store.GetClient(r.Context(), clientID)
	if err != nil {
		htmlError(w, http.StatusInternalServerError, "server error")
		return nil, false
	}
	if client == nil {
		htmlError(w, http.StatusBadRequest, "unknown client")
		return nil, false
	}

	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || !client.HasRedirectURI(redirectURI) {
		htmlError(w, http.StatusBadRequest, "redirect_uri does not match a registered uri")
		return nil, false
	}

	state := q.Get("state")
	if q.Get("response_type") != "code" {
		redirectError(w, r, redirectURI, "unsupported_response_type", "only code is supported", state)
		return nil, false
	}
	if q.Get("code_challenge_method") != "S256" {
		redirectError(w, r, redirectURI, "invalid_request", "code_challenge_method must be S256", state)
		return nil, false
	}
	challenge := q.Get("code_challenge")
	if !ValidChallenge(challenge) {
		redirectError(w, r, redirectURI, "invalid_request", "malformed code_challenge", state)
		return nil, false
	}

	scope := q.Get("scope")
	if scope == "" {
		scope = "mcp"
	}

	return &authorizeParams{
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		CodeChallenge: challenge,
		State:         state,
		Scope:         scope,
	}, true
}

func (s *Server) handleAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	params, ok := s.validateAuthorize(w, r, r.URL.Query())
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = consentPage.Execute(w, params)
}

func (s *Server) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		htmlError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	params, ok := s.validateAuthorize(w, r, r.PostForm)
	if !ok {
		return
	}

	if r.PostForm.Get("action") != "allow" {
		redirectError(w, r, params.RedirectURI, "access_denied", "the user denied the request", params.State)
		return
	}

	code, err := s.store.CreateCode(r.Context(), params.ClientID, params.RedirectURI, params.CodeChallenge, params.Scope)
	if err != nil {
		s.logger.Error("code issuance failed", "error", err)
		redirectError(w, r, params.RedirectURI, "server_error", "could not issue code", params.State)
		return
	}

	u, _ := url.Parse(params.RedirectURI)
	q := u.Query()
	q.Set("code", code.Code)
	if params.State != "" {
		q.Set("state", params.State)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// tokenRequest is the POST /token body, accepted as JSON or form encoding.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func parseTokenRequest(r *http.Request) (*tokenRequest, error) {
	var req tokenRequest
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		req.GrantType = r.PostForm.Get("grant_type")
		req.Code = r.PostForm.Get("code")
		req.RedirectURI = r.PostForm.Get("redirect_uri")
		req.CodeVerifier = r.PostForm.Get("code_verifier")
		req.RefreshToken = r.PostForm.Get("refresh_token")
		req.ClientID = r.PostForm.Get("client_id")
		req.ClientSecret = r.PostForm.Get("client_secret")
	}

	// HTTP Basic credentials take precedence over body credentials.
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}
	return &req, nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", "malformed token request")
		return
	}

	switch req.GrantType {
	case "authorization_code":
		s.tokenFromCode(w, r, req)
	case "refresh_token":
		s.tokenFromRefresh(w, r, req)
	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) tokenFromCode(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	if req.Code == "" || req.RedirectURI == "" || req.CodeVerifier == "" {
		oauthError(w, http.StatusBadRequest, "invalid_request", "code, redirect_uri, and code_verifier are required")
		return
	}

	code, err := s.store.ConsumeCode(r.Context(), req.Code)
	if err != nil {
		oauthError(w, http.StatusInternalServerError, "server_error", "could not consume code")
		return
	}
	if code == nil {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid, expired, or already used")
		return
	}
	if req.ClientID != "" && req.ClientID != code.ClientID {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "code was issued to a different client")
		return
	}
	if req.RedirectURI != code.RedirectURI {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the authorization request")
		return
	}
	if !VerifyPKCEChallenge(req.CodeVerifier, code.CodeChallenge) {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match the challenge")
		return
	}

	if !s.authenticateClient(w, r, code.ClientID, req.ClientSecret) {
		return
	}

	s.issuePair(w, r, code.ClientID, code.Scope)
}

func (s *Server) tokenFromRefresh(w http.ResponseWriter, r *http.Request, req *tokenRequest) {
	if req.RefreshToken == "" {
		oauthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	access, refresh, err := s.store.RotateRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		oauthError(w, http.StatusInternalServerError, "server_error", "could not rotate token")
		return
	}
	if access == nil {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid, expired, or already rotated")
		return
	}

	writeTokenResponse(w, access, refresh)
}

// authenticateClient validates the client secret when one is supplied. PKCE
// carries the proof of possession, so a missing secret is not an error.
func (s *Server) authenticateClient(w http.ResponseWriter, r *http.Request, clientID, secret string) bool {
	if secret == "" {
		return true
	}
	client, err := s.store.GetClient(r.Context(), clientID)
	if err != nil || client == nil {
		oauthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return false
	}
	if secret != client.Secret {
		oauthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return false
	}
	return true
}

func (s *Server) issuePair(w http.ResponseWriter, r *http.Request, clientID, scope string) {
	access, err := s.store.CreateAccessToken(r.Context(), clientID, scope)
	if err != nil {
		oauthError(w, http.StatusInternalServerError, "server_error", "could not issue access token")
		return
	}
	refresh, err := s.store.CreateRefreshToken(r.Context(), clientID, scope)
	if err != nil {
		oauthError(w, http.StatusInternalServerError, "server_error", "could not issue refresh token")
		return
	}
	writeTokenResponse(w, access, refresh)
}

func writeTokenResponse(w http.ResponseWriter, access, refresh *Token) {
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access.Token,
		"token_type":    "Bearer",
		"expires_in":    int(AccessTokenTTL.Seconds()),
		"refresh_token": refresh.Token,
		"scope":         access.Scope,
	})
}
