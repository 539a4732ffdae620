// Package identity is the HTTP client for the identity boundary.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sumire/arena/internal/domain"
)

// Error codes sent by the identity server in the response envelope.
const (
	CodeValidation         = "validation_error"
	CodeInvalidInput       = "invalid_input"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeSessionExpired     = "session_expired"
	CodeOAuthDenied        = "oauth_denied"
	CodeCallbackMismatch   = "oauth_callback_mismatch"
	CodeLinkUnverified     = "onboarding_link_unverified"
)

// Client talks to the identity server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the identity server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

// Login exchanges local credentials for a token.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	var res domain.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", creds, &res, domain.KindInvalidCredentials); err != nil {
		return nil, err
	}
	return &res, nil
}

// Register creates a local account and signs it in.
func (c *Client) Register(ctx context.Context, profile domain.Profile) (*domain.AuthResult, error) {
	var res domain.AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", profile, &res, domain.KindInvalidCredentials); err != nil {
		return nil, err
	}
	return &res, nil
}

// Me resolves the user a token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &u, domain.KindSessionExpired); err != nil {
		return nil, err
	}
	return &u, nil
}

// OAuthURL is the address that starts the provider consent flow.
func (c *Client) OAuthURL(provider domain.AuthProvider) string {
	return c.baseURL + "/auth/oauth/" + url.PathEscape(string(provider))
}

// ExchangeOAuth trades the one-time callback code for a token.
func (c *Client) ExchangeOAuth(ctx context.Context, provider domain.AuthProvider, code string) (*domain.AuthResult, error) {
	body := map[string]string{"code": code}
	path := "/auth/oauth/" + url.PathEscape(string(provider)) + "/exchange"

	var res domain.AuthResult
	if err := c.do(ctx, http.MethodPost, path, "", body, &res, domain.KindCallbackMismatch); err != nil {
		return nil, err
	}
	return &res, nil
}

// LinkAccount submits the external account for verification. It blocks until
// the server knows whether the link is verified.
func (c *Client) LinkAccount(ctx context.Context, token string, link domain.LinkInfo) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodPost, "/auth/onboarding/link", token, link, &u, domain.KindSessionExpired); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout revokes the token server side.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil, domain.KindSessionExpired)
}

// do performs one request. unauthorizedKind is the kind reported for a bare
// 401 without a more specific code.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any, unauthorizedKind domain.ErrorKind) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewAuthError(domain.KindNetwork, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewAuthError(domain.KindNetwork, fmt.Errorf("decode %s response: %w", path, err))
	}

	if resp.StatusCode >= http.StatusBadRequest || env.Error != nil {
		return classify(resp.StatusCode, env.Error, unauthorizedKind)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return domain.NewAuthError(domain.KindNetwork, fmt.Errorf("decode %s data: %w", path, err))
	}
	return nil
}

func classify(status int, apiErr *apiError, unauthorizedKind domain.ErrorKind) error {
	code, msg := "", http.StatusText(status)
	if apiErr != nil {
		code = apiErr.Code
		if apiErr.Message != "" {
			msg = apiErr.Message
		}
	}

	var kind domain.ErrorKind
	switch code {
	case CodeValidation, CodeInvalidInput:
		kind = domain.KindValidation
	case CodeInvalidCredentials:
		kind = domain.KindInvalidCredentials
	case CodeSessionExpired:
		kind = domain.KindSessionExpired
	case CodeOAuthDenied:
		kind = domain.KindOAuthDenied
	case CodeCallbackMismatch:
		kind = domain.KindCallbackMismatch
	case CodeLinkUnverified:
		kind = domain.KindLinkUnverified
	default:
		if status == http.StatusUnauthorized {
			kind = unauthorizedKind
		} else {
			kind = domain.KindNetwork
		}
	}

	ae := &domain.AuthError{Kind: kind, Message: msg, Err: fmt.Errorf("identity server returned status %d", status)}
	if apiErr != nil && len(apiErr.Details) > 0 {
		ae.Field = apiErr.Details[0].Field
	}
	return ae
}
