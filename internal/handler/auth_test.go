package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/repository"
	"github.com/sumire/arena/internal/service"
)

const testFrontendURL = "http://app.local/callback"

type fakeProvider struct{}

func (fakeProvider) Name() domain.AuthProvider { return domain.AuthProviderGitHub }

func (fakeProvider) AuthCodeURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (fakeProvider) Exchange(_ context.Context, code string) (*service.ProviderIdentity, error) {
	if code != "provider-code" {
		return nil, errors.New("bad_verification_code")
	}
	return &service.ProviderIdentity{ProviderID: "77", Email: "octo@example.com", DisplayName: "octo"}, nil
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, username string) (service.Verification, error) {
	return service.Verification{Verified: username == "tourist"}, nil
}

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewAuthService(
		repository.NewMemoryUserRepository(),
		service.NewRedisTokenStore(rdb),
		fakeVerifier{},
		[]service.OAuthProvider{fakeProvider{}},
		service.AuthConfig{
			JWTSecret:      "handler-test-secret",
			PasswordParams: service.PasswordParams{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		},
		logger,
	)

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewAppValidator()
	NewAuthHandler(svc, testFrontendURL, logger).Routes(e.Group("/auth"))
	return e
}

type testResponse struct {
	Code   int
	Header http.Header
	Data   json.RawMessage
	Error  *APIError
}

func doRequest(t *testing.T, e *echo.Echo, method, path, token string, body any) testResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	res := testResponse{Code: rec.Code, Header: rec.Header()}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var env struct {
			Data  json.RawMessage `json:"data"`
			Error *APIError       `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		res.Data, res.Error = env.Data, env.Error
	}
	return res
}

func register(t *testing.T, e *echo.Echo) domain.AuthResult {
	t.Helper()
	res := doRequest(t, e, http.MethodPost, "/auth/register", "", map[string]string{
		"display_name": "Ada", "email": "ada@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	var out domain.AuthResult
	require.NoError(t, json.Unmarshal(res.Data, &out))
	return out
}

func TestAuthHandler_RegisterLoginMe(t *testing.T) {
	e := newTestEcho(t)
	reg := register(t, e)
	assert.NotEmpty(t, reg.Token)

	res := doRequest(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"email": " ada@example.com ", "password": "password123",
	})
	require.Equal(t, http.StatusOK, res.Code)

	res = doRequest(t, e, http.MethodGet, "/auth/me", reg.Token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var me domain.User
	require.NoError(t, json.Unmarshal(res.Data, &me))
	assert.Equal(t, reg.User.ID, me.ID)
	assert.Nil(t, me.LinkedAccount)
}

func TestAuthHandler_ErrorCodes(t *testing.T) {
	e := newTestEcho(t)
	register(t, e)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
		field  string
	}{
		{"wrong password", http.MethodPost, "/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope"}, http.StatusUnauthorized, "invalid_credentials", ""},
		{"missing email", http.MethodPost, "/auth/login", "", map[string]string{"password": "x"}, http.StatusBadRequest, "validation_error", "email"},
		{"short password", http.MethodPost, "/auth/register", "", map[string]string{"display_name": "B", "email": "b@example.com", "password": "short"}, http.StatusBadRequest, "validation_error", "password"},
		{"taken email", http.MethodPost, "/auth/register", "", map[string]string{"display_name": "B", "email": "ada@example.com", "password": "password123"}, http.StatusBadRequest, "validation_error", "email"},
		{"me without token", http.MethodGet, "/auth/me", "", nil, http.StatusUnauthorized, "unauthorized", ""},
		{"me with garbage token", http.MethodGet, "/auth/me", "garbage", nil, http.StatusUnauthorized, "unauthorized", ""},
		{"unknown provider", http.MethodGet, "/auth/oauth/myspace", "", nil, http.StatusNotFound, "not_found", ""},
		{"unknown exchange code", http.MethodPost, "/auth/oauth/github/exchange", "", map[string]string{"code": "nope"}, http.StatusConflict, "oauth_callback_mismatch", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := doRequest(t, e, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, res.Code)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			if tt.field != "" {
				require.Len(t, res.Error.Details, 1)
				assert.Equal(t, tt.field, res.Error.Details[0].Field)
			}
		})
	}
}

func TestAuthHandler_LogoutExpiresToken(t *testing.T) {
	e := newTestEcho(t)
	reg := register(t, e)

	res := doRequest(t, e, http.MethodPost, "/auth/logout", reg.Token, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = doRequest(t, e, http.MethodGet, "/auth/me", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "session_expired", res.Error.Code)
}

func TestAuthHandler_LinkAccount(t *testing.T) {
	e := newTestEcho(t)
	reg := register(t, e)

	res := doRequest(t, e, http.MethodPost, "/auth/onboarding/link", reg.Token, map[string]string{"external_username": "ghost"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.NotNil(t, res.Error)
	assert.Equal(t, "onboarding_link_unverified", res.Error.Code)

	res = doRequest(t, e, http.MethodPost, "/auth/onboarding/link", reg.Token, map[string]string{"external_username": "  "})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = doRequest(t, e, http.MethodPost, "/auth/onboarding/link", reg.Token, map[string]string{"external_username": "tourist"})
	require.Equal(t, http.StatusOK, res.Code)
	var user domain.User
	require.NoError(t, json.Unmarshal(res.Data, &user))
	assert.True(t, user.Verified())
}

// oauthRoundTrip drives consent redirect and provider callback and returns
// the frontend URL the browser lands on.
func oauthRoundTrip(t *testing.T, e *echo.Echo, providerCode string, tamperState bool) *url.URL {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/auth/oauth/github", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	consent, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	callbackState := state
	if tamperState {
		callbackState = "forged"
	}
	q := url.Values{"state": {callbackState}}
	if providerCode != "" {
		q.Set("code", providerCode)
	} else {
		q.Set("error", "access_denied")
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/oauth/github/callback?"+q.Encode(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	landing, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "app.local", landing.Host)
	assert.Equal(t, "github", landing.Query().Get("provider"))
	return landing
}

func TestAuthHandler_OAuthCallbackAndExchange(t *testing.T) {
	e := newTestEcho(t)

	landing := oauthRoundTrip(t, e, "provider-code", false)
	code := landing.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Empty(t, landing.Query().Get("error"))

	res := doRequest(t, e, http.MethodPost, "/auth/oauth/github/exchange", "", map[string]string{"code": code})
	require.Equal(t, http.StatusOK, res.Code)
	var out domain.AuthResult
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Equal(t, "octo@example.com", out.User.Email)
	assert.False(t, out.User.Verified())

	res = doRequest(t, e, http.MethodPost, "/auth/oauth/github/exchange", "", map[string]string{"code": code})
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestAuthHandler_OAuthCallbackFailures(t *testing.T) {
	e := newTestEcho(t)

	denied := oauthRoundTrip(t, e, "", false)
	assert.Equal(t, "access_denied", denied.Query().Get("error"))
	assert.Empty(t, denied.Query().Get("code"))

	forged := oauthRoundTrip(t, e, "provider-code", true)
	assert.Equal(t, "state_mismatch", forged.Query().Get("error"))

	failed := oauthRoundTrip(t, e, "wrong-code", false)
	assert.Equal(t, "exchange_failed", failed.Query().Get("error"))
}
