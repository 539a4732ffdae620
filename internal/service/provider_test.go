package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sumire/arena/internal/domain"
)

// newOAuthServer serves a token endpoint that accepts code "good" and the
// given user info documents keyed by path.
func newOAuthServer(t *testing.T, docs map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`))
	})
	for path, doc := range docs {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer provider-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(doc)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func providerConfig(srv *httptest.Server, userInfoPath string) ProviderConfig {
	return ProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: srv.URL + userInfoPath,
	}
}

func TestGoogleProvider_Exchange(t *testing.T) {
	srv := newOAuthServer(t, map[string]any{
		"/userinfo": map[string]string{"id": "g-1", "email": "ada@example.com", "name": "Ada", "picture": "https://img/ada.png"},
	})
	p := NewGoogleProvider(providerConfig(srv, "/userinfo"))
	assert.Equal(t, domain.AuthProviderGoogle, p.Name())

	identity, err := p.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, &ProviderIdentity{
		ProviderID:  "g-1",
		Email:       "ada@example.com",
		DisplayName: "Ada",
		AvatarURL:   "https://img/ada.png",
	}, identity)

	_, err = p.Exchange(context.Background(), "bad")
	assert.Error(t, err)
}

func TestGitHubProvider_ExchangeFallsBackToPrimaryEmail(t *testing.T) {
	srv := newOAuthServer(t, map[string]any{
		"/user": map[string]any{"id": 77, "login": "octo", "avatar_url": "https://img/octo.png"},
		"/user/emails": []map[string]any{
			{"email": "other@example.com", "primary": false},
			{"email": "octo@example.com", "primary": true},
		},
	})
	p := NewGitHubProvider(providerConfig(srv, "/user"))

	identity, err := p.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "77", identity.ProviderID)
	assert.Equal(t, "octo@example.com", identity.Email)
	assert.Equal(t, "octo", identity.DisplayName)
}

func TestProvider_AuthCodeURL(t *testing.T) {
	srv := newOAuthServer(t, nil)
	p := NewGitHubProvider(providerConfig(srv, "/user"))

	u, err := url.Parse(p.AuthCodeURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
	assert.Equal(t, "user:email", u.Query().Get("scope"))
}
