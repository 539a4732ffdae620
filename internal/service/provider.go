package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/sumire/arena/internal/domain"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	githubUserURL     = "https://api.github.com/user"
)

// ProviderIdentity is what an OAuth provider tells us about a user. It
// carries identity facts only.
type ProviderIdentity struct {
	ProviderID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// OAuthProvider is one configured consent provider.
type OAuthProvider interface {
	Name() domain.AuthProvider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ProviderIdentity, error)
}

// ProviderConfig configures a provider. Endpoint and UserInfoURL default to
// the provider's public ones.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     *oauth2.Endpoint
	UserInfoURL  string
}

type oauthProvider struct {
	name        domain.AuthProvider
	config      *oauth2.Config
	userInfoURL string
	fetch       func(ctx context.Context, hc *http.Client, userInfoURL string) (*ProviderIdentity, error)
}

// NewGoogleProvider configures Google sign-in.
func NewGoogleProvider(cfg ProviderConfig) OAuthProvider {
	return newProvider(domain.AuthProviderGoogle, cfg, googleOAuth.Endpoint, googleUserInfoURL,
		[]string{"openid", "profile", "email"}, fetchGoogleIdentity)
}

// NewGitHubProvider configures GitHub sign-in.
func NewGitHubProvider(cfg ProviderConfig) OAuthProvider {
	return newProvider(domain.AuthProviderGitHub, cfg, github.Endpoint, githubUserURL,
		[]string{"user:email"}, fetchGitHubIdentity)
}

func newProvider(
	name domain.AuthProvider,
	cfg ProviderConfig,
	endpoint oauth2.Endpoint,
	userInfoURL string,
	scopes []string,
	fetch func(context.Context, *http.Client, string) (*ProviderIdentity, error),
) *oauthProvider {
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	if cfg.UserInfoURL != "" {
		userInfoURL = cfg.UserInfoURL
	}
	return &oauthProvider{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
			RedirectURL:  cfg.RedirectURL,
		},
		userInfoURL: userInfoURL,
		fetch:       fetch,
	}
}

func (p *oauthProvider) Name() domain.AuthProvider { return p.name }

func (p *oauthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *oauthProvider) Exchange(ctx context.Context, code string) (*ProviderIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.name, err)
	}

	identity, err := p.fetch(ctx, p.config.Client(ctx, token), p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s user info: %w", p.name, err)
	}
	return identity, nil
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func fetchGoogleIdentity(ctx context.Context, hc *http.Client, userInfoURL string) (*ProviderIdentity, error) {
	var info googleUserInfo
	if err := getJSON(ctx, hc, userInfoURL, &info); err != nil {
		return nil, err
	}
	return &ProviderIdentity{
		ProviderID:  info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		AvatarURL:   info.Picture,
	}, nil
}

type githubUserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
}

func fetchGitHubIdentity(ctx context.Context, hc *http.Client, userURL string) (*ProviderIdentity, error) {
	var info githubUserInfo
	if err := getJSON(ctx, hc, userURL, &info); err != nil {
		return nil, err
	}

	if info.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, hc, userURL+"/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary {
				info.Email = e.Email
				break
			}
		}
		if info.Email == "" && len(emails) > 0 {
			info.Email = emails[0].Email
		}
		if info.Email == "" {
			return nil, fmt.Errorf("no email found for github user")
		}
	}

	return &ProviderIdentity{
		ProviderID:  strconv.FormatInt(info.ID, 10),
		Email:       info.Email,
		DisplayName: info.Login,
		AvatarURL:   info.AvatarURL,
	}, nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
