package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the identity server configuration loaded from environment variables.
type Config struct {
	Port        int    `env:"PORT"         envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"    envDefault:"redis://localhost:6379/0"`
	JWTSecret   string `env:"JWT_SECRET"`

	TokenTTL        time.Duration `env:"TOKEN_TTL"         envDefault:"24h"`
	ExchangeCodeTTL time.Duration `env:"EXCHANGE_CODE_TTL" envDefault:"2m"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	// APIBaseURL is the public address of the API, used to build provider
	// redirect URIs.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080/api/v1"`
	// FrontendURL receives OAuth callbacks forwarded by the server.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173/callback"`
	VerifierURL string `env:"VERIFIER_URL" envDefault:"https://codeforces.com/api"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables and validates required fields.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return fmt.Errorf("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}
	for name, raw := range map[string]string{
		"API_BASE_URL": c.APIBaseURL,
		"FRONTEND_URL": c.FrontendURL,
		"VERIFIER_URL": c.VerifierURL,
	} {
		if err := requireAbsURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// RedirectURL is the provider callback address registered with provider.
func (c Config) RedirectURL(provider string) string {
	return c.APIBaseURL + "/auth/oauth/" + provider + "/callback"
}

// ClientConfig holds the terminal client configuration.
type ClientConfig struct {
	ServerURL string `env:"ARENA_SERVER_URL" envDefault:"http://localhost:8080/api/v1"`

	// StoragePath is the credential file. Defaults to arena/session.json
	// under the user config directory.
	StoragePath string `env:"ARENA_STORAGE_PATH"`
	// RedisURL, when set, keeps credentials in Redis instead of a file.
	RedisURL       string        `env:"ARENA_REDIS_URL"`
	RedisNamespace string        `env:"ARENA_REDIS_NAMESPACE" envDefault:"default"`
	RedisTTL       time.Duration `env:"ARENA_REDIS_TTL"       envDefault:"720h"`

	// CallbackURL is the address the server forwards OAuth callbacks to.
	CallbackURL string `env:"ARENA_CALLBACK_URL" envDefault:"http://localhost:5173/callback"`

	LogoutTimeout time.Duration `env:"ARENA_LOGOUT_TIMEOUT" envDefault:"5s"`
	Debug         bool          `env:"ARENA_DEBUG"`
}

// LoadClient reads the terminal client configuration.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.StoragePath == "" && cfg.RedisURL == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return ClientConfig{}, fmt.Errorf("resolve config dir: %w", err)
		}
		cfg.StoragePath = filepath.Join(dir, "arena", "session.json")
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}

	return cfg, nil
}

func (c ClientConfig) validate() error {
	if err := requireAbsURL(c.ServerURL); err != nil {
		return fmt.Errorf("ARENA_SERVER_URL: %w", err)
	}
	if err := requireAbsURL(c.CallbackURL); err != nil {
		return fmt.Errorf("ARENA_CALLBACK_URL: %w", err)
	}
	if c.LogoutTimeout <= 0 {
		return fmt.Errorf("ARENA_LOGOUT_TIMEOUT must be positive")
	}
	return nil
}

func requireAbsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !u.IsAbs() || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}
