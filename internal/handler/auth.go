package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/service"
)

const (
	stateCookie = "oauth_state"

	// Callback error codes forwarded to the frontend.
	callbackErrDenied   = "access_denied"
	callbackErrState    = "state_mismatch"
	callbackErrExchange = "exchange_failed"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth        *service.AuthService
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. frontendURL is where OAuth
// callbacks are forwarded to with a one-time exchange code.
func NewAuthHandler(auth *service.AuthService, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, frontendURL: frontendURL, logger: logger}
}

// Routes registers the auth endpoints on g.
func (h *AuthHandler) Routes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/register", h.Register)
	g.GET("/oauth/:provider", h.OAuthRedirect)
	g.GET("/oauth/:provider/callback", h.OAuthCallback)
	g.POST("/oauth/:provider/exchange", h.OAuthExchange)

	protected := g.Group("", JWTAuth(h.auth))
	protected.GET("/me", h.Me)
	protected.POST("/onboarding/link", h.LinkAccount)
	protected.POST("/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login signs in a local account.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, res)
}

type registerRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=64"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

// Register creates a local account and signs it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Register(c.Request().Context(), service.RegisterInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
	})
	if errors.Is(err, domain.ErrConflict) {
		return &domain.ValidationError{Field: "email", Message: "is already registered"}
	}
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, res)
}

// OAuthRedirect redirects the user to the provider's consent page.
func (h *AuthHandler) OAuthRedirect(c echo.Context) error {
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	state := uuid.NewString()
	consent, err := h.auth.AuthURL(provider, state)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
	return c.Redirect(http.StatusTemporaryRedirect, consent)
}

// OAuthCallback handles the provider's redirect back to us. It never
// renders an error itself: the outcome is forwarded to the frontend.
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	state := c.QueryParam("state")
	c.SetCookie(&http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if e := c.QueryParam("error"); e != "" {
		h.logger.Info("oauth consent not granted", "provider", provider, "error", e)
		if e != callbackErrDenied {
			e = callbackErrExchange
		}
		return h.forward(c, provider, state, "", e)
	}

	cookie, err := c.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != state {
		h.logger.Warn("oauth state mismatch", "provider", provider)
		return h.forward(c, provider, state, "", callbackErrState)
	}

	code := c.QueryParam("code")
	if code == "" {
		return h.forward(c, provider, state, "", callbackErrExchange)
	}

	exchangeCode, err := h.auth.HandleCallback(c.Request().Context(), provider, code)
	if err != nil {
		h.logger.Error("oauth callback failed", "provider", provider, "error", err)
		return h.forward(c, provider, state, "", callbackErrExchange)
	}
	return h.forward(c, provider, state, exchangeCode, "")
}

func (h *AuthHandler) forward(c echo.Context, provider domain.AuthProvider, state, code, errCode string) error {
	target, err := url.Parse(h.frontendURL)
	if err != nil {
		return fmt.Errorf("parse frontend url: %w", err)
	}

	q := target.Query()
	q.Set("provider", string(provider))
	if state != "" {
		q.Set("state", state)
	}
	if code != "" {
		q.Set("code", code)
	}
	if errCode != "" {
		q.Set("error", errCode)
	}
	target.RawQuery = q.Encode()

	return c.Redirect(http.StatusFound, target.String())
}

type exchangeRequest struct {
	Code string `json:"code" validate:"required"`
}

// OAuthExchange trades a one-time callback code for a token.
func (h *AuthHandler) OAuthExchange(c echo.Context) error {
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	var req exchangeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Exchange(c.Request().Context(), provider, req.Code)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, res)
}

// Me returns the currently authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	user, err := h.auth.GetUser(c.Request().Context(), claims.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrSessionExpired
	}
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, user)
}

type linkRequest struct {
	ExternalUsername string `json:"external_username" validate:"required,max=64"`
}

// LinkAccount submits the external account for the signed-in user.
func (h *AuthHandler) LinkAccount(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req linkRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.auth.LinkAccount(c.Request().Context(), claims.UserID, req.ExternalUsername)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrSessionExpired
	}
	if errors.Is(err, domain.ErrConflict) {
		return &domain.ValidationError{Field: "external_username", Message: "is already linked to another user"}
	}
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, user)
}

// Logout revokes the presented token.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	if err := h.auth.Logout(c.Request().Context(), claims); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func providerParam(c echo.Context) (domain.AuthProvider, error) {
	provider, ok := domain.ParseAuthProvider(c.Param("provider"))
	if !ok {
		return "", fmt.Errorf("%w: unknown provider %q", domain.ErrNotFound, c.Param("provider"))
	}
	return provider, nil
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	trimStrings(req)
	return c.Validate(req)
}

// trimStrings trims the request's string fields, leaving passwords as sent.
func trimStrings(req any) {
	switch r := req.(type) {
	case *loginRequest:
		r.Email = strings.TrimSpace(r.Email)
	case *registerRequest:
		r.Email = strings.TrimSpace(r.Email)
		r.DisplayName = strings.TrimSpace(r.DisplayName)
	case *exchangeRequest:
		r.Code = strings.TrimSpace(r.Code)
	case *linkRequest:
		r.ExternalUsername = strings.TrimSpace(r.ExternalUsername)
	}
}
