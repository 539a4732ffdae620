package handler

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/service"
)

const (
	contextKeyClaims = "token_claims"
)

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			logger.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return err
		}
	}
}

// JWTAuth validates the Bearer token and injects its claims into echo context.
// An expired or revoked token is reported as session_expired.
func JWTAuth(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return domain.ErrUnauthorized
			}

			claims, err := auth.ValidateToken(c.Request().Context(), parts[1])
			if err != nil {
				if errors.Is(err, domain.ErrSessionExpired) {
					return domain.ErrSessionExpired
				}
				if errors.Is(err, domain.ErrUnauthorized) {
					return domain.ErrUnauthorized
				}
				return err
			}

			c.Set(contextKeyClaims, claims)
			return next(c)
		}
	}
}

// GetClaims extracts the validated token claims from echo context.
func GetClaims(c echo.Context) (*service.TokenClaims, bool) {
	claims, ok := c.Get(contextKeyClaims).(*service.TokenClaims)
	return claims, ok
}
