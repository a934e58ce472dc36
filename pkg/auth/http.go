package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var errBadHeader = errors.New("bad authorization header, expected 'Bearer <token>'")

// HTTPMiddleware validates auth tokens and adds AuthInfo to context.
// Allows requests to proceed without auth; routes must explicitly require auth.
// A rejected token is remembered so WithAuth can report why.
func HTTPMiddleware(validator TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(c)
			}

			ctx := c.Request().Context()

			scheme, token, ok := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				c.SetRequest(c.Request().WithContext(withAuthError(ctx, errBadHeader)))
				return next(c)
			}

			info, err := validator.ValidateToken(ctx, token)
			if err != nil {
				log.Debug().Err(err).Msg("auth: invalid token")
				c.SetRequest(c.Request().WithContext(withAuthError(ctx, err)))
				return next(c)
			}

			c.SetRequest(c.Request().WithContext(WithAuthInfo(ctx, info)))
			return next(c)
		}
	}
}

// StatusForError maps an authentication failure to its HTTP status: a
// missing or expired token is 401, anything malformed or badly signed is 422.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusUnprocessableEntity
	}
}

// Handler wrappers

func WithAuth(h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := RequireAuth(c.Request().Context()); err != nil {
			status := StatusForError(err)
			message := err.Error()
			if errors.Is(err, ErrTokenInvalid) {
				message = ErrTokenInvalid.Error()
			}
			return c.JSON(status, map[string]string{
				"error":   http.StatusText(status),
				"message": message,
			})
		}
		return h(c)
	}
}

// Middleware factories

func RequireAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc { return WithAuth(next) }
}
