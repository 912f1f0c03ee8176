package api

import (
	"crypto/subtle"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/alcove-sh/alcove/internal/domain"
)

// contextKeyUser is the echo context key holding the authenticated user name.
const contextKeyUser = "user"

// currentUser returns the user name the auth middleware stored on the context.
func currentUser(c echo.Context) string {
	user, _ := c.Get(contextKeyUser).(string)
	return user
}

// bearerAuth resolves the Authorization header against the configured named
// tokens and stores the matching user name on the context. Requests without
// a valid token never reach the handlers.
func bearerAuth(tokens map[string]string, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return fail(c, domain.ErrUnauthorized)
			}
			token := strings.TrimPrefix(header, "Bearer ")

			user, ok := resolveToken(tokens, token)
			if !ok {
				logger.Warn("Rejected request with unknown token",
					"remote_ip", c.RealIP(),
					"method", c.Request().Method,
					"path", c.Request().URL.Path,
				)
				return fail(c, domain.ErrUnauthorized)
			}

			c.Set(contextKeyUser, user)
			return next(c)
		}
	}
}

// resolveToken compares the presented token against every configured one in
// constant time and without early exit.
func resolveToken(tokens map[string]string, presented string) (string, bool) {
	var matched string
	for user, token := range tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(presented)) == 1 {
			matched = user
		}
	}
	return matched, matched != ""
}

// requireAddons rejects every addon route while the subsystem is disabled.
// It runs after auth so credentials stay mandatory even when disabled.
func requireAddons(enabled bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !enabled {
				return fail(c, domain.ErrAddonsDisabled)
			}
			return next(c)
		}
	}
}

// requestLogger logs one line per completed request.
func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"remote_ip", c.RealIP(),
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	})
}
