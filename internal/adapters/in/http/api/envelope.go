package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/alcove-sh/alcove/internal/domain"
)

// response is the envelope for all subsystem JSON responses. Proxied addon
// bodies bypass it and travel verbatim.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// respond sends a success envelope.
func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, response{Success: true, Data: data})
}

// fail sends an error envelope with the status derived from the error.
func fail(c echo.Context, err error) error {
	return c.JSON(statusOf(err), response{Success: false, Error: err.Error()})
}

// failMessage sends an error envelope with an explicit status.
func failMessage(c echo.Context, status int, message string) error {
	return c.JSON(status, response{Success: false, Error: message})
}

// statusOf maps domain sentinels onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidImage),
		errors.Is(err, domain.ErrUnsupportedMethod):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAddonNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrContainerGone):
		return http.StatusGone
	case errors.Is(err, domain.ErrAddonNotStoppable),
		errors.Is(err, domain.ErrAddonNotRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAddonsDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrAddonUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
