package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/alcove-sh/alcove/internal/boundaries/in"
	"github.com/alcove-sh/alcove/internal/domain"
)

// handler serves the addon API routes.
type handler struct {
	installer in.AddonInstaller
	caller    in.AddonCaller
	logs      in.AddonLogReader
	catalog   in.CatalogReader
	maxBody   int64
	log       *log.Logger
}

type installRequest struct {
	Image string `json:"image"`
}

type addonResponse struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"display_name"`
	SourceImage      string    `json:"source_image"`
	Status           string    `json:"status"`
	ContainerRef     string    `json:"container_ref,omitempty"`
	InternalEndpoint string    `json:"internal_endpoint,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type availableAddonResponse struct {
	Name         string `json:"name"`
	Image        string `json:"image"`
	Description  string `json:"description,omitempty"`
	Version      string `json:"version"`
	InternalPort int    `json:"internal_port,omitempty"`
}

type logsResponse struct {
	Lines []string `json:"lines"`
}

func toAddonResponse(record *domain.AddonRecord) addonResponse {
	return addonResponse{
		ID:               record.ID,
		DisplayName:      record.DisplayName,
		SourceImage:      record.SourceImage,
		Status:           string(record.Status),
		ContainerRef:     record.ContainerRef,
		InternalEndpoint: record.InternalEndpoint,
		LastError:        record.LastError,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}

// available serves the installable addon catalog.
func (h *handler) available(c echo.Context) error {
	entries, err := h.catalog.Available(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}

	out := make([]availableAddonResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, availableAddonResponse{
			Name:         entry.Name,
			Image:        entry.Image,
			Description:  entry.Description,
			Version:      entry.Version,
			InternalPort: entry.InternalPort,
		})
	}
	return respond(c, http.StatusOK, out)
}

// list serves the caller's addons.
func (h *handler) list(c echo.Context) error {
	records, err := h.installer.ListForOwner(c.Request().Context(), currentUser(c))
	if err != nil {
		return fail(c, err)
	}

	out := make([]addonResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toAddonResponse(record))
	}
	return respond(c, http.StatusOK, out)
}

// install launches a new addon from an image reference.
func (h *handler) install(c echo.Context) error {
	var req installRequest
	if err := c.Bind(&req); err != nil {
		return failMessage(c, http.StatusBadRequest, "invalid payload: "+err.Error())
	}

	record, err := h.installer.Install(c.Request().Context(), currentUser(c), req.Image)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, toAddonResponse(record))
}

// get serves a single addon record.
func (h *handler) get(c echo.Context) error {
	record, err := h.installer.Get(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, toAddonResponse(record))
}

// stop shuts an addon down and returns the final record.
func (h *handler) stop(c echo.Context) error {
	record, err := h.installer.Stop(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, toAddonResponse(record))
}

// addonLogs serves recent container log lines.
func (h *handler) addonLogs(c echo.Context) error {
	lines, err := h.logs.Logs(c.Request().Context(), currentUser(c), c.Param("id"), parseTail(c.QueryParam("tail")))
	if err != nil {
		return fail(c, err)
	}
	if lines == nil {
		lines = []string{}
	}
	return respond(c, http.StatusOK, logsResponse{Lines: lines})
}

// call proxies one request to the addon and writes the response verbatim,
// bypassing the envelope.
func (h *handler) call(c echo.Context) error {
	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, h.maxBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return failMessage(c, http.StatusRequestEntityTooLarge, "request body too large")
		}
		return failMessage(c, http.StatusBadRequest, "read request body: "+err.Error())
	}

	result, err := h.caller.Call(r.Context(), in.CallRequest{
		OwnerID:     currentUser(c),
		AddonID:     c.Param("id"),
		Method:      r.Method,
		Endpoint:    c.Param("*"),
		Query:       c.QueryParams(),
		ContentType: r.Header.Get(echo.HeaderContentType),
		Payload:     payload,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Blob(result.StatusCode, result.ContentType, result.Body)
}

// parseTail interprets the tail query param. Absent or non-numeric values
// fall back to 100; range clamping happens in the log service.
func parseTail(raw string) int {
	if raw == "" {
		return 100
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 100
	}
	return n
}
