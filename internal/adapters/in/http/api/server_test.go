package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcove-sh/alcove/internal/boundaries/in"
	"github.com/alcove-sh/alcove/internal/domain"
)

type fakeInstaller struct {
	record   *domain.AddonRecord
	records  []*domain.AddonRecord
	err      error
	gotOwner string
	gotImage string
	gotID    string
}

func (f *fakeInstaller) Install(ctx context.Context, ownerID, image string) (*domain.AddonRecord, error) {
	f.gotOwner, f.gotImage = ownerID, image
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func (f *fakeInstaller) Stop(ctx context.Context, ownerID, id string) (*domain.AddonRecord, error) {
	f.gotOwner, f.gotID = ownerID, id
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func (f *fakeInstaller) Get(ctx context.Context, ownerID, id string) (*domain.AddonRecord, error) {
	f.gotOwner, f.gotID = ownerID, id
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func (f *fakeInstaller) ListForOwner(ctx context.Context, ownerID string) ([]*domain.AddonRecord, error) {
	f.gotOwner = ownerID
	return f.records, f.err
}

type fakeCaller struct {
	result *domain.CallResult
	err    error
	got    in.CallRequest
}

func (f *fakeCaller) Call(ctx context.Context, req in.CallRequest) (*domain.CallResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeLogReader struct {
	lines   []string
	err     error
	gotID   string
	gotTail int
}

func (f *fakeLogReader) Logs(ctx context.Context, ownerID, id string, tail int) ([]string, error) {
	f.gotID, f.gotTail = id, tail
	return f.lines, f.err
}

type fakeCatalog struct {
	entries []domain.AvailableAddon
	err     error
}

func (f *fakeCatalog) Available(ctx context.Context) ([]domain.AvailableAddon, error) {
	return f.entries, f.err
}

func (f *fakeCatalog) Find(image string) (domain.AvailableAddon, bool) {
	for _, entry := range f.entries {
		if entry.Image == image {
			return entry, true
		}
	}
	return domain.AvailableAddon{}, false
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newTestServer(svcs Services, opts ...func(*Config)) *Server {
	cfg := Config{
		Port:          0,
		AddonsEnabled: true,
		Tokens:        map[string]string{"alice": "token-alice", "bob": "token-bob"},
		MaxBodyBytes:  1 << 20,
		Metrics:       prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewServer(cfg, svcs, log.New(io.Discard))
}

func defaultServices() Services {
	return Services{
		Installer: &fakeInstaller{},
		Caller:    &fakeCaller{},
		Logs:      &fakeLogReader{},
		Catalog:   &fakeCatalog{},
	}
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func authed(req *http.Request) *http.Request {
	req.Header.Set(echoHeaderAuth, "Bearer token-alice")
	return req
}

const echoHeaderAuth = "Authorization"

func TestHealthzNeedsNoAuth(t *testing.T) {
	s := newTestServer(defaultServices())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsExposed(t *testing.T) {
	s := newTestServer(defaultServices())

	// Drive one request through the middleware so counters exist.
	do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alcove")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(defaultServices())

	rec := do(s, authed(httptest.NewRequest(http.MethodGet, "/api/v1/nonsense", nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAddons(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	installer := &fakeInstaller{records: []*domain.AddonRecord{
		{
			ID:               "a1",
			OwnerID:          "alice",
			DisplayName:      "notes",
			SourceImage:      "ghcr.io/acme/notes:1",
			Status:           domain.AddonStatusRunning,
			ContainerRef:     "ref-1",
			InternalEndpoint: "127.0.0.1:49200",
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}}
	svcs := defaultServices()
	svcs.Installer = installer
	s := newTestServer(svcs)

	rec := do(s, authed(httptest.NewRequest(http.MethodGet, "/api/v1/addons", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "alice", installer.gotOwner)

	var got []addonResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "running", got[0].Status)
	assert.Equal(t, "127.0.0.1:49200", got[0].InternalEndpoint)
}

func TestListAddonsEmpty(t *testing.T) {
	s := newTestServer(defaultServices())

	rec := do(s, authed(httptest.NewRequest(http.MethodGet, "/api/v1/addons", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestAvailableAddons(t *testing.T) {
	svcs := defaultServices()
	svcs.Catalog = &fakeCatalog{entries: []domain.AvailableAddon{
		{Name: "notes", Image: "ghcr.io/acme/notes:1", Version: "1.0.0", InternalPort: 8080},
	}}
	s := newTestServer(svcs)

	rec := do(s, authed(httptest.NewRequest(http.MethodGet, "/api/v1/addons/available", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	var got []availableAddonResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "notes", got[0].Name)
	assert.Equal(t, 8080, got[0].InternalPort)
}

func TestProxiedResponseBypassesEnvelope(t *testing.T) {
	caller := &fakeCaller{result: &domain.CallResult{
		StatusCode:  http.StatusTeapot,
		ContentType: "text/plain",
		Body:        []byte("short and stout"),
	}}
	svcs := defaultServices()
	svcs.Caller = caller
	s := newTestServer(svcs)

	rec := do(s, authed(httptest.NewRequest(http.MethodGet, "/api/v1/addons/a1/call/brew", nil)))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "success")
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}
