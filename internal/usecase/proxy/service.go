// Package proxy forwards authenticated requests to running addon containers.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alcove-sh/alcove/internal/boundaries/in"
	"github.com/alcove-sh/alcove/internal/boundaries/out"
	"github.com/alcove-sh/alcove/internal/domain"
)

// proxyTransport is a shared HTTP transport with proper timeouts.
// This prevents resource exhaustion from slow addons or network issues.
var proxyTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 30 * time.Second,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
}

// allowedMethods is the verb set addon endpoints may be invoked with.
var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
	http.MethodPatch:  {},
}

// Config holds configuration needed by the proxy service.
type Config struct {
	CallTimeout  time.Duration
	MaxBodyBytes int64
}

// Service forwards single request/response invocations to addon endpoints.
// It implements in.AddonCaller.
type Service struct {
	registry out.AddonRegistry
	client   *http.Client
	config   Config
	log      *log.Logger
}

// NewService creates a new proxy service.
func NewService(registry out.AddonRegistry, config Config, logger *log.Logger) *Service {
	return &Service{
		registry: registry,
		client:   &http.Client{Transport: proxyTransport},
		config:   config,
		log:      logger.With("component", "proxy"),
	}
}

// Call forwards one request to the addon's internal endpoint and returns the
// upstream response verbatim. The addon's own status code never turns into a
// gateway error; only unknown addons, stopped addons, and transport failures
// do. Exactly one attempt is made per invocation.
func (s *Service) Call(ctx context.Context, req in.CallRequest) (*domain.CallResult, error) {
	if _, ok := allowedMethods[req.Method]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMethod, req.Method)
	}

	record, err := s.ownedRecord(ctx, req.OwnerID, req.AddonID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.AddonStatusRunning {
		return nil, fmt.Errorf("%w: addon is %s", domain.ErrAddonNotRunning, record.Status)
	}

	target := buildTargetURL(record.InternalEndpoint, req.Endpoint, req.Query)

	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, target, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("build addon request: %w: %w", domain.ErrRuntime, err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.log.Warn("Addon unreachable", "addon_id", req.AddonID, "target", target, "error", err)
		return nil, fmt.Errorf("call addon: %w: %w", domain.ErrAddonUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read addon response: %w: %w", domain.ErrAddonUnreachable, err)
	}
	if int64(len(body)) > s.config.MaxBodyBytes {
		return nil, fmt.Errorf("read addon response: %w: body exceeds %d bytes", domain.ErrRuntime, s.config.MaxBodyBytes)
	}

	s.log.Debug("Addon call completed",
		"addon_id", req.AddonID,
		"method", req.Method,
		"endpoint", req.Endpoint,
		"status", resp.StatusCode,
	)

	return &domain.CallResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// buildTargetURL joins the addon's internal endpoint with the requested path
// and query string. The path is normalized to a single leading slash.
func buildTargetURL(endpoint, path string, query url.Values) string {
	path = "/" + strings.TrimLeft(path, "/")
	target := "http://" + endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// ownedRecord loads a record and hides foreign ones behind ErrAddonNotFound,
// so callers cannot probe for the existence of other users' addons.
func (s *Service) ownedRecord(ctx context.Context, ownerID, id string) (*domain.AddonRecord, error) {
	record, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID {
		return nil, domain.ErrAddonNotFound
	}
	return record, nil
}
