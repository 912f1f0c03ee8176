// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (Docker, sqlite, etc.).
package out

import (
	"context"

	"github.com/alcove-sh/alcove/internal/domain"
)

// ContainerRuntime defines the contract for container engine operations.
// This interface abstracts the underlying container runtime (Docker, Podman, etc.).
type ContainerRuntime interface {
	// CreateAndStart pulls the image when absent, creates the container,
	// starts it, and waits until the engine reports it running. It returns
	// the engine container reference and the loopback endpoint (host:port)
	// the addon is reachable on. On failure the partially created container
	// is removed and only the error is returned.
	CreateAndStart(ctx context.Context, spec domain.LaunchSpec) (ref, endpoint string, err error)

	// Stop gracefully stops the container, killing it after the configured
	// grace period.
	Stop(ctx context.Context, ref string) error

	// Remove deletes the stopped container from the engine.
	Remove(ctx context.Context, ref string) error

	// FetchLogs returns up to tail recent log lines, stdout and stderr
	// interleaved in engine order. A missing container yields
	// domain.ErrContainerGone.
	FetchLogs(ctx context.Context, ref string, tail int) ([]string, error)

	// InspectState reports the engine state of the container.
	InspectState(ctx context.Context, ref string) (domain.ContainerState, error)

	// Ping verifies connectivity with the engine.
	Ping(ctx context.Context) error

	// Close releases the engine client.
	Close() error
}
