// Package logs exposes addon container logs to their owners.
package logs

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/alcove-sh/alcove/internal/boundaries/out"
	"github.com/alcove-sh/alcove/internal/domain"
)

const (
	defaultTail = 100
	maxTail     = 1000
)

// Service reads recent log lines from addon containers. It implements
// in.AddonLogReader.
type Service struct {
	registry out.AddonRegistry
	runtime  out.ContainerRuntime
	log      *log.Logger
}

// NewService creates a new log service.
func NewService(registry out.AddonRegistry, runtime out.ContainerRuntime, logger *log.Logger) *Service {
	return &Service{
		registry: registry,
		runtime:  runtime,
		log:      logger.With("component", "logs"),
	}
}

// Logs returns up to tail recent lines, stdout and stderr interleaved in the
// order the engine recorded them. A record that no longer references a
// container has nothing to read from, so ErrContainerGone comes back instead.
func (s *Service) Logs(ctx context.Context, ownerID, id string, tail int) ([]string, error) {
	record, err := s.ownedRecord(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if record.ContainerRef == "" {
		return nil, fmt.Errorf("%w: addon %s has no container", domain.ErrContainerGone, id)
	}

	tail = clampTail(tail)
	lines, err := s.runtime.FetchLogs(ctx, record.ContainerRef, tail)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Fetched addon logs", "addon_id", id, "tail", tail, "lines", len(lines))
	return lines, nil
}

// clampTail bounds the requested line count to [1, 1000], defaulting to 100
// for non-positive values.
func clampTail(tail int) int {
	switch {
	case tail <= 0:
		return defaultTail
	case tail > maxTail:
		return maxTail
	default:
		return tail
	}
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
