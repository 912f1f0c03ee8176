// Package lifecycle implements the addon lifecycle use case. It is the only
// component that moves addon records between statuses; everything else reads.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/alcove-sh/alcove/internal/boundaries/in"
	"github.com/alcove-sh/alcove/internal/boundaries/out"
	"github.com/alcove-sh/alcove/internal/domain"
)

// Config holds the deadlines the lifecycle service applies to engine work.
type Config struct {
	InstallTimeout time.Duration
	StopTimeout    time.Duration
}

// Service implements the AddonInstaller interface.
type Service struct {
	registry out.AddonRegistry
	runtime  out.ContainerRuntime
	catalog  in.CatalogReader
	config   Config
	locks    *keyedMutex
	log      *log.Logger
}

// NewService creates a new lifecycle service.
func NewService(
	registry out.AddonRegistry,
	runtime out.ContainerRuntime,
	catalog in.CatalogReader,
	config Config,
	logger *log.Logger,
) *Service {
	return &Service{
		registry: registry,
		runtime:  runtime,
		catalog:  catalog,
		config:   config,
		locks:    newKeyedMutex(),
		log:      logger.With("component", "lifecycle"),
	}
}

// Install provisions a container for the image and returns the final record.
// A provisioning failure is not an error here: the record comes back with
// status Failed and LastError set, retained for the owner to inspect. Only
// input validation refuses to create a record at all.
func (s *Service) Install(ctx context.Context, ownerID, image string) (*domain.AddonRecord, error) {
	image = strings.TrimSpace(image)
	if image == "" || strings.ContainsAny(image, " \t\r\n") {
		return nil, fmt.Errorf("%w: must be a single non-empty reference", domain.ErrInvalidImage)
	}

	displayName := domain.ImageBaseName(image)
	internalPort := 0
	if descriptor, ok := s.catalog.Find(image); ok {
		displayName = descriptor.Name
		internalPort = descriptor.InternalPort
	}

	now := time.Now().UTC()
	record := &domain.AddonRecord{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		DisplayName: displayName,
		SourceImage: image,
		Status:      domain.AddonStatusInstalling,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.registry.Create(ctx, record); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(record.ID)
	defer unlock()

	// Status writes must land even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)

	launchCtx, cancel := context.WithTimeout(ctx, s.config.InstallTimeout)
	defer cancel()

	spec := domain.LaunchSpec{
		Image: image,
		Name:  domain.ContainerNamePrefix + shortID(record.ID),
		Labels: map[string]string{
			domain.LabelManaged: "true",
			domain.LabelAddonID: record.ID,
			domain.LabelOwner:   ownerID,
		},
		InternalPort: internalPort,
	}

	ref, endpoint, err := s.runtime.CreateAndStart(launchCtx, spec)
	if err != nil {
		s.log.Warn("Addon install failed", "addon_id", record.ID, "image", image, "error", err)
		s.markFailed(persistCtx, record.ID, err)
		return s.registry.Get(persistCtx, record.ID)
	}

	running := domain.AddonStatusRunning
	clearErr := ""
	err = s.registry.Update(persistCtx, record.ID, domain.AddonPatch{
		Status:           &running,
		ContainerRef:     &ref,
		InternalEndpoint: &endpoint,
		LastError:        &clearErr,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Addon installed", "addon_id", record.ID, "owner", ownerID,
		"image", image, "endpoint", endpoint)
	return s.registry.Get(persistCtx, record.ID)
}

// Stop tears down a running addon's container. The per-addon lock makes the
// second of two racing stops observe Stopping or Stopped and get
// ErrAddonNotStoppable; the engine sees exactly one stop.
func (s *Service) Stop(ctx context.Context, ownerID, id string) (*domain.AddonRecord, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	record, err := s.ownedRecord(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.AddonStatusRunning {
		return nil, fmt.Errorf("%w: addon is %s", domain.ErrAddonNotStoppable, record.Status)
	}

	stopping := domain.AddonStatusStopping
	clearEndpoint := ""
	err = s.registry.Update(ctx, id, domain.AddonPatch{
		Status:           &stopping,
		InternalEndpoint: &clearEndpoint,
	})
	if err != nil {
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, s.config.StopTimeout)
	defer cancel()

	if err := s.runtime.Stop(stopCtx, record.ContainerRef); err != nil {
		s.log.Warn("Addon stop failed", "addon_id", id, "error", err)
		s.markFailed(persistCtx, id, err)
		return s.registry.Get(persistCtx, id)
	}
	if err := s.runtime.Remove(stopCtx, record.ContainerRef); err != nil {
		// The container ref stays on the record so the leftover container
		// can be found and removed by hand.
		s.log.Warn("Addon container removal failed", "addon_id", id, "error", err)
		s.markFailed(persistCtx, id, err)
		return s.registry.Get(persistCtx, id)
	}

	stopped := domain.AddonStatusStopped
	clearRef := ""
	clearErr := ""
	err = s.registry.Update(persistCtx, id, domain.AddonPatch{
		Status:       &stopped,
		ContainerRef: &clearRef,
		LastError:    &clearErr,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Addon stopped", "addon_id", id, "owner", ownerID)
	return s.registry.Get(persistCtx, id)
}

// Get returns one addon record, owner-checked.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.AddonRecord, error) {
	return s.ownedRecord(ctx, ownerID, id)
}

// ListForOwner returns the owner's addon records, newest first.
func (s *Service) ListForOwner(ctx context.Context, ownerID string) ([]*domain.AddonRecord, error) {
	return s.registry.ListForOwner(ctx, ownerID)
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

func (s *Service) markFailed(ctx context.Context, id string, cause error) {
	failed := domain.AddonStatusFailed
	message := cause.Error()
	err := s.registry.Update(ctx, id, domain.AddonPatch{
		Status:    &failed,
		LastError: &message,
	})
	if err != nil {
		s.log.Error("Failed to record addon failure", "addon_id", id, "error", err)
	}
}

// shortID trims a uuid to the fragment used in container names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
