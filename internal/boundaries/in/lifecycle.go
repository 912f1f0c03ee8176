// Package in defines input ports (interfaces) for use cases.
// These interfaces define the contract between driving adapters (HTTP, CLI)
// and the business logic (use cases).
package in

import (
	"context"

	"github.com/alcove-sh/alcove/internal/domain"
)

// AddonInstaller manages the lifecycle of a user's addons. Every method
// checks that the addressed addon belongs to ownerID and reports a mismatch
// as domain.ErrAddonNotFound so that foreign ids stay indistinguishable from
// absent ones.
type AddonInstaller interface {
	// Install provisions a container for the image and returns the final
	// record. A failed provisioning still returns the record, with status
	// Failed and LastError set; only input validation returns no record.
	Install(ctx context.Context, ownerID, image string) (*domain.AddonRecord, error)

	// Stop tears down a running addon's container and returns the final
	// record. Non-running addons are rejected with domain.ErrAddonNotStoppable.
	Stop(ctx context.Context, ownerID, id string) (*domain.AddonRecord, error)

	// Get returns a single addon record.
	Get(ctx context.Context, ownerID, id string) (*domain.AddonRecord, error)

	// ListForOwner returns all addon records belonging to ownerID,
	// newest first.
	ListForOwner(ctx context.Context, ownerID string) ([]*domain.AddonRecord, error)
}
