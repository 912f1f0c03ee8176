package out

import (
	"context"

	"github.com/alcove-sh/alcove/internal/domain"
)

// AddonRegistry is the durable store of addon records. It is the single
// source of truth for addon state; it stores what it is told and never
// derives status on its own.
type AddonRegistry interface {
	// Create persists a new record.
	Create(ctx context.Context, record *domain.AddonRecord) error

	// Get returns the record with the given id, or domain.ErrAddonNotFound.
	Get(ctx context.Context, id string) (*domain.AddonRecord, error)

	// Update applies the non-nil fields of patch to one record atomically
	// and bumps UpdatedAt. Unknown ids yield domain.ErrAddonNotFound.
	// Concurrent updates to the same id are serialized by the caller.
	Update(ctx context.Context, id string, patch domain.AddonPatch) error

	// ListForOwner returns every record belonging to ownerID, newest first.
	ListForOwner(ctx context.Context, ownerID string) ([]*domain.AddonRecord, error)
}
