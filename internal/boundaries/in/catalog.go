package in

import (
	"context"

	"github.com/alcove-sh/alcove/internal/domain"
)

// CatalogReader lists the locally declared installable addons.
type CatalogReader interface {
	// Available returns the catalog snapshot loaded at startup.
	Available(ctx context.Context) ([]domain.AvailableAddon, error)

	// Find looks up the descriptor for an image reference. The second
	// return reports whether a descriptor matched.
	Find(image string) (domain.AvailableAddon, bool)
}
