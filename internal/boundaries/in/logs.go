package in

import "context"

// AddonLogReader exposes container log snapshots for an owner's addons.
type AddonLogReader interface {
	// Logs returns up to tail recent log lines, stdout and stderr
	// interleaved in engine order. Records whose container is gone are
	// rejected with domain.ErrContainerGone.
	Logs(ctx context.Context, ownerID, id string, tail int) ([]string, error)
}
