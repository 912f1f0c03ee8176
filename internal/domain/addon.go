// Package domain contains pure business types without external dependencies.
// These types are used throughout the application and have no tags or framework dependencies.
package domain

import "time"

// AddonStatus represents the lifecycle state of an installed addon.
type AddonStatus string

const (
	AddonStatusInstalling AddonStatus = "installing"
	AddonStatusRunning    AddonStatus = "running"
	AddonStatusStopping   AddonStatus = "stopping"
	AddonStatusStopped    AddonStatus = "stopped"
	AddonStatusFailed     AddonStatus = "failed"
)

// transitions enumerates the legal status changes. Stopped and Failed are
// terminal and therefore absent as keys.
var transitions = map[AddonStatus][]AddonStatus{
	AddonStatusInstalling: {AddonStatusRunning, AddonStatusFailed},
	AddonStatusRunning:    {AddonStatusStopping},
	AddonStatusStopping:   {AddonStatusStopped, AddonStatusFailed},
}

// Valid reports whether s is a known addon status.
func (s AddonStatus) Valid() bool {
	switch s {
	case AddonStatusInstalling, AddonStatusRunning, AddonStatusStopping,
		AddonStatusStopped, AddonStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s AddonStatus) Terminal() bool {
	return s == AddonStatusStopped || s == AddonStatusFailed
}

// CanTransition reports whether the status change from -> to is legal.
func CanTransition(from, to AddonStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AddonRecord is the durable registry entry for one installed addon.
// OwnerID never changes after creation. InternalEndpoint is non-empty
// exactly while the addon is running, and ContainerRef is empty exactly
// while no container exists for the record.
type AddonRecord struct {
	ID               string
	OwnerID          string
	DisplayName      string
	SourceImage      string
	Status           AddonStatus
	ContainerRef     string
	InternalEndpoint string
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AddonPatch is a partial update for an AddonRecord. Nil fields are left
// untouched by the registry.
type AddonPatch struct {
	Status           *AddonStatus
	ContainerRef     *string
	InternalEndpoint *string
	LastError        *string
}

// LaunchSpec describes the container the runtime should create for an addon.
// InternalPort 0 lets the runtime detect the port from the image.
type LaunchSpec struct {
	Image        string
	Name         string
	Labels       map[string]string
	InternalPort int
}

// ContainerState represents the engine-reported state of a container.
type ContainerState string

const (
	ContainerStateRunning ContainerState = "running"
	ContainerStateCreated ContainerState = "created"
	ContainerStateExited  ContainerState = "exited"
	ContainerStatePaused  ContainerState = "paused"
	ContainerStateDead    ContainerState = "dead"
	ContainerStateUnknown ContainerState = "unknown"
)

// CallResult carries an addon's HTTP response back through the gateway
// without interpretation.
type CallResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
