package domain

import "errors"

// Domain errors represent business-level errors that can occur in the system.
// These errors are used across layers to communicate specific failure conditions.
var (
	// Addon errors
	ErrAddonNotFound     = errors.New("addon not found")
	ErrAddonNotRunning   = errors.New("addon is not running")
	ErrAddonNotStoppable = errors.New("addon is not in a stoppable state")
	ErrAddonUnreachable  = errors.New("addon is unreachable")
	ErrAddonsDisabled    = errors.New("addon subsystem is disabled")

	// Input errors
	ErrInvalidImage      = errors.New("invalid image reference")
	ErrUnsupportedMethod = errors.New("unsupported proxy method")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Container errors
	ErrContainerGone = errors.New("container no longer exists")

	// Engine errors
	ErrRuntime = errors.New("container runtime failure")
	ErrTimeout = errors.New("operation timed out")
)
