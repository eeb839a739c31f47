package api

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every public operation reports failures through these
// values (possibly wrapped), so callers branch with errors.Is.
var (
	// ErrNotFound is the parent of every "unknown id" error.
	ErrNotFound = errors.New("not found")

	ErrSessionNotFound  = fmt.Errorf("session %w", ErrNotFound)
	ErrWorkflowNotFound = fmt.Errorf("workflow %w", ErrNotFound)
	ErrTaskNotFound     = fmt.Errorf("task %w", ErrNotFound)
	ErrResourceNotFound = fmt.Errorf("resource %w", ErrNotFound)
	ErrProjectNotFound  = fmt.Errorf("project %w", ErrNotFound)

	// ErrValidation is the parent of every malformed graph / record error.
	// Validation errors are raised at registration time, never at execution time.
	ErrValidation = errors.New("validation failed")

	ErrInvalidWorkflow   = fmt.Errorf("%w: invalid workflow", ErrValidation)
	ErrUnknownDependency = fmt.Errorf("%w: unknown dependency", ErrValidation)
	ErrCyclicDependency  = fmt.Errorf("%w: cyclic dependency", ErrValidation)
	ErrDuplicateTask     = fmt.Errorf("%w: duplicate task id", ErrValidation)
	ErrInvalidResource   = fmt.Errorf("%w: invalid resource", ErrValidation)
	ErrInvalidAmount     = fmt.Errorf("%w: allocation amount must be positive", ErrValidation)
	ErrProjectExists     = fmt.Errorf("%w: project already exists", ErrValidation)

	// ErrCapacityExceeded is returned when an allocation (or a capacity
	// change) would push a resource's outstanding total above its capacity.
	// It is recoverable: retry with a smaller amount or after a release.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrResourceInUse is returned when removing a resource that still has
	// outstanding allocations.
	ErrResourceInUse = errors.New("resource has outstanding allocations")

	// ErrInvalidTransition is returned when a task status change is not
	// allowed (terminal task states are sticky).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrWorkflowFailed is returned by workflow execution when at least one
	// step's dispatch reported failure.
	ErrWorkflowFailed = errors.New("workflow failed")

	// ErrShutdown is returned by every engine operation once Shutdown has
	// been requested.
	ErrShutdown = errors.New("engine is shutting down")
)
