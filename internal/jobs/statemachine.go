package jobs

import (
	"errors"
	"fmt"

	"transcript-studio/internal/domain"
)

// ErrInvalidTransition is returned for an edge outside the project state machine.
var ErrInvalidTransition = errors.New("invalid transition")

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to domain.ProjectStatus) bool {
	return isValidTransition(from, to)
}

// Transition moves p to status to, or fails leaving p untouched.
func Transition(p *domain.Project, to domain.ProjectStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !isValidTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	return nil
}

// isValidTransition enforces the allowed project state machine edges.
// Local uploads skip acquisition and enter PROCESSING directly.
func isValidTransition(from, to domain.ProjectStatus) bool {
	switch from {
	case domain.ProjectStatusCreated:
		return to == domain.ProjectStatusDownloading || to == domain.ProjectStatusProcessing
	case domain.ProjectStatusDownloading:
		return to == domain.ProjectStatusProcessing || to == domain.ProjectStatusFailed
	case domain.ProjectStatusProcessing:
		return to == domain.ProjectStatusCompleted || to == domain.ProjectStatusFailed
	default:
		return false
	}
}
