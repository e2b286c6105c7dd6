// Package store persists projects and transcripts.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/segment"
)

// Store is the artifact store used by the orchestrator and the dispatcher.
// Mutators passed to Update and UpdateTranscript run against a private copy;
// when they return an error nothing is written.
type Store interface {
	Create(ctx context.Context, p domain.Project) (domain.Project, error)
	Get(ctx context.Context, id string) (domain.Project, error)
	List(ctx context.Context) ([]domain.Project, error)
	Update(ctx context.Context, id string, fn func(*domain.Project) error) (domain.Project, error)
	Delete(ctx context.Context, id string) (domain.Project, error)

	SaveTranscript(ctx context.Context, t domain.Transcript) (domain.Transcript, error)
	LatestTranscript(ctx context.Context, projectID string) (domain.Transcript, error)
	UpdateTranscript(ctx context.Context, projectID string, fn func(*domain.Transcript) error) (domain.Transcript, error)

	Close() error
}

// NewID returns a time ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func validateProject(p domain.Project) error {
	if p.ID == "" {
		return fmt.Errorf("%w: project id is empty", domain.ErrInvalidInput)
	}
	if p.SourceRef == "" {
		return fmt.Errorf("%w: project source is empty", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseProjectStatus(string(p.Status)); err != nil {
		return err
	}
	return nil
}

func validateTranscript(t domain.Transcript) error {
	if t.ProjectID == "" {
		return fmt.Errorf("%w: transcript project id is empty", domain.ErrInvalidInput)
	}
	for i, seg := range t.Segments {
		if seg.Start < 0 || seg.End < seg.Start {
			return fmt.Errorf("%w: segment %d has invalid span %.3f-%.3f", domain.ErrInvalidInput, i, seg.Start, seg.End)
		}
	}
	if !segment.Ordered(t.Segments) {
		return fmt.Errorf("%w: segments are not ordered by start", domain.ErrInvalidInput)
	}
	return nil
}
