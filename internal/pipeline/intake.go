package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/labstack/gommon/bytes"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/layout"
	"transcript-studio/internal/store"
)

// UploadExtensions lists the media file extensions accepted for upload.
var UploadExtensions = []string{
	".mp3", ".wav", ".m4a", ".flac", ".aac", ".ogg", ".opus",
	".webm", ".mp4", ".mov", ".mkv", ".avi",
}

// SupportedUpload reports whether name carries an accepted media extension.
func SupportedUpload(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range UploadExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Intake validates sourceRef, creates a CREATED project and submits it.
func (o *Orchestrator) Intake(ctx context.Context, sourceRef string) (domain.Project, error) {
	source, err := domain.ParseSource(sourceRef)
	if err != nil {
		return domain.Project{}, err
	}

	project, err := o.store.Create(ctx, domain.Project{
		ID:        store.NewID(),
		SourceRef: source.Ref,
		Status:    domain.ProjectStatusCreated,
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	o.log.Info("project created", "project_id", project.ID, "source", source.Ref)

	o.submitNew(project.ID)
	return project, nil
}

// IntakeUpload stores an uploaded media file under a new project and submits it.
// The project record is removed again if the file cannot be stored.
func (o *Orchestrator) IntakeUpload(ctx context.Context, fileName string, r io.Reader) (domain.Project, error) {
	name := layout.SanitizeFileName(fileName)
	if !SupportedUpload(name) {
		return domain.Project{}, fmt.Errorf("%w: unsupported media file %q", domain.ErrInvalidInput, fileName)
	}

	project, err := o.store.Create(ctx, domain.Project{
		ID:        store.NewID(),
		SourceRef: domain.LocalSourceRef(name),
		Status:    domain.ProjectStatusCreated,
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}

	log := o.log.With("project_id", project.ID)
	written, err := layout.CopyFileAtomic(o.layout.UploadPath(project.ID, name), r, 0o644)
	if err != nil {
		if _, derr := o.store.Delete(ctx, project.ID); derr != nil {
			log.Error("discard project after failed upload", "error", derr)
		}
		if rerr := o.layout.RemoveProject(project.ID); rerr != nil {
			log.Warn("remove upload directory", "error", rerr)
		}
		return domain.Project{}, fmt.Errorf("store upload %s: %w", name, err)
	}
	log.Info("upload stored", "file", name, "size", bytes.Format(written))

	o.submitNew(project.ID)
	return project, nil
}

// submitNew starts a freshly created project. A new id cannot already be running.
func (o *Orchestrator) submitNew(projectID string) {
	if err := o.Submit(projectID); err != nil {
		o.log.Error("submit new project", "project_id", projectID, "error", err)
	}
}
