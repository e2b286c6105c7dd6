// Package pipeline drives projects from intake to a persisted transcript.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/jobs"
	"transcript-studio/internal/layout"
	"transcript-studio/internal/store"
	"transcript-studio/internal/telemetry"
)

// Stage names used in events and telemetry.
const (
	StageAcquire    = "acquire"
	StageProbe      = "probe"
	StageTranscribe = "transcribe"
	StagePersist    = "persist"
)

// Acquirer downloads the media of a remote source.
type Acquirer interface {
	Acquire(ctx context.Context, req domain.AcquireRequest) (domain.Media, error)
}

// Transcriber converts a media file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (domain.TranscriptionResult, error)
}

// Prober reads the duration of a local media file.
type Prober interface {
	Duration(ctx context.Context, mediaPath string) (float64, error)
}

// Deps are the collaborators an Orchestrator needs.
type Deps struct {
	Store       store.Store
	Layout      layout.Layout
	Acquirer    Acquirer
	Transcriber Transcriber
	Prober      Prober
	Events      *jobs.EventBus
	Telemetry   *telemetry.Recorder
	Logger      *slog.Logger
}

// Orchestrator runs at most one background execution per project.
type Orchestrator struct {
	store       store.Store
	layout      layout.Layout
	acquirer    Acquirer
	transcriber Transcriber
	prober      Prober
	manager     *jobs.Manager
	events      *jobs.EventBus
	telemetry   *telemetry.Recorder
	log         *slog.Logger

	wg sync.WaitGroup

	removeAll func(string) error
	remove    func(string) error
}

// New builds an Orchestrator. Store, Acquirer and Transcriber are required.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Acquirer == nil {
		return nil, errors.New("pipeline: acquirer is required")
	}
	if deps.Transcriber == nil {
		return nil, errors.New("pipeline: transcriber is required")
	}
	if deps.Events == nil {
		deps.Events = jobs.NewEventBus(0)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Orchestrator{
		store:       deps.Store,
		layout:      deps.Layout,
		acquirer:    deps.Acquirer,
		transcriber: deps.Transcriber,
		prober:      deps.Prober,
		manager:     jobs.NewManager(),
		events:      deps.Events,
		telemetry:   deps.Telemetry,
		log:         deps.Logger.With("component", "pipeline"),
		removeAll:   os.RemoveAll,
		remove:      os.Remove,
	}, nil
}

// Events exposes the event buffer fed by executions.
func (o *Orchestrator) Events() *jobs.EventBus {
	return o.events
}

// Running reports whether projectID has an execution in flight.
func (o *Orchestrator) Running(projectID string) bool {
	return o.manager.IsRunning(projectID)
}

// Active lists projects with an execution in flight.
func (o *Orchestrator) Active() []string {
	return o.manager.Active()
}

// Submit starts a background execution for projectID and returns immediately.
func (o *Orchestrator) Submit(projectID string) error {
	if err := o.manager.Start(projectID); err != nil {
		return fmt.Errorf("submit %s: %w", projectID, err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.manager.Finish(projectID)
		o.execute(context.Background(), projectID)
	}()
	return nil
}

// Wait blocks until every in-flight execution returns or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remove deletes the project with its transcripts, then reclaims its files.
func (o *Orchestrator) Remove(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := o.store.Delete(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}

	log := o.log.With("project_id", projectID)
	o.reclaim(projectID)
	if project.MediaPath != "" && (o.layout.Root == "" || !o.layout.Owns(projectID, project.MediaPath)) {
		if err := o.remove(project.MediaPath); err != nil && !os.IsNotExist(err) {
			log.Warn("remove media file", "path", project.MediaPath, "error", err)
		}
	}
	log.Info("project removed")
	return project, nil
}

// execute runs one project to COMPLETED or FAILED. Panics become failures.
func (o *Orchestrator) execute(ctx context.Context, projectID string) {
	log := o.log.With("project_id", projectID)
	run := o.telemetry.StartRun(projectID)

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			log.Error("execution panicked", "panic", r, "stack", string(debug.Stack()))
			o.fail(ctx, run, projectID, "panic", runErr)
		}
		if errors.Is(runErr, errAborted) {
			run.Discard()
			return
		}
		run.Finish(runErr)
	}()

	runErr = o.run(ctx, run, projectID)
}

// errAborted ends an execution without marking the project failed.
var errAborted = errors.New("execution aborted")

func (o *Orchestrator) run(ctx context.Context, run *telemetry.Run, projectID string) error {
	log := o.log.With("project_id", projectID)

	project, err := o.store.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info("project vanished before execution")
			return errAborted
		}
		log.Error("load project", "error", err)
		return err
	}

	source, err := domain.ParseSource(project.SourceRef)
	if err != nil {
		log.Error("stored source is invalid", "source", project.SourceRef, "error", err)
		return err
	}

	switch source.Kind {
	case domain.SourceLocal:
		project, err = o.prepareLocal(ctx, run, project, source)
	default:
		project, err = o.acquireRemote(ctx, run, project, source)
	}
	if err != nil {
		return err
	}

	return o.transcribe(ctx, run, project)
}

// acquireRemote takes a remote project through DOWNLOADING into PROCESSING.
func (o *Orchestrator) acquireRemote(ctx context.Context, run *telemetry.Run, project domain.Project, source domain.Source) (domain.Project, error) {
	id := project.ID
	project, err := o.commit(ctx, run, id, func(p *domain.Project) error {
		return jobs.Transition(p, domain.ProjectStatusDownloading)
	})
	if err != nil {
		return project, o.abort(id, err)
	}
	o.publishStatus(project.ID, domain.ProjectStatusDownloading, "Downloading media")

	started := time.Now()
	media, err := o.acquirer.Acquire(ctx, domain.AcquireRequest{
		ProjectID: project.ID,
		SourceRef: source.Ref,
		Dir:       o.layout.MediaDir(project.ID),
	})
	run.Stage(StageAcquire, time.Since(started))
	if err != nil {
		o.fail(ctx, run, id, StageAcquire, err)
		return project, err
	}

	project, err = o.commit(ctx, run, id, func(p *domain.Project) error {
		if err := jobs.Transition(p, domain.ProjectStatusProcessing); err != nil {
			return err
		}
		p.Title = media.Title
		p.Duration = media.Duration
		p.ThumbnailURL = media.ThumbnailURL
		p.MediaPath = media.Path
		return nil
	})
	if err != nil {
		return project, o.failOrAbort(ctx, run, id, StagePersist, err)
	}
	o.publishStatus(id, domain.ProjectStatusProcessing, "Media acquired")
	return project, nil
}

// prepareLocal moves an uploaded project straight into PROCESSING.
func (o *Orchestrator) prepareLocal(ctx context.Context, run *telemetry.Run, project domain.Project, source domain.Source) (domain.Project, error) {
	id := project.ID
	mediaPath := o.layout.UploadPath(id, source.FileName)
	title := strings.TrimSuffix(source.FileName, filepath.Ext(source.FileName))

	var duration float64
	if o.prober != nil {
		started := time.Now()
		d, err := o.prober.Duration(ctx, mediaPath)
		run.Stage(StageProbe, time.Since(started))
		if err != nil {
			o.log.Warn("probe duration", "project_id", id, "error", err)
		} else {
			duration = d
		}
	}

	project, err := o.commit(ctx, run, id, func(p *domain.Project) error {
		if err := jobs.Transition(p, domain.ProjectStatusProcessing); err != nil {
			return err
		}
		p.Title = title
		p.Duration = duration
		p.MediaPath = mediaPath
		return nil
	})
	if err != nil {
		return project, o.abort(id, err)
	}
	o.publishStatus(id, domain.ProjectStatusProcessing, "Processing uploaded media")
	return project, nil
}

// transcribe produces, stores and completes the transcript of a PROCESSING project.
func (o *Orchestrator) transcribe(ctx context.Context, run *telemetry.Run, project domain.Project) error {
	started := time.Now()
	result, err := o.transcriber.Transcribe(ctx, project.MediaPath)
	run.Stage(StageTranscribe, time.Since(started))
	if err != nil {
		o.fail(ctx, run, project.ID, StageTranscribe, err)
		return err
	}

	transcript := domain.Transcript{
		ID:                 store.NewID(),
		ProjectID:          project.ID,
		Language:           result.Language,
		LanguageConfidence: result.LanguageConfidence,
		Segments:           result.Segments,
	}
	saved, err := o.saveTranscript(ctx, run, transcript)
	if err != nil {
		return o.failOrAbort(ctx, run, project.ID, StagePersist, err)
	}

	if _, err := o.commit(ctx, run, project.ID, func(p *domain.Project) error {
		return jobs.Transition(p, domain.ProjectStatusCompleted)
	}); err != nil {
		return o.failOrAbort(ctx, run, project.ID, StagePersist, err)
	}

	o.publishStatus(project.ID, domain.ProjectStatusCompleted, "Transcript ready")
	o.events.Publish(jobs.Event{
		ProjectID:    project.ID,
		Type:         jobs.EventTypeResult,
		Status:       domain.ProjectStatusCompleted,
		Message:      fmt.Sprintf("%d segments (%s)", len(saved.Segments), saved.Language),
		TranscriptID: saved.ID,
	})
	return nil
}

// commit applies fn to the stored project, retrying once after a store failure.
func (o *Orchestrator) commit(ctx context.Context, run *telemetry.Run, projectID string, fn func(*domain.Project) error) (domain.Project, error) {
	project, err := o.store.Update(ctx, projectID, fn)
	if err == nil || !retryable(err) {
		return project, err
	}

	o.log.Warn("project write failed, retrying", "project_id", projectID, "error", err)
	run.PersistenceRetry()
	return o.store.Update(ctx, projectID, fn)
}

// saveTranscript stores t, retrying once unless the first attempt did land.
func (o *Orchestrator) saveTranscript(ctx context.Context, run *telemetry.Run, t domain.Transcript) (domain.Transcript, error) {
	started := time.Now()
	defer func() { run.Stage(StagePersist, time.Since(started)) }()

	saved, err := o.store.SaveTranscript(ctx, t)
	if err == nil || !retryable(err) {
		return saved, err
	}

	o.log.Warn("transcript write failed, retrying", "project_id", t.ProjectID, "error", err)
	run.PersistenceRetry()
	if latest, lerr := o.store.LatestTranscript(ctx, t.ProjectID); lerr == nil && latest.ID == t.ID {
		return latest, nil
	}
	return o.store.SaveTranscript(ctx, t)
}

// fail records a stage failure and moves the project to FAILED.
func (o *Orchestrator) fail(ctx context.Context, run *telemetry.Run, projectID, stage string, cause error) {
	log := o.log.With("project_id", projectID, "stage", stage)
	log.Error("stage failed", "error", cause)

	event := jobs.Event{
		ProjectID: projectID,
		Type:      jobs.EventTypeError,
		Stage:     stage,
		Message:   cause.Error(),
	}
	var stageErr *domain.StageError
	if errors.As(cause, &stageErr) && stageErr.CommandLog.Command != "" {
		event.Command = stageErr.CommandLog.Command
		event.ExitCode = stageErr.CommandLog.ExitCode
		event.Stderr = stageErr.CommandLog.Stderr
	}
	o.events.Publish(event)

	_, err := o.commit(ctx, run, projectID, func(p *domain.Project) error {
		return jobs.Transition(p, domain.ProjectStatusFailed)
	})
	switch {
	case err == nil:
		o.publishStatus(projectID, domain.ProjectStatusFailed, "Project failed at "+stage)
	case errors.Is(err, domain.ErrNotFound):
		log.Info("project removed during execution")
		o.reclaim(projectID)
	default:
		run.Anomaly()
		log.Error("could not record failure, project keeps its last committed status", "error", err)
	}
}

// failOrAbort fails the project unless it vanished meanwhile.
func (o *Orchestrator) failOrAbort(ctx context.Context, run *telemetry.Run, projectID, stage string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return o.abort(projectID, err)
	}
	o.fail(ctx, run, projectID, stage, err)
	return err
}

// reclaim removes files a collaborator wrote after the project was deleted.
func (o *Orchestrator) reclaim(projectID string) {
	if o.layout.Root == "" {
		return
	}
	if err := o.removeAll(o.layout.ProjectDir(projectID)); err != nil {
		o.log.Warn("remove project directory", "project_id", projectID, "error", err)
	}
}

// abort ends an execution whose first transition was refused or whose project vanished.
func (o *Orchestrator) abort(projectID string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		o.log.Info("project removed during execution", "project_id", projectID)
		o.reclaim(projectID)
	case errors.Is(err, jobs.ErrInvalidTransition):
		o.log.Info("execution skipped", "project_id", projectID, "reason", err)
	default:
		o.log.Error("execution aborted", "project_id", projectID, "error", err)
		return err
	}
	return errAborted
}

func (o *Orchestrator) publishStatus(projectID string, status domain.ProjectStatus, message string) {
	o.events.Publish(jobs.Event{
		ProjectID: projectID,
		Type:      jobs.EventTypeStatus,
		Status:    status,
		Message:   message,
	})
}

// retryable reports whether a failed write may succeed on a second attempt.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, jobs.ErrInvalidTransition) &&
		!errors.Is(err, domain.ErrInvalidInput)
}
