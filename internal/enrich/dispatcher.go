// Package enrich runs post-processing operations against completed transcripts.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"transcript-studio/internal/diarize"
	"transcript-studio/internal/domain"
	"transcript-studio/internal/export"
	"transcript-studio/internal/generate"
	"transcript-studio/internal/layout"
	"transcript-studio/internal/segment"
	"transcript-studio/internal/store"
	"transcript-studio/internal/telemetry"
	"transcript-studio/internal/translate"
	"transcript-studio/internal/tts"
)

// Operation names used for telemetry and logs.
const (
	OpExport     = "export"
	OpTranslate  = "translate"
	OpDiarize    = "diarize"
	OpDub        = "dub"
	OpSummarize  = "summarize"
	OpKeyPoints  = "key_points"
	OpSocial     = "social"
	OpBlog       = "blog"
	OpSearch     = "search"
	OpHighlights = "highlights"
)

// ErrDubbingDisabled is returned when no speech synthesizer is configured.
var ErrDubbingDisabled = fmt.Errorf("%w: dubbing is not configured", domain.ErrInvalidState)

// Deps are the collaborators a Dispatcher calls into. Nil collaborators degrade
// to no speaker labels, echoed translations and disabled generation.
type Deps struct {
	Store       store.Store
	Layout      layout.Layout
	Diarizer    diarize.Diarizer
	Translator  translate.Translator
	Synthesizer tts.Synthesizer
	Generator   generate.Generator
	Telemetry   *telemetry.Recorder
	Logger      *slog.Logger
}

// Dispatcher executes enrichment operations synchronously for the caller.
// It never changes project status.
type Dispatcher struct {
	store       store.Store
	layout      layout.Layout
	diarizer    diarize.Diarizer
	translator  translate.Translator
	synthesizer tts.Synthesizer
	generator   generate.Generator
	telemetry   *telemetry.Recorder
	log         *slog.Logger

	stat func(string) (os.FileInfo, error)
}

// New builds a Dispatcher.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Store == nil {
		return nil, errors.New("enrich: store is required")
	}
	if deps.Diarizer == nil {
		deps.Diarizer = diarize.None{}
	}
	if deps.Translator == nil {
		deps.Translator = translate.Echo{}
	}
	if deps.Generator == nil {
		deps.Generator = generate.Disabled{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Dispatcher{
		store:       deps.Store,
		layout:      deps.Layout,
		diarizer:    deps.Diarizer,
		translator:  deps.Translator,
		synthesizer: deps.Synthesizer,
		generator:   deps.Generator,
		telemetry:   deps.Telemetry,
		log:         deps.Logger.With("component", "enrich"),
		stat:        os.Stat,
	}, nil
}

// Transcript returns the latest transcript of a project.
func (d *Dispatcher) Transcript(ctx context.Context, projectID string) (domain.Transcript, error) {
	if _, err := d.store.Get(ctx, projectID); err != nil {
		return domain.Transcript{}, err
	}
	return d.store.LatestTranscript(ctx, projectID)
}

// completed loads a COMPLETED project and its latest transcript. A missing
// project or transcript is NotFound; any other status is InvalidState.
func (d *Dispatcher) completed(ctx context.Context, projectID string) (domain.Project, domain.Transcript, error) {
	project, err := d.store.Get(ctx, projectID)
	if err != nil {
		return domain.Project{}, domain.Transcript{}, err
	}
	transcript, err := d.store.LatestTranscript(ctx, projectID)
	if err != nil {
		return domain.Project{}, domain.Transcript{}, err
	}
	if project.Status != domain.ProjectStatusCompleted {
		return domain.Project{}, domain.Transcript{}, fmt.Errorf("%w: project %s is %s", domain.ErrInvalidState, projectID, project.Status)
	}
	return project, transcript, nil
}

// Rendered is an exported transcript document.
type Rendered struct {
	Format   export.Format
	Content  string
	FileName string
}

// Export renders the transcript and keeps a copy under the project exports directory.
func (d *Dispatcher) Export(ctx context.Context, projectID string, format export.Format) (out Rendered, err error) {
	defer func() { d.telemetry.Enrichment(OpExport, err) }()

	format, err = export.ParseFormat(string(format))
	if err != nil {
		return Rendered{}, err
	}
	_, transcript, err := d.completed(ctx, projectID)
	if err != nil {
		return Rendered{}, err
	}

	content, err := export.Render(format, transcript.Segments)
	if err != nil {
		return Rendered{}, err
	}

	if d.layout.Root != "" {
		path := d.layout.ExportPath(projectID, string(format))
		if werr := layout.WriteFileAtomic(path, []byte(content), 0o644); werr != nil {
			d.log.Warn("write export file", "project_id", projectID, "path", path, "error", werr)
		}
	}
	return Rendered{Format: format, Content: content, FileName: "transcript." + string(format)}, nil
}

// Translate returns a copy of the transcript with every segment translated to
// target. The stored transcript is left as is.
func (d *Dispatcher) Translate(ctx context.Context, projectID, target string) (out domain.Transcript, err error) {
	defer func() { d.telemetry.Enrichment(OpTranslate, err) }()

	lang, err := domain.NormalizeLanguage(target)
	if err != nil {
		return domain.Transcript{}, err
	}
	_, transcript, err := d.completed(ctx, projectID)
	if err != nil {
		return domain.Transcript{}, err
	}

	out = transcript.Clone()
	out.Segments = d.translateSegments(ctx, projectID, transcript.Segments, transcript.Language, lang)
	out.Language = lang
	return out, nil
}

func (d *Dispatcher) translateSegments(ctx context.Context, projectID string, segments []domain.Segment, source, target string) []domain.Segment {
	failures := 0
	out := segment.MapText(segments, func(text string) (string, error) {
		if strings.TrimSpace(text) == "" {
			return text, nil
		}
		translated, err := d.translator.Translate(ctx, text, source, target)
		if err != nil {
			failures++
		}
		return translated, err
	})
	if failures > 0 {
		d.log.Warn("segments kept untranslated", "project_id", projectID, "target", target, "count", failures)
	}
	return out
}

// Diarize labels each segment with its best overlapping speaker and stores the
// result in place. Re-running overwrites earlier labels.
func (d *Dispatcher) Diarize(ctx context.Context, projectID string) (out domain.Transcript, err error) {
	defer func() { d.telemetry.Enrichment(OpDiarize, err) }()

	project, _, err := d.completed(ctx, projectID)
	if err != nil {
		return domain.Transcript{}, err
	}
	if project.MediaPath == "" {
		return domain.Transcript{}, fmt.Errorf("%w: project %s has no media", domain.ErrInvalidState, projectID)
	}
	if _, err := d.stat(project.MediaPath); err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: media of project %s is gone: %v", domain.ErrInvalidState, projectID, err)
	}

	spans, err := d.diarizer.Diarize(ctx, project.MediaPath)
	if err != nil {
		return domain.Transcript{}, err
	}

	return d.store.UpdateTranscript(ctx, projectID, func(t *domain.Transcript) error {
		t.Segments = segment.MergeSpeakers(t.Segments, spans)
		return nil
	})
}

// Voices lists the voices available for dubbing.
func (d *Dispatcher) Voices() []tts.VoiceOption {
	return tts.Voices()
}
