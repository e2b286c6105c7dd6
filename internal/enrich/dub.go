package enrich

import (
	"context"
	"fmt"
	"strings"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/segment"
	"transcript-studio/internal/tts"
)

// DubRequest selects the language and voice of a dub.
type DubRequest struct {
	Language   string
	Gender     string
	PerSegment bool
}

// DubSegment is one narrated segment of a per-segment dub.
type DubSegment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Path  string  `json:"path"`
}

// DubResult describes the audio written for a dub.
type DubResult struct {
	Language string             `json:"language"`
	Gender   domain.VoiceGender `json:"gender"`
	Voice    string             `json:"voice"`
	Path     string             `json:"path,omitempty"`
	Segments []DubSegment       `json:"segments,omitempty"`
}

// Dub narrates the transcript into audio at a deterministic per-language and
// per-voice location, overwriting any earlier dub. Text is translated first
// when the requested language differs from the transcript language.
func (d *Dispatcher) Dub(ctx context.Context, projectID string, req DubRequest) (out DubResult, err error) {
	defer func() { d.telemetry.Enrichment(OpDub, err) }()

	if d.synthesizer == nil {
		return DubResult{}, ErrDubbingDisabled
	}
	lang, err := domain.NormalizeLanguage(req.Language)
	if err != nil {
		return DubResult{}, err
	}
	gender := tts.ParseGender(req.Gender)

	_, transcript, err := d.completed(ctx, projectID)
	if err != nil {
		return DubResult{}, err
	}

	segments := transcript.Segments
	if transcript.Language != "" && transcript.Language != lang {
		segments = d.translateSegments(ctx, projectID, segments, transcript.Language, lang)
	}

	out = DubResult{Language: lang, Gender: gender, Voice: tts.Voice(lang, gender)}
	if req.PerSegment {
		out.Segments, err = d.dubSegments(ctx, projectID, lang, gender, segments)
		return out, err
	}

	text := segment.FullText(segments)
	if text == "" {
		return DubResult{}, fmt.Errorf("%w: transcript has no text to narrate", domain.ErrInvalidInput)
	}
	out.Path = d.layout.DubPath(projectID, lang, gender)
	if err := d.synthesizer.Synthesize(ctx, domain.SpeechRequest{
		Text:       text,
		Language:   lang,
		Gender:     gender,
		OutputPath: out.Path,
	}); err != nil {
		return DubResult{}, err
	}
	d.log.Info("dub written", "project_id", projectID, "language", lang, "gender", gender)
	return out, nil
}

// dubSegments narrates each non-empty segment into its own file. Segments that
// fail are skipped unless none succeed.
func (d *Dispatcher) dubSegments(ctx context.Context, projectID, lang string, gender domain.VoiceGender, segments []domain.Segment) ([]DubSegment, error) {
	var (
		out     []DubSegment
		lastErr error
	)
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		path := d.layout.DubSegmentPath(projectID, lang, gender, i)
		if err := d.synthesizer.Synthesize(ctx, domain.SpeechRequest{
			Text:       text,
			Language:   lang,
			Gender:     gender,
			OutputPath: path,
		}); err != nil {
			d.log.Warn("segment dub failed", "project_id", projectID, "segment", i, "error", err)
			lastErr = err
			continue
		}
		out = append(out, DubSegment{Index: i, Start: seg.Start, End: seg.End, Path: path})
	}

	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: transcript has no text to narrate", domain.ErrInvalidInput)
	}
	return out, nil
}

// DubFile returns the path of a previously generated full dub.
func (d *Dispatcher) DubFile(ctx context.Context, projectID, language, gender string) (string, error) {
	lang, err := domain.NormalizeLanguage(language)
	if err != nil {
		return "", err
	}
	if _, err := d.store.Get(ctx, projectID); err != nil {
		return "", err
	}

	path := d.layout.DubPath(projectID, lang, tts.ParseGender(gender))
	if _, err := d.stat(path); err != nil {
		return "", fmt.Errorf("%w: no %s dub for project %s", domain.ErrNotFound, lang, projectID)
	}
	return path, nil
}
