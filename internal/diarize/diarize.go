// Package diarize produces speaker-labelled spans for a media file.
package diarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"transcript-studio/internal/command"
	"transcript-studio/internal/domain"
)

const stageDiarize = "diarize"

// Mode selects the diarization backend.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeCommand Mode = "command"
	ModeSilence Mode = "silence"
)

// Diarizer returns speaker spans for a media file. An empty result means
// diarization is unavailable and callers treat it as a no-op.
type Diarizer interface {
	Diarize(ctx context.Context, mediaPath string) ([]domain.SpeakerSpan, error)
}

// Options configures backend construction.
type Options struct {
	Mode       Mode
	Command    string
	Args       []string
	FFmpegPath string
	Timeout    time.Duration
}

// New resolves the configured backend. A command mode without a command
// degrades to None with a warning.
func New(opts Options, runner command.Runner, logger *slog.Logger) (Diarizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "diarize")

	switch Mode(strings.ToLower(string(opts.Mode))) {
	case ModeNone, "":
		return None{}, nil
	case ModeCommand:
		if strings.TrimSpace(opts.Command) == "" {
			logger.Warn("diarization command not configured; speaker labels disabled")
			return None{}, nil
		}
		return NewCommand(opts.Command, opts.Args, opts.Timeout, runner), nil
	case ModeSilence:
		return NewSilence(opts.FFmpegPath, opts.Timeout, runner), nil
	default:
		return nil, fmt.Errorf("%w: unknown diarization mode %q", domain.ErrInvalidInput, opts.Mode)
	}
}

// None reports diarization as unavailable.
type None struct{}

// Diarize returns no spans.
func (None) Diarize(context.Context, string) ([]domain.SpeakerSpan, error) {
	return nil, nil
}

// speakerLabel turns raw backend labels such as SPEAKER_01 into "Speaker 1".
func speakerLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "Speaker ") {
		return raw
	}
	runes := []rune(raw)
	return "Speaker " + string(runes[len(runes)-1])
}

func speakerName(index int) string {
	return "Speaker " + string(rune('A'+index%26))
}
