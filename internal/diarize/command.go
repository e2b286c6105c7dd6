package diarize

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"transcript-studio/internal/command"
	"transcript-studio/internal/domain"
)

// Command runs an external diarization program that prints a JSON array of
// {"start","end","speaker"} objects for the media path given as last argument.
type Command struct {
	path    string
	args    []string
	timeout time.Duration
	runner  command.Runner
}

// NewCommand constructs a command backed diarizer.
func NewCommand(path string, args []string, timeout time.Duration, runner command.Runner) *Command {
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Command{path: path, args: args, timeout: timeout, runner: runner}
}

// Diarize runs the program and decodes its spans.
func (c *Command) Diarize(ctx context.Context, mediaPath string) ([]domain.SpeakerSpan, error) {
	ctx, cancel := command.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string(nil), c.args...), mediaPath)
	res, err := c.runner.Run(ctx, c.path, args...)
	log := command.Log(c.path, args, res)
	if err != nil {
		return nil, command.Fail(stageDiarize, "diarization command failed", log, err)
	}

	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil, nil
	}
	var spans []domain.SpeakerSpan
	if err := json.Unmarshal([]byte(out), &spans); err != nil {
		return nil, command.Fail(stageDiarize, "cannot decode diarization output", log, err)
	}

	valid := spans[:0]
	for _, span := range spans {
		if span.End <= span.Start {
			continue
		}
		span.Speaker = speakerLabel(span.Speaker)
		valid = append(valid, span)
	}
	sortSpans(valid)
	return valid, nil
}

func sortSpans(spans []domain.SpeakerSpan) {
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start < spans[j].Start
	})
}
