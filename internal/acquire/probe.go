package acquire

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"transcript-studio/internal/command"
)

// Prober reads media duration with ffprobe.
type Prober struct {
	path    string
	timeout time.Duration
	runner  command.Runner
}

// NewProber constructs an ffprobe based duration reader.
func NewProber(path string, timeout time.Duration, runner command.Runner) *Prober {
	if path == "" {
		path = "ffprobe"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Prober{path: path, timeout: timeout, runner: runner}
}

// Duration returns the container duration of mediaPath in seconds.
func (p *Prober) Duration(ctx context.Context, mediaPath string) (float64, error) {
	ctx, cancel := command.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	}
	res, err := p.runner.Run(ctx, p.path, args...)
	if err != nil {
		return 0, command.Fail("probe", "ffprobe failed", command.Log(p.path, args, res), err)
	}

	raw := strings.TrimSpace(res.Stdout)
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", raw, err)
	}
	return duration, nil
}
