package diarize

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"transcript-studio/internal/command"
	"transcript-studio/internal/domain"
)

const (
	silenceNoise   = "-30dB"
	silenceMinimum = 0.5
	turnGap        = 1.5
)

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?[0-9.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?[0-9.]+)`)
	durationRe     = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// Silence is a heuristic two-speaker diarizer: speech runs are split on
// ffmpeg silencedetect output and the speaker alternates after long pauses.
type Silence struct {
	ffmpegPath string
	timeout    time.Duration
	runner     command.Runner
}

// NewSilence constructs the silence heuristic.
func NewSilence(ffmpegPath string, timeout time.Duration, runner command.Runner) *Silence {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Silence{ffmpegPath: ffmpegPath, timeout: timeout, runner: runner}
}

// Diarize runs silencedetect and converts the pauses into speaker turns.
func (s *Silence) Diarize(ctx context.Context, mediaPath string) ([]domain.SpeakerSpan, error) {
	ctx, cancel := command.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-i", mediaPath,
		"-af", "silencedetect=noise=" + silenceNoise + ":d=" + strconv.FormatFloat(silenceMinimum, 'f', -1, 64),
		"-f", "null",
		"-",
	}
	res, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		return nil, command.Fail(stageDiarize, "ffmpeg silencedetect failed", command.Log(s.ffmpegPath, args, res), err)
	}
	return turnsFromSilence(res.Stderr), nil
}

type pause struct {
	start, end float64
}

// turnsFromSilence converts silencedetect stderr into alternating speaker spans.
func turnsFromSilence(stderr string) []domain.SpeakerSpan {
	total := parseDuration(stderr)

	var pauses []pause
	starts := silenceStartRe.FindAllStringSubmatch(stderr, -1)
	ends := silenceEndRe.FindAllStringSubmatch(stderr, -1)
	for i, m := range starts {
		start, _ := strconv.ParseFloat(m[1], 64)
		end := total
		if i < len(ends) {
			end, _ = strconv.ParseFloat(ends[i][1], 64)
		}
		if start < 0 {
			start = 0
		}
		pauses = append(pauses, pause{start: start, end: end})
	}

	var spans []domain.SpeakerSpan
	speaker := 0
	cursor := 0.0
	for _, p := range pauses {
		if p.start > cursor {
			spans = append(spans, domain.SpeakerSpan{Start: cursor, End: p.start, Speaker: speakerName(speaker)})
			if p.end-p.start >= turnGap {
				speaker = 1 - speaker
			}
		}
		if p.end > cursor {
			cursor = p.end
		}
	}
	if total > cursor {
		spans = append(spans, domain.SpeakerSpan{Start: cursor, End: total, Speaker: speakerName(speaker)})
	}
	return spans
}

func parseDuration(stderr string) float64 {
	m := durationRe.FindStringSubmatch(stderr)
	if m == nil {
		return 0
	}
	h, _ := strconv.ParseFloat(m[1], 64)
	mins, _ := strconv.ParseFloat(m[2], 64)
	sec, _ := strconv.ParseFloat(m[3], 64)
	return h*3600 + mins*60 + sec
}
