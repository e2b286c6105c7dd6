// Package export renders transcript segments into subtitle and plain-text files.
package export

import (
	"bufio"
	"fmt"
	"math"
	"strings"

	"transcript-studio/internal/domain"
)

// Format is a supported export representation.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatTXT Format = "txt"
)

// ParseFormat maps a user supplied format name to a Format.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	case FormatTXT, "text", "plain":
		return FormatTXT, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidInput, raw)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render dispatches to the renderer of the given format.
func Render(format Format, segments []domain.Segment) (string, error) {
	switch format {
	case FormatSRT:
		return SRT(segments), nil
	case FormatVTT:
		return VTT(segments), nil
	case FormatTXT:
		return Text(segments), nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidInput, format)
	}
}

// SRT renders numbered blocks with comma millisecond separators.
func SRT(segments []domain.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if seg.Speaker != "" {
			text = "[" + seg.Speaker + "] " + text
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, timestamp(seg.Start, ','), timestamp(seg.End, ','), text)
	}
	return b.String()
}

// VTT renders a WEBVTT document with voice tags for speakers.
func VTT(segments []domain.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if seg.Speaker != "" {
			text = "<v " + seg.Speaker + ">" + text
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", timestamp(seg.Start, '.'), timestamp(seg.End, '.'), text)
	}
	return b.String()
}

// Text renders one "[MM:SS] [Speaker] text" line per segment.
func Text(segments []domain.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		total := int(math.Max(seg.Start, 0))
		stamp := fmt.Sprintf("[%02d:%02d]", total/60, total%60)
		text := strings.TrimSpace(seg.Text)
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "%s [%s] %s\n", stamp, seg.Speaker, text)
		} else {
			fmt.Fprintf(&b, "%s %s\n", stamp, text)
		}
	}
	return b.String()
}

// timestamp formats seconds as HH:MM:SS<sep>mmm rounded to the millisecond.
func timestamp(seconds float64, sep byte) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	secs := ms / 1000
	ms -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, ms)
}

// Cue is one parsed SRT block.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// ParseSRT reads blocks produced by SRT back into cues.
func ParseSRT(doc string) ([]Cue, error) {
	var cues []Cue
	scanner := bufio.NewScanner(strings.NewReader(doc))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var cue Cue
		if _, err := fmt.Sscanf(line, "%d", &cue.Index); err != nil {
			return nil, fmt.Errorf("parse srt index %q: %w", line, err)
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("parse srt: block %d has no timing line", cue.Index)
		}
		start, end, ok := strings.Cut(scanner.Text(), " --> ")
		if !ok {
			return nil, fmt.Errorf("parse srt: malformed timing line %q", scanner.Text())
		}
		var err error
		if cue.Start, err = ParseTimestamp(start); err != nil {
			return nil, err
		}
		if cue.End, err = ParseTimestamp(end); err != nil {
			return nil, err
		}

		var text []string
		for scanner.Scan() {
			l := scanner.Text()
			if strings.TrimSpace(l) == "" {
				break
			}
			text = append(text, l)
		}
		cue.Text = strings.Join(text, "\n")
		cues = append(cues, cue)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse srt: %w", err)
	}
	return cues, nil
}

// ParseTimestamp accepts HH:MM:SS,mmm or HH:MM:SS.mmm and returns seconds.
func ParseTimestamp(raw string) (float64, error) {
	var h, m, s, ms int
	normalized := strings.Replace(strings.TrimSpace(raw), ",", ".", 1)
	if _, err := fmt.Sscanf(normalized, "%d:%d:%d.%d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return float64(h*3600+m*60+s) + float64(ms)/1000, nil
}
