// Package acquire fetches remote media and probes local uploads.
package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"transcript-studio/internal/command"
	"transcript-studio/internal/domain"
)

const stageAcquire = "acquire"

// mediaBase is the file stem yt-dlp writes inside the project media directory.
const mediaBase = "media"

// YtDlpOptions configures the yt-dlp acquirer.
type YtDlpOptions struct {
	Path        string
	FFmpegPath  string
	AudioFormat string
	Timeout     time.Duration
}

// YtDlp downloads the audio track of a remote source with yt-dlp.
type YtDlp struct {
	opts     YtDlpOptions
	runner   command.Runner
	mkdirAll func(path string, perm os.FileMode) error
	stat     func(name string) (os.FileInfo, error)
	glob     func(pattern string) ([]string, error)
}

// NewYtDlp constructs the production acquirer.
func NewYtDlp(opts YtDlpOptions, runner command.Runner) *YtDlp {
	if opts.Path == "" {
		opts.Path = "yt-dlp"
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &YtDlp{
		opts:     opts,
		runner:   runner,
		mkdirAll: os.MkdirAll,
		stat:     os.Stat,
		glob:     filepath.Glob,
	}
}

// Acquire downloads req.SourceRef into req.Dir and returns its metadata and file path.
func (y *YtDlp) Acquire(ctx context.Context, req domain.AcquireRequest) (domain.Media, error) {
	if strings.TrimSpace(req.Dir) == "" {
		return domain.Media{}, &domain.StageError{Stage: stageAcquire, Message: "download directory is required"}
	}
	if err := y.mkdirAll(req.Dir, 0o755); err != nil {
		return domain.Media{}, &domain.StageError{
			Stage:   stageAcquire,
			Message: fmt.Sprintf("cannot create download directory: %s", req.Dir),
			Err:     err,
		}
	}

	ctx, cancel := command.WithTimeout(ctx, y.opts.Timeout)
	defer cancel()

	args := y.buildArgs(req)
	res, runErr := y.runner.Run(ctx, y.opts.Path, args...)
	log := command.Log(y.opts.Path, args, res)
	if runErr != nil {
		return domain.Media{}, command.Fail(stageAcquire, "yt-dlp download failed", log, runErr)
	}

	info, err := parseInfo(res.Stdout)
	if err != nil {
		return domain.Media{}, command.Fail(stageAcquire, "cannot decode yt-dlp metadata", log, err)
	}

	path, err := y.locate(req.Dir)
	if err != nil {
		return domain.Media{}, command.Fail(stageAcquire, "yt-dlp completed but media file is missing", log, err)
	}

	return domain.Media{
		Title:        strings.TrimSpace(info.Title),
		Duration:     info.Duration,
		ThumbnailURL: info.Thumbnail,
		Path:         path,
	}, nil
}

// buildArgs asks yt-dlp for best audio converted to a fixed name, plus metadata on stdout.
func (y *YtDlp) buildArgs(req domain.AcquireRequest) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--dump-json",
		"--no-simulate",
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", y.opts.AudioFormat,
		"--audio-quality", "192K",
		"-o", filepath.Join(req.Dir, mediaBase+".%(ext)s"),
	}
	if y.opts.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", y.opts.FFmpegPath)
	}
	return append(args, req.SourceRef)
}

// locate finds the converted media file, falling back to any media.* file.
func (y *YtDlp) locate(dir string) (string, error) {
	expected := filepath.Join(dir, mediaBase+"."+y.opts.AudioFormat)
	if _, err := y.stat(expected); err == nil {
		return expected, nil
	}

	matches, err := y.glob(filepath.Join(dir, mediaBase+".*"))
	if err != nil {
		return "", err
	}
	matches = filterPartial(matches)
	if len(matches) == 0 {
		return "", fmt.Errorf("no media file in %s", dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}

func filterPartial(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		ext := filepath.Ext(p)
		if ext == ".part" || ext == ".ytdl" || ext == ".json" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ytdlpInfo is the subset of the --dump-json payload we read.
type ytdlpInfo struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

// parseInfo decodes the last JSON line of yt-dlp output; other lines are warnings.
func parseInfo(stdout string) (ytdlpInfo, error) {
	var jsonLine string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") {
			jsonLine = line
		}
	}
	if jsonLine == "" {
		return ytdlpInfo{}, fmt.Errorf("no JSON detected in yt-dlp output")
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(jsonLine), &info); err != nil {
		return ytdlpInfo{}, fmt.Errorf("unmarshal yt-dlp output: %w", err)
	}
	return info, nil
}
