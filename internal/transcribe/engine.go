// Package transcribe converts media into timed segments with ffmpeg and whisper.cpp.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"transcript-studio/internal/command"
	"transcript-studio/internal/domain"
	"transcript-studio/internal/segment"
	"transcript-studio/internal/whispermodel"
)

const (
	stagePreprocessing = "preprocessing"
	stageTranscribing  = "transcribing"
)

// Options configures the whisper.cpp engine.
type Options struct {
	FFmpegPath  string
	WhisperPath string
	ModelPath   string
	Language    string
	Threads     int
	Timeout     time.Duration
}

// Engine orchestrates ffmpeg preprocessing and whisper.cpp transcription.
type Engine struct {
	opts      Options
	runner    command.Runner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
	readFile  func(name string) ([]byte, error)
}

// NewEngine constructs the production engine with OS dependencies.
func NewEngine(opts Options, runner command.Runner) *Engine {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.WhisperPath == "" {
		opts.WhisperPath = "whisper-cli"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Engine{
		opts:      opts,
		runner:    runner,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		stat:      os.Stat,
		readFile:  os.ReadFile,
	}
}

// SetModelPath swaps the model used by subsequent runs.
func (e *Engine) SetModelPath(path string) {
	e.opts.ModelPath = path
}

// Transcribe converts mediaPath to 16k mono wav, runs whisper.cpp with JSON
// output and returns ordered segments. Temporary files are always removed.
func (e *Engine) Transcribe(ctx context.Context, mediaPath string) (domain.TranscriptionResult, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return domain.TranscriptionResult{}, &domain.StageError{
			Stage:   stagePreprocessing,
			Message: "input media path is required",
		}
	}
	if _, err := e.stat(mediaPath); err != nil {
		return domain.TranscriptionResult{}, &domain.StageError{
			Stage:   stagePreprocessing,
			Message: fmt.Sprintf("cannot access input media: %s", mediaPath),
			Err:     err,
		}
	}

	modelPath, err := whispermodel.Resolve(e.opts.ModelPath)
	if err != nil {
		return domain.TranscriptionResult{}, &domain.StageError{
			Stage:   stageTranscribing,
			Message: err.Error(),
			Err:     err,
		}
	}

	ctx, cancel := command.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	tempDir, err := e.mkdirTemp("", "transcript-studio-*")
	if err != nil {
		return domain.TranscriptionResult{}, &domain.StageError{
			Stage:   stagePreprocessing,
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}
	defer func() { _ = e.removeAll(tempDir) }()

	wavPath := filepath.Join(tempDir, "preprocessed-16k-mono.wav")
	args := buildFFmpegArgs(mediaPath, wavPath)
	res, runErr := e.runner.Run(ctx, e.opts.FFmpegPath, args...)
	log := command.Log(e.opts.FFmpegPath, args, res)
	if runErr != nil {
		return domain.TranscriptionResult{}, command.Fail(stagePreprocessing, "ffmpeg audio conversion failed", log, runErr)
	}
	if _, err := e.stat(wavPath); err != nil {
		return domain.TranscriptionResult{}, command.Fail(stagePreprocessing, "ffmpeg completed but output file is missing", log, err)
	}

	outBase := filepath.Join(tempDir, "transcript")
	whisperArgs := buildWhisperArgs(modelPath, wavPath, outBase, e.opts.Language, e.opts.Threads)
	res, runErr = e.runner.Run(ctx, e.opts.WhisperPath, whisperArgs...)
	whisperLog := command.Log(e.opts.WhisperPath, whisperArgs, res)
	if runErr != nil {
		return domain.TranscriptionResult{}, command.Fail(stageTranscribing, "whisper.cpp transcription failed", whisperLog, runErr)
	}

	raw, err := e.readFile(outBase + ".json")
	if err != nil {
		return domain.TranscriptionResult{}, command.Fail(stageTranscribing, "whisper.cpp completed but transcript .json file is missing", whisperLog, err)
	}
	result, err := parseWhisperJSON(raw)
	if err != nil {
		return domain.TranscriptionResult{}, command.Fail(stageTranscribing, "cannot decode whisper.cpp output", whisperLog, err)
	}
	if result.Language == "" {
		result.Language = normalizeLanguage(e.opts.Language)
	}
	return result, nil
}

// whisperOutput mirrors the subset of whisper.cpp -oj output we read.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperJSON converts millisecond offsets into ordered segments.
func parseWhisperJSON(raw []byte) (domain.TranscriptionResult, error) {
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.TranscriptionResult{}, err
	}

	language := normalizeLanguage(out.Result.Language)
	segments := make([]domain.Segment, 0, len(out.Transcription))
	for _, item := range out.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{
			Start:    float64(item.Offsets.From) / 1000,
			End:      float64(item.Offsets.To) / 1000,
			Text:     text,
			Language: language,
		})
	}

	return domain.TranscriptionResult{
		Language: language,
		Segments: segment.Normalize(segments),
	}, nil
}

// normalizeLanguage maps "auto" and empty language to no override.
func normalizeLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "" || lang == "auto" {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for JSON transcript output.
func buildWhisperArgs(modelPath, audioPath, outBase, language string, threads int) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	} else {
		args = append(args, "-l", "auto")
	}
	if threads > 0 {
		args = append(args, "-t", fmt.Sprint(threads))
	}

	return args
}
