// Package tts synthesizes speech for dubbing with edge-tts.
package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"transcript-studio/internal/command"
	"transcript-studio/internal/domain"
)

const stageTTS = "tts"

// Synthesizer writes synthesized audio for req.Text to req.OutputPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, req domain.SpeechRequest) error
}

// EdgeTTS drives the edge-tts command line tool.
type EdgeTTS struct {
	path      string
	timeout   time.Duration
	runner    command.Runner
	mkdirAll  func(path string, perm os.FileMode) error
	writeFile func(name string, data []byte, perm os.FileMode) error
	remove    func(name string) error
	stat      func(name string) (os.FileInfo, error)
}

// NewEdgeTTS constructs the production synthesizer.
func NewEdgeTTS(path string, timeout time.Duration, runner command.Runner) *EdgeTTS {
	if path == "" {
		path = "edge-tts"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &EdgeTTS{
		path:      path,
		timeout:   timeout,
		runner:    runner,
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
		remove:    os.Remove,
		stat:      os.Stat,
	}
}

// Synthesize passes the text through a sidecar file so long transcripts do not hit argv limits.
func (e *EdgeTTS) Synthesize(ctx context.Context, req domain.SpeechRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: no text to synthesize", domain.ErrInvalidInput)
	}
	if err := e.mkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return &domain.StageError{Stage: stageTTS, Message: "cannot create output directory", Err: err}
	}

	textPath := req.OutputPath + ".txt"
	if err := e.writeFile(textPath, []byte(req.Text), 0o644); err != nil {
		return &domain.StageError{Stage: stageTTS, Message: "cannot stage synthesis text", Err: err}
	}
	defer func() { _ = e.remove(textPath) }()

	ctx, cancel := command.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		"--voice", Voice(req.Language, req.Gender),
		"--file", textPath,
		"--write-media", req.OutputPath,
	}
	res, err := e.runner.Run(ctx, e.path, args...)
	log := command.Log(e.path, args, res)
	if err != nil {
		return command.Fail(stageTTS, "edge-tts synthesis failed", log, err)
	}
	if _, err := e.stat(req.OutputPath); err != nil {
		return command.Fail(stageTTS, "edge-tts completed but audio file is missing", log, err)
	}
	return nil
}
