package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"transcript-studio/internal/command"
	"transcript-studio/internal/command/commandtest"
	"transcript-studio/internal/domain"
)

// TestYtDlpAcquireSuccess parses metadata and finds the converted file.
func TestYtDlpAcquireSuccess(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "media")
	runner := &commandtest.Runner{
		Fn: func(ctx context.Context, name string, args ...string) (command.Result, error) {
			out := commandtest.ArgValue(args, "-o")
			if filepath.Dir(out) != dir {
				t.Fatalf("output template = %q", out)
			}
			if err := os.WriteFile(filepath.Join(dir, "media.mp3"), []byte("mp3"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			return command.Result{
				Stdout: "WARNING: something\n" +
					`{"title":" Go Talk ","duration":123.5,"thumbnail":"https://img/x.jpg"}` + "\n",
			}, nil
		},
	}

	media, err := NewYtDlp(YtDlpOptions{}, runner).Acquire(context.Background(), domain.AcquireRequest{
		ProjectID: "p1",
		SourceRef: "https://example.com/watch?v=1",
		Dir:       dir,
	})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if media.Title != "Go Talk" || media.Duration != 123.5 || media.ThumbnailURL != "https://img/x.jpg" {
		t.Fatalf("media = %+v", media)
	}
	if media.Path != filepath.Join(dir, "media.mp3") {
		t.Fatalf("path = %q", media.Path)
	}

	args := runner.Calls()[0].Args
	if args[len(args)-1] != "https://example.com/watch?v=1" {
		t.Fatalf("source must be the last arg: %v", args)
	}
	if !commandtest.HasArg(args, "--no-playlist") {
		t.Fatalf("expected --no-playlist: %v", args)
	}
}

// TestYtDlpAcquireFallsBackToOtherExtension uses any produced media file.
func TestYtDlpAcquireFallsBackToOtherExtension(t *testing.T) {
	dir := t.TempDir()
	runner := &commandtest.Runner{
		Fn: func(ctx context.Context, name string, args ...string) (command.Result, error) {
			_ = os.WriteFile(filepath.Join(dir, "media.m4a.part"), []byte("x"), 0o644)
			_ = os.WriteFile(filepath.Join(dir, "media.m4a"), []byte("x"), 0o644)
			return command.Result{Stdout: `{"title":"t"}`}, nil
		},
	}

	media, err := NewYtDlp(YtDlpOptions{}, runner).Acquire(context.Background(), domain.AcquireRequest{SourceRef: "https://x.y/z", Dir: dir})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if filepath.Base(media.Path) != "media.m4a" {
		t.Fatalf("path = %q", media.Path)
	}
}

// TestYtDlpAcquireFailure surfaces a collaborator error with command context.
func TestYtDlpAcquireFailure(t *testing.T) {
	runner := &commandtest.Runner{
		Fn: func(ctx context.Context, name string, args ...string) (command.Result, error) {
			return command.Result{Stderr: "ERROR: unavailable", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	_, err := NewYtDlp(YtDlpOptions{Path: "yt"}, runner).Acquire(context.Background(), domain.AcquireRequest{SourceRef: "https://x.y/z", Dir: t.TempDir()})
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error type = %T, want *domain.StageError", err)
	}
	if stageErr.Stage != stageAcquire || stageErr.CommandLog.Command != "yt" || stageErr.CommandLog.ExitCode != 1 {
		t.Fatalf("stage error = %+v", stageErr)
	}
}

// TestYtDlpAcquireMissingFile fails when nothing was written.
func TestYtDlpAcquireMissingFile(t *testing.T) {
	runner := &commandtest.Runner{
		Fn: func(ctx context.Context, name string, args ...string) (command.Result, error) {
			return command.Result{Stdout: `{"title":"t"}`}, nil
		},
	}
	_, err := NewYtDlp(YtDlpOptions{}, runner).Acquire(context.Background(), domain.AcquireRequest{SourceRef: "https://x.y/z", Dir: t.TempDir()})
	if !errors.Is(err, domain.ErrCollaborator) {
		t.Fatalf("error = %v, want collaborator failure", err)
	}
}

// TestParseInfoWithoutJSON rejects output with no metadata line.
func TestParseInfoWithoutJSON(t *testing.T) {
	if _, err := parseInfo("WARNING: nothing here\n"); err == nil {
		t.Fatal("expected error")
	}
}

// TestProberDuration parses ffprobe output.
func TestProberDuration(t *testing.T) {
	runner := &commandtest.Runner{
		Fn: func(ctx context.Context, name string, args ...string) (command.Result, error) {
			return command.Result{Stdout: "42.250000\n"}, nil
		},
	}
	got, err := NewProber("", 0, runner).Duration(context.Background(), "/a.mp3")
	if err != nil {
		t.Fatalf("Duration() error = %v", err)
	}
	if got != 42.25 {
		t.Fatalf("duration = %v, want 42.25", got)
	}
	if runner.Calls()[0].Name != "ffprobe" {
		t.Fatalf("command = %q", runner.Calls()[0].Name)
	}
}

// TestProberDurationGarbage reports unparsable output.
func TestProberDurationGarbage(t *testing.T) {
	runner := &commandtest.Runner{
		Fn: func(ctx context.Context, name string, args ...string) (command.Result, error) {
			return command.Result{Stdout: "N/A"}, nil
		},
	}
	if _, err := NewProber("", 0, runner).Duration(context.Background(), "/a.mp3"); err == nil {
		t.Fatal("expected parse error")
	}
}
