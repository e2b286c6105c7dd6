package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"transcript-studio/internal/api"
	"transcript-studio/internal/config"
	"transcript-studio/internal/domain"
	"transcript-studio/internal/store"
)

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(context.Context, string) (domain.TranscriptionResult, error) {
	return domain.TranscriptionResult{
		Language: "en",
		Segments: []domain.Segment{{Start: 0, End: 2, Text: "welcome to the studio"}},
	}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HealthAddr = "127.0.0.1:0"
	cfg.Whisper.ModelPath = filepath.Join(cfg.DataDir, "ggml-base.bin")
	cfg.Pipeline.ShutdownGrace = 5 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

func startApp(t *testing.T, cfg config.Config, opts Options) (*App, func()) {
	t.Helper()
	t.Setenv("PATH", os.Getenv("PATH"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := New(context.Background(), cfg, logger, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-app.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("app did not become ready")
	}

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("app did not shut down")
		}
	}
	return app, stop
}

// TestAppServesHTTPAndHealth checks both listeners and the SERVING status.
func TestAppServesHTTPAndHealth(t *testing.T) {
	app, stop := startApp(t, testConfig(t), Options{Store: store.NewMemory()})
	defer stop()

	resp, err := http.Get("http://" + app.HTTPAddr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Diagnostics == nil {
		t.Fatal("expected diagnostics in health response")
	}

	conn, err := grpc.NewClient(app.HealthAddr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	check, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if check.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health status = %s, want SERVING", check.GetStatus())
	}
}

// TestAppRunsUploadedProject drives an upload through the wired pipeline.
func TestAppRunsUploadedProject(t *testing.T) {
	cfg := testConfig(t)
	cfg.HealthAddr = ""
	app, stop := startApp(t, cfg, Options{Store: store.NewMemory(), Transcriber: fakeTranscriber{}})
	defer stop()

	if app.HealthAddr() != nil {
		t.Fatalf("health addr = %v, want disabled", app.HealthAddr())
	}

	p, err := app.pipeline.IntakeUpload(context.Background(), "intro.wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("IntakeUpload() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.pipeline.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/projects/%s/export?format=txt", app.HTTPAddr(), p.ID))
	if err != nil {
		t.Fatalf("GET export: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if string(body) != "[00:00] welcome to the studio\n" {
		t.Fatalf("export = %q", body)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "projects", p.ID, "exports", "transcript.txt")); err != nil {
		t.Fatalf("export file: %v", err)
	}
}

func TestDiarizeArgsAppendsToken(t *testing.T) {
	args := diarizeArgs(config.Diarize{Args: []string{"--min-speakers", "2"}, HFToken: " hf_123 "})
	want := []string{"--min-speakers", "2", "--hf-token", "hf_123"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v, want %v", args, want)
	}

	if args := diarizeArgs(config.Diarize{}); len(args) != 0 {
		t.Fatalf("args = %v, want none", args)
	}
}

// TestEnsureBinOnPATHPrependsOnce keeps PATH free of duplicates.
func TestEnsureBinOnPATHPrependsOnce(t *testing.T) {
	binDir := filepath.Join(t.TempDir(), "bin")
	t.Setenv("PATH", "/usr/bin")

	for i := 0; i < 2; i++ {
		if err := ensureBinOnPATH(binDir); err != nil {
			t.Fatalf("ensureBinOnPATH() error = %v", err)
		}
	}
	want := binDir + string(os.PathListSeparator) + "/usr/bin"
	if got := os.Getenv("PATH"); got != want {
		t.Fatalf("PATH = %q, want %q", got, want)
	}
	if info, err := os.Stat(binDir); err != nil || !info.IsDir() {
		t.Fatalf("bin dir not created: %v", err)
	}
}
