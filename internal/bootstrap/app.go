// Package bootstrap wires configuration, storage, collaborators and servers
// into one running process.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"transcript-studio/internal/acquire"
	"transcript-studio/internal/api"
	"transcript-studio/internal/command"
	"transcript-studio/internal/config"
	"transcript-studio/internal/diagnostics"
	"transcript-studio/internal/diarize"
	"transcript-studio/internal/domain"
	"transcript-studio/internal/enrich"
	"transcript-studio/internal/generate"
	"transcript-studio/internal/jobs"
	"transcript-studio/internal/layout"
	"transcript-studio/internal/pipeline"
	"transcript-studio/internal/store"
	"transcript-studio/internal/telemetry"
	"transcript-studio/internal/transcribe"
	"transcript-studio/internal/translate"
	"transcript-studio/internal/tts"
	"transcript-studio/internal/whispermodel"
)

// App wires configuration, the artifact store, the pipeline and the servers.
type App struct {
	cfg    config.Config
	log    *slog.Logger
	layout layout.Layout

	store     store.Store
	engine    *transcribe.Engine
	models    *whispermodel.Manager
	checker   *diagnostics.Checker
	telemetry *telemetry.Recorder
	pipeline  *pipeline.Orchestrator
	enrich    *enrich.Dispatcher
	http      *echo.Echo

	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	httpAddr net.Addr
	grpcAddr net.Addr
	ready    chan struct{}
}

// Options overrides collaborators, mainly for tests. Nil fields use the
// production implementation built from configuration.
type Options struct {
	Store       store.Store
	Runner      command.Runner
	Acquirer    pipeline.Acquirer
	Transcriber pipeline.Transcriber
}

// New builds the application from cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "bootstrap")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := ensureBinOnPATH(filepath.Join(cfg.DataDir, "bin")); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		layout:    layout.New(cfg.DataDir),
		checker:   diagnostics.NewChecker(),
		telemetry: telemetry.NewRecorder(logger),
		ready:     make(chan struct{}),
	}

	st := opts.Store
	if st == nil {
		var err error
		if st, err = openStore(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}
	a.store = st

	runner := opts.Runner
	if runner == nil {
		runner = command.ExecRunner{}
	}

	a.models = whispermodel.NewManager(whispermodel.Options{
		Dir:    a.layout.ModelsDir(),
		Logger: logger,
	})
	a.engine = transcribe.NewEngine(transcribe.Options{
		FFmpegPath:  cfg.Tools.FFmpeg,
		WhisperPath: cfg.Tools.Whisper,
		ModelPath:   cfg.Whisper.ModelPath,
		Language:    cfg.Whisper.Language,
		Threads:     cfg.Whisper.Threads,
		Timeout:     cfg.Timeouts.Transcribe,
	}, runner)
	if cfg.Whisper.ModelPath == "" && cfg.Whisper.AutoDownload {
		path, err := a.models.Ensure(ctx, cfg.Whisper.Variant)
		if err != nil {
			a.closeStore()
			return nil, fmt.Errorf("prepare whisper model: %w", err)
		}
		a.cfg.Whisper.ModelPath = path
		a.engine.SetModelPath(path)
	}

	acquirer := opts.Acquirer
	if acquirer == nil {
		acquirer = acquire.NewYtDlp(acquire.YtDlpOptions{
			Path:       cfg.Tools.YtDlp,
			FFmpegPath: cfg.Tools.FFmpeg,
			Timeout:    cfg.Timeouts.Acquire,
		}, runner)
	}
	var transcriber pipeline.Transcriber = a.engine
	if opts.Transcriber != nil {
		transcriber = opts.Transcriber
	}

	orch, err := pipeline.New(pipeline.Deps{
		Store:       a.store,
		Layout:      a.layout,
		Acquirer:    acquirer,
		Transcriber: transcriber,
		Prober:      acquire.NewProber(cfg.Tools.FFprobe, cfg.Timeouts.Probe, runner),
		Events:      jobs.NewEventBus(cfg.Pipeline.EventBuffer),
		Telemetry:   a.telemetry,
		Logger:      logger,
	})
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.pipeline = orch

	diarizer, err := diarize.New(diarize.Options{
		Mode:       diarize.Mode(cfg.Diarize.Mode),
		Command:    cfg.Diarize.Command,
		Args:       diarizeArgs(cfg.Diarize),
		FFmpegPath: cfg.Tools.FFmpeg,
		Timeout:    cfg.Timeouts.Diarize,
	}, runner, logger)
	if err != nil {
		a.closeStore()
		return nil, err
	}

	var synthesizer tts.Synthesizer
	if _, err := exec.LookPath(cfg.Tools.EdgeTTS); err == nil {
		synthesizer = tts.NewEdgeTTS(cfg.Tools.EdgeTTS, cfg.Timeouts.TTS, runner)
	} else {
		log.Warn("edge-tts not found; dubbing disabled", "path", cfg.Tools.EdgeTTS)
	}

	dispatcher, err := enrich.New(enrich.Deps{
		Store:    a.store,
		Layout:   a.layout,
		Diarizer: diarizer,
		Translator: translate.New(translate.Options{
			Endpoint: cfg.Translate.Endpoint,
			APIKey:   cfg.Translate.APIKey,
			Timeout:  cfg.Timeouts.Translate,
		}),
		Synthesizer: synthesizer,
		Generator: generate.New(generate.Options{
			Endpoint: cfg.Generate.Endpoint,
			APIKey:   cfg.Generate.APIKey,
			Model:    cfg.Generate.Model,
			Timeout:  cfg.Timeouts.Generate,
		}),
		Telemetry: a.telemetry,
		Logger:    logger,
	})
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.enrich = dispatcher

	e, err := api.New(api.Deps{
		Store:       a.store,
		Pipeline:    a.pipeline,
		Enrich:      a.enrich,
		Telemetry:   a.telemetry,
		Diagnostics: a.Diagnostics,
		Models:      a.listModels,
		StoreStats:  storeStats(a.store),
		Logger:      logger,
		MaxUpload:   cfg.MaxUpload,
	})
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.http = e

	if cfg.HealthAddr != "" {
		a.health = health.NewServer()
		a.grpc = grpc.NewServer()
		healthpb.RegisterHealthServer(a.grpc, a.health)
		a.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		a.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	report := a.Diagnostics(ctx)
	for _, item := range report.WithStatus(domain.DiagnosticStatusFail) {
		log.Warn("startup check failed", "check", item.ID, "message", item.Message, "hint", item.Hint)
	}
	for _, item := range report.WithStatus(domain.DiagnosticStatusWarn) {
		log.Info("optional component unavailable", "check", item.ID, "message", item.Message)
	}
	return a, nil
}

// Run serves HTTP (and gRPC health when configured) until ctx ends, then
// drains in-flight executions for at most the shutdown grace period.
func (a *App) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", a.cfg.ListenAddr, err)
	}
	a.http.Listener = httpLn

	var grpcLn net.Listener
	if a.grpc != nil {
		if grpcLn, err = net.Listen("tcp", a.cfg.HealthAddr); err != nil {
			_ = httpLn.Close()
			return fmt.Errorf("listen health %s: %w", a.cfg.HealthAddr, err)
		}
	}

	a.mu.Lock()
	a.httpAddr = httpLn.Addr()
	if grpcLn != nil {
		a.grpcAddr = grpcLn.Addr()
	}
	a.mu.Unlock()

	errCh := make(chan error, 2)
	go func() {
		if err := a.http.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if a.grpc != nil {
		go func() {
			if err := a.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("health server: %w", err)
			}
		}()
		a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		a.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	}

	a.log.Info("studio listening", "http", a.httpAddr.String(), "health", addrString(a.grpcAddr), "store", a.cfg.Database.Driver)
	close(a.ready)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	return errors.Join(runErr, a.shutdown())
}

// shutdown stops accepting work, waits for running executions and releases the store.
func (a *App) shutdown() error {
	grace := a.cfg.Pipeline.ShutdownGrace
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	a.log.Info("shutting down", "grace", grace)
	if a.health != nil {
		a.health.Shutdown()
	}

	var errs []error
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http server: %w", err))
	}
	if err := a.pipeline.Wait(ctx); err != nil {
		a.log.Warn("executions still running at shutdown", "projects", a.pipeline.Active())
		errs = append(errs, fmt.Errorf("wait for executions: %w", err))
	}
	if a.grpc != nil {
		a.grpc.GracefulStop()
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Ready is closed once the listeners are bound.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// HTTPAddr is the bound HTTP address, nil before Run.
func (a *App) HTTPAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr
}

// HealthAddr is the bound gRPC health address, nil when disabled or before Run.
func (a *App) HealthAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grpcAddr
}

// Diagnostics checks tools, model, data directory and store reachability.
func (a *App) Diagnostics(ctx context.Context) domain.DiagnosticReport {
	target := diagnostics.Target{
		Tools: []diagnostics.Tool{
			{Name: "yt-dlp", Path: a.cfg.Tools.YtDlp, Hint: "Install yt-dlp (pip install yt-dlp) to acquire remote sources."},
			{Name: "ffmpeg", Path: a.cfg.Tools.FFmpeg},
			{Name: "ffprobe", Path: a.cfg.Tools.FFprobe},
			{Name: "whisper-cli", Path: a.cfg.Tools.Whisper, Hint: "Build whisper.cpp and put whisper-cli on PATH or set tools.whisper."},
			{Name: "edge-tts", Path: a.cfg.Tools.EdgeTTS, Optional: true, Hint: "Install edge-tts (pip install edge-tts) to enable dubbing."},
		},
		ModelPath: a.cfg.Whisper.ModelPath,
		DataDir:   a.cfg.DataDir,
	}
	if pinger, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		target.Store = pinger.Ping
	}
	return a.checker.Run(ctx, target)
}

func (a *App) listModels() []domain.WhisperModelOption {
	return a.models.List(a.cfg.Whisper.ModelPath)
}

func (a *App) closeStore() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
}

func openStore(ctx context.Context, db config.Database) (store.Store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			DSN:         db.DSN,
			Host:        db.Host,
			Port:        db.Port,
			User:        db.User,
			Password:    db.Password,
			DBName:      db.Name,
			SSLMode:     db.SSLMode,
			MaxConns:    db.MaxConns,
			MinConns:    db.MinConns,
			MaxConnLife: db.MaxConnLife,
			MaxConnIdle: db.MaxConnIdle,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return pg, nil
	default:
		return store.NewMemory(), nil
	}
}

func storeStats(st store.Store) func() map[string]int32 {
	if pg, ok := st.(*store.Postgres); ok {
		return pg.PoolStats
	}
	return nil
}

// diarizeArgs appends the Hugging Face token expected by pyannote based commands.
func diarizeArgs(cfg config.Diarize) []string {
	args := append([]string(nil), cfg.Args...)
	if token := strings.TrimSpace(cfg.HFToken); token != "" {
		args = append(args, "--hf-token", token)
	}
	return args
}

// ensureBinOnPATH prepends binDir to PATH so locally installed tools resolve first.
func ensureBinOnPATH(binDir string) error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "disabled"
	}
	return addr.String()
}
