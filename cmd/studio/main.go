package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	"transcript-studio/internal/bootstrap"
	"transcript-studio/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "yaml configuration file (defaults to $STUDIO_CONFIG)")
		envFile    = flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{Path: *configPath, EnvFile: *envFile}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting studio",
		"listen_addr", cfg.ListenAddr,
		"health_addr", cfg.HealthAddr,
		"data_dir", cfg.DataDir,
		"store", cfg.Database.Driver,
		"model_variant", cfg.Whisper.Variant,
		"diarize", cfg.Diarize.Mode,
	)

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("failed to initialise studio", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("studio stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("studio stopped")
}

// newLogger picks the text handler for terminals and JSON otherwise when
// format is "auto".
func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
