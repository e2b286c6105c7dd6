package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STUDIO_"

// Loader loads configuration from a yaml file, an optional .env file and the
// environment. Tests can override Lookup to inject deterministic maps.
type Loader struct {
	// Path is the yaml file. Empty falls back to STUDIO_CONFIG; a missing file is not an error.
	Path string
	// EnvFile is loaded into the process environment when it exists. Empty means ".env".
	EnvFile string
	Lookup  func(string) (string, bool)

	readFile func(string) ([]byte, error)
	loadEnv  func(...string) error
}

// Load builds the configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
		if err := l.loadDotEnv(); err != nil {
			return Config{}, err
		}
	}
	if l.readFile == nil {
		l.readFile = os.ReadFile
	}

	cfg := Default()

	path := l.Path
	if path == "" {
		path, _ = l.Lookup(EnvPrefix + "CONFIG")
	}
	if err := l.applyFile(strings.TrimSpace(path), &cfg); err != nil {
		return Config{}, err
	}

	if err := l.applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) loadDotEnv() error {
	if l.loadEnv == nil {
		l.loadEnv = godotenv.Load
	}
	file := l.EnvFile
	if file == "" {
		file = ".env"
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", file, err)
	}
	if err := l.loadEnv(file); err != nil {
		return fmt.Errorf("config: load %s: %w", file, err)
	}
	return nil
}

// applyFile unmarshals the yaml file over cfg; absent keys keep their defaults.
func (l Loader) applyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := l.readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (l Loader) applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, target *string) {
		overrideString(l.Lookup, EnvPrefix+key, target)
	}
	num := func(key string, target *int) {
		if err := overrideInt(l.Lookup, EnvPrefix+key, target); err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(key string, target *time.Duration) {
		if err := overrideDuration(l.Lookup, EnvPrefix+key, target); err != nil {
			errs = append(errs, err)
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("HEALTH_ADDR", &cfg.HealthAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("MAX_UPLOAD", &cfg.MaxUpload)
	str("DATA_DIR", &cfg.DataDir)

	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)
	str("DB_HOST", &cfg.Database.Host)
	num("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_SSLMODE", &cfg.Database.SSLMode)
	maxConns, minConns := int(cfg.Database.MaxConns), int(cfg.Database.MinConns)
	num("DB_MAX_CONNS", &maxConns)
	num("DB_MIN_CONNS", &minConns)
	cfg.Database.MaxConns, cfg.Database.MinConns = int32(maxConns), int32(minConns)
	dur("DB_MAX_CONN_LIFE", &cfg.Database.MaxConnLife)
	dur("DB_MAX_CONN_IDLE", &cfg.Database.MaxConnIdle)

	str("YTDLP_PATH", &cfg.Tools.YtDlp)
	str("FFMPEG_PATH", &cfg.Tools.FFmpeg)
	str("FFPROBE_PATH", &cfg.Tools.FFprobe)
	str("WHISPER_PATH", &cfg.Tools.Whisper)
	str("EDGE_TTS_PATH", &cfg.Tools.EdgeTTS)

	str("MODEL_PATH", &cfg.Whisper.ModelPath)
	str("MODEL_VARIANT", &cfg.Whisper.Variant)
	str("LANGUAGE", &cfg.Whisper.Language)
	num("THREADS", &cfg.Whisper.Threads)
	if err := overrideBool(l.Lookup, EnvPrefix+"AUTO_DOWNLOAD", &cfg.Whisper.AutoDownload); err != nil {
		errs = append(errs, err)
	}

	str("DIARIZE_MODE", &cfg.Diarize.Mode)
	str("DIARIZE_COMMAND", &cfg.Diarize.Command)
	overrideString(l.Lookup, "HF_TOKEN", &cfg.Diarize.HFToken)
	str("HF_TOKEN", &cfg.Diarize.HFToken)

	str("TRANSLATE_ENDPOINT", &cfg.Translate.Endpoint)
	str("TRANSLATE_API_KEY", &cfg.Translate.APIKey)

	overrideString(l.Lookup, "GOOGLE_API_KEY", &cfg.Generate.APIKey)
	overrideString(l.Lookup, "GEMINI_API_KEY", &cfg.Generate.APIKey)
	str("GENERATE_API_KEY", &cfg.Generate.APIKey)
	str("GENERATE_ENDPOINT", &cfg.Generate.Endpoint)
	str("GENERATE_MODEL", &cfg.Generate.Model)

	dur("TIMEOUT_ACQUIRE", &cfg.Timeouts.Acquire)
	dur("TIMEOUT_TRANSCRIBE", &cfg.Timeouts.Transcribe)
	dur("TIMEOUT_DIARIZE", &cfg.Timeouts.Diarize)
	dur("TIMEOUT_TRANSLATE", &cfg.Timeouts.Translate)
	dur("TIMEOUT_TTS", &cfg.Timeouts.TTS)
	dur("TIMEOUT_GENERATE", &cfg.Timeouts.Generate)
	dur("TIMEOUT_PROBE", &cfg.Timeouts.Probe)

	num("EVENT_BUFFER", &cfg.Pipeline.EventBuffer)
	dur("SHUTDOWN_GRACE", &cfg.Pipeline.ShutdownGrace)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, value)
	}
	*target = n
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", key, value)
	}
	*target = b
	return nil
}

func overrideDuration(lookup func(string) (string, bool), key string, target *time.Duration) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration", key, value)
	}
	*target = d
	return nil
}
