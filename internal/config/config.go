// Package config loads the studio configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
)

// Defaults applied before any file or environment override.
const (
	DefaultListenAddr    = "127.0.0.1:8000"
	DefaultHealthAddr    = "127.0.0.1:8001"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "auto"
	DefaultModelVariant  = "base"
	DefaultLanguage      = "auto"
	DefaultDriver        = DriverMemory
	DefaultEventBuffer   = 1000
	DefaultShutdownGrace = 30 * time.Second
	DefaultMaxUpload     = "2G"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	HealthAddr string `yaml:"health_addr"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	DataDir    string `yaml:"data_dir"`
	// MaxUpload caps request bodies, e.g. "500M". Empty disables the limit.
	MaxUpload string `yaml:"max_upload"`

	Database  Database  `yaml:"database"`
	Tools     Tools     `yaml:"tools"`
	Whisper   Whisper   `yaml:"whisper"`
	Diarize   Diarize   `yaml:"diarize"`
	Translate Translate `yaml:"translate"`
	Generate  Generate  `yaml:"generate"`
	Timeouts  Timeouts  `yaml:"timeouts"`
	Pipeline  Pipeline  `yaml:"pipeline"`
}

// Database selects and configures the artifact store.
type Database struct {
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Name        string        `yaml:"name"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnLife time.Duration `yaml:"max_conn_life"`
	MaxConnIdle time.Duration `yaml:"max_conn_idle"`
}

// Tools are the external executables the collaborators drive.
type Tools struct {
	YtDlp   string `yaml:"yt_dlp"`
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	Whisper string `yaml:"whisper"`
	EdgeTTS string `yaml:"edge_tts"`
}

// Whisper configures transcription.
type Whisper struct {
	ModelPath    string `yaml:"model_path"`
	Variant      string `yaml:"variant"`
	Language     string `yaml:"language"`
	Threads      int    `yaml:"threads"`
	AutoDownload bool   `yaml:"auto_download"`
}

// Diarize configures speaker labelling. HFToken is passed to the command as
// --hf-token when set.
type Diarize struct {
	Mode    string   `yaml:"mode"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	HFToken string   `yaml:"hf_token"`
}

// Translate configures the LibreTranslate compatible endpoint.
type Translate struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// Generate configures the Gemini text generation client.
type Generate struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// Timeouts bound each collaborator call.
type Timeouts struct {
	Acquire    time.Duration `yaml:"acquire"`
	Transcribe time.Duration `yaml:"transcribe"`
	Diarize    time.Duration `yaml:"diarize"`
	Translate  time.Duration `yaml:"translate"`
	TTS        time.Duration `yaml:"tts"`
	Generate   time.Duration `yaml:"generate"`
	Probe      time.Duration `yaml:"probe"`
}

// Pipeline configures the orchestrator.
type Pipeline struct {
	EventBuffer   int           `yaml:"event_buffer"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Default returns baseline local configuration.
func Default() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return Config{
		ListenAddr: DefaultListenAddr,
		HealthAddr: DefaultHealthAddr,
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		DataDir:    filepath.Join(homeDir, ".transcript-studio"),
		MaxUpload:  DefaultMaxUpload,
		Database: Database{
			Driver:      DefaultDriver,
			Host:        "localhost",
			Port:        5432,
			User:        "studio",
			Name:        "transcript_studio",
			SSLMode:     "disable",
			MaxConns:    20,
			MinConns:    2,
			MaxConnLife: time.Hour,
			MaxConnIdle: 10 * time.Minute,
		},
		Tools: Tools{
			YtDlp:   "yt-dlp",
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			Whisper: "whisper-cli",
			EdgeTTS: "edge-tts",
		},
		Whisper: Whisper{
			Variant:  DefaultModelVariant,
			Language: DefaultLanguage,
		},
		Diarize: Diarize{Mode: "none"},
		Generate: Generate{
			Model: "gemini-1.5-flash",
		},
		Timeouts: Timeouts{
			Acquire:    30 * time.Minute,
			Transcribe: 2 * time.Hour,
			Diarize:    30 * time.Minute,
			Translate:  30 * time.Second,
			TTS:        10 * time.Minute,
			Generate:   2 * time.Minute,
			Probe:      30 * time.Second,
		},
		Pipeline: Pipeline{
			EventBuffer:   DefaultEventBuffer,
			ShutdownGrace: DefaultShutdownGrace,
		},
	}
}

// Validate normalises values and rejects unusable ones.
func (c *Config) Validate() error {
	var errs []error

	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	c.HealthAddr = strings.TrimSpace(c.HealthAddr)

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	case "":
		c.LogLevel = DefaultLogLevel
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "text", "json", "auto":
	case "":
		c.LogFormat = DefaultLogFormat
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not one of text, json, auto", c.LogFormat))
	}

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	c.MaxUpload = strings.TrimSpace(c.MaxUpload)
	if c.MaxUpload != "" {
		if _, err := bytes.Parse(c.MaxUpload); err != nil {
			errs = append(errs, fmt.Errorf("max_upload %q: %w", c.MaxUpload, err))
		}
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Name == "") {
			errs = append(errs, errors.New("database: postgres needs a dsn or host and name"))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, errors.New("database: max_conns must be positive"))
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			errs = append(errs, errors.New("database: min_conns must be between 0 and max_conns"))
		}
	case "":
		c.Database.Driver = DefaultDriver
	default:
		errs = append(errs, fmt.Errorf("database: unknown driver %q", c.Database.Driver))
	}

	c.Diarize.Mode = strings.ToLower(strings.TrimSpace(c.Diarize.Mode))
	switch c.Diarize.Mode {
	case "", "none", "command", "silence":
	default:
		errs = append(errs, fmt.Errorf("diarize: unknown mode %q", c.Diarize.Mode))
	}

	if c.Whisper.Threads < 0 {
		errs = append(errs, errors.New("whisper: threads must not be negative"))
	}
	if c.Whisper.Language = strings.ToLower(strings.TrimSpace(c.Whisper.Language)); c.Whisper.Language == "" {
		c.Whisper.Language = DefaultLanguage
	}
	if c.Whisper.Variant = strings.TrimSpace(c.Whisper.Variant); c.Whisper.Variant == "" {
		c.Whisper.Variant = DefaultModelVariant
	}

	if endpoint := strings.TrimSpace(c.Translate.Endpoint); endpoint != "" {
		if u, err := url.Parse(endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("translate: endpoint %q is not an http(s) url", endpoint))
		}
	}

	if c.Pipeline.EventBuffer <= 0 {
		c.Pipeline.EventBuffer = DefaultEventBuffer
	}
	if c.Pipeline.ShutdownGrace <= 0 {
		c.Pipeline.ShutdownGrace = DefaultShutdownGrace
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
