package whispermodel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/layout"
)

const defaultDownloadTimeout = 45 * time.Minute

// Manager keeps models in one directory and downloads missing ones.
type Manager struct {
	dir     string
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     *slog.Logger

	stat func(string) (os.FileInfo, error)
}

// Options configures a Manager.
type Options struct {
	Dir     string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// NewManager creates a model manager rooted at opts.Dir.
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDownloadTimeout
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		dir:     opts.Dir,
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
		client:  opts.Client,
		log:     opts.Logger.With("component", "whispermodel"),
		stat:    os.Stat,
	}
}

// Dir is the directory models are downloaded into.
func (m *Manager) Dir() string {
	return m.dir
}

// List returns the catalog with downloaded flags for models found in the
// managed directory or next to extraPaths (model files or directories).
func (m *Manager) List(extraPaths ...string) []domain.WhisperModelOption {
	models := Catalog(m.baseURL)
	dirs := []string{m.dir}
	for _, path := range extraPaths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if info, err := m.stat(path); err == nil && !info.IsDir() {
			path = filepath.Dir(path)
		}
		dirs = append(dirs, path)
	}
	for i := range models {
		for _, dir := range dirs {
			candidate := filepath.Join(dir, models[i].FileName)
			info, err := m.stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			models[i].Downloaded = true
			models[i].LocalPath = candidate
			break
		}
	}
	return models
}

// Ensure returns the local path of model id, downloading it when absent.
func (m *Manager) Ensure(ctx context.Context, id string) (string, error) {
	model, ok := Lookup(m.baseURL, id)
	if !ok {
		return "", fmt.Errorf("%w: unknown whisper model %q", domain.ErrInvalidInput, id)
	}

	target := filepath.Join(m.dir, model.FileName)
	if info, err := m.stat(target); err == nil && !info.IsDir() && info.Size() > 0 {
		return target, nil
	}

	m.log.Info("downloading whisper model", "model", model.ID, "size", model.SizeLabel, "path", target)
	started := time.Now()
	written, err := m.download(ctx, target, model.URL)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", model.Name, err)
	}
	m.log.Info("whisper model ready", "model", model.ID, "bytes", bytes.Format(written), "took", time.Since(started).Round(time.Second))
	return target, nil
}

// download streams sourceURL into destinationPath. A short body never
// replaces an existing file.
func (m *Manager) download(ctx context.Context, destinationPath, sourceURL string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "transcript-studio")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if resp.ContentLength > 0 {
		body = &sizedReader{r: resp.Body, want: resp.ContentLength}
	}
	return layout.CopyFileAtomic(destinationPath, body, 0o644)
}

// sizedReader turns an early EOF into io.ErrUnexpectedEOF.
type sizedReader struct {
	r    io.Reader
	want int64
	got  int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.got += int64(n)
	if errors.Is(err, io.EOF) && s.got < s.want {
		return n, fmt.Errorf("truncated download: got %s of %s: %w", bytes.Format(s.got), bytes.Format(s.want), io.ErrUnexpectedEOF)
	}
	return n, err
}
