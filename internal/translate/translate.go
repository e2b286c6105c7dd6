// Package translate calls a LibreTranslate compatible translation service.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"transcript-studio/internal/domain"
)

const stageTranslate = "translate"

// Translator translates one piece of text.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Options configures the LibreTranslate client.
type Options struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// New returns a LibreTranslate client, or an Echo translator when no endpoint is configured.
func New(opts Options) Translator {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return Echo{}
	}
	return NewLibre(opts, nil)
}

// Echo returns its input unchanged.
type Echo struct{}

// Translate returns text unchanged.
func (Echo) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

// Libre talks to the LibreTranslate /translate endpoint.
type Libre struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewLibre constructs a client; a nil http client gets one bounded by opts.Timeout.
func NewLibre(opts Options, client *http.Client) *Libre {
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Libre{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		apiKey:   opts.APIKey,
		client:   client,
	}
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate sends one text to the service. An empty source lets the service detect it.
func (l *Libre) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if source == "" {
		source = "auto"
	}

	body, err := json.Marshal(libreRequest{Q: text, Source: source, Target: target, Format: "text", APIKey: l.apiKey})
	if err != nil {
		return "", fmt.Errorf("encode translation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "transcript-studio")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", &domain.StageError{Stage: stageTranslate, Message: "request translation", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &domain.StageError{Stage: stageTranslate, Message: "read translation response", Err: err}
	}
	var out libreResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
		return "", &domain.StageError{Stage: stageTranslate, Message: "decode translation response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", &domain.StageError{Stage: stageTranslate, Message: fmt.Sprintf("translation service returned %s", msg)}
	}
	return out.TranslatedText, nil
}
