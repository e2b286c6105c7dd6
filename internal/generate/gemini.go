// Package generate derives summaries and repurposed content from transcripts.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"transcript-studio/internal/domain"
)

const (
	stageGenerate   = "generate"
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel    = "gemini-1.5-flash"
)

// ErrNotConfigured is returned when no generation API key is available.
var ErrNotConfigured = fmt.Errorf("%w: text generation is not configured", domain.ErrInvalidState)

// Generator completes one prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures the Gemini client.
type Options struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New returns a Gemini client, or Disabled when no API key is configured.
func New(opts Options) Generator {
	if strings.TrimSpace(opts.APIKey) == "" {
		return Disabled{}
	}
	return NewGemini(opts, nil)
}

// Disabled rejects every request with ErrNotConfigured.
type Disabled struct{}

// Generate always fails.
func (Disabled) Generate(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// Gemini calls the generateContent REST method.
type Gemini struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewGemini constructs a client; a nil http client gets one bounded by opts.Timeout.
func NewGemini(opts Options, client *http.Client) *Gemini {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Gemini{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		apiKey:   opts.APIKey,
		model:    opts.Model,
		client:   client,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends prompt and returns the concatenated text of the first candidate.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "transcript-studio")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &domain.StageError{Stage: stageGenerate, Message: "request generation", Err: redact(err, g.apiKey)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &domain.StageError{Stage: stageGenerate, Message: "read generation response", Err: err}
	}
	var out geminiResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", &domain.StageError{Stage: stageGenerate, Message: fmt.Sprintf("generation service returned %s", msg)}
	}
	if decodeErr != nil {
		return "", &domain.StageError{Stage: stageGenerate, Message: "decode generation response", Err: decodeErr}
	}
	if len(out.Candidates) == 0 {
		return "", &domain.StageError{Stage: stageGenerate, Message: "generation returned no candidates"}
	}

	var text strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return strings.TrimSpace(text.String()), nil
}

// redact keeps the API key out of transport errors, which embed the request URL.
func redact(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED"))
}
