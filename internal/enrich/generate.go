package enrich

import (
	"context"
	"fmt"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/generate"
	"transcript-studio/internal/segment"
)

// Summarize asks the generator for a summary in style.
func (d *Dispatcher) Summarize(ctx context.Context, projectID string, style generate.SummaryStyle) (out string, err error) {
	defer func() { d.telemetry.Enrichment(OpSummarize, err) }()
	return d.generate(ctx, projectID, func(text string) string {
		return generate.SummaryPrompt(style, text)
	})
}

// KeyPoints asks the generator for count key points, one per returned line.
func (d *Dispatcher) KeyPoints(ctx context.Context, projectID string, count int) (out []string, err error) {
	defer func() { d.telemetry.Enrichment(OpKeyPoints, err) }()
	raw, err := d.generate(ctx, projectID, func(text string) string {
		return generate.KeyPointsPrompt(count, text)
	})
	if err != nil {
		return nil, err
	}
	return generate.ParseKeyPoints(raw), nil
}

// Social asks the generator for a post suited to platform.
func (d *Dispatcher) Social(ctx context.Context, projectID string, platform generate.Platform) (out string, err error) {
	defer func() { d.telemetry.Enrichment(OpSocial, err) }()
	return d.generate(ctx, projectID, func(text string) string {
		return generate.SocialPrompt(platform, text)
	})
}

// Blog asks the generator for a markdown blog post.
func (d *Dispatcher) Blog(ctx context.Context, projectID string) (out string, err error) {
	defer func() { d.telemetry.Enrichment(OpBlog, err) }()
	return d.generate(ctx, projectID, generate.BlogPrompt)
}

func (d *Dispatcher) generate(ctx context.Context, projectID string, prompt func(text string) string) (string, error) {
	_, transcript, err := d.completed(ctx, projectID)
	if err != nil {
		return "", err
	}
	text := segment.FullText(transcript.Segments)
	if text == "" {
		return "", fmt.Errorf("%w: transcript of project %s has no text", domain.ErrInvalidInput, projectID)
	}
	return d.generator.Generate(ctx, prompt(text))
}
