package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/segment"
)

const (
	// DefaultSearchResults bounds Search when no positive topK is given.
	DefaultSearchResults = 5
	// DefaultHighlights bounds Highlights when no positive count is given.
	DefaultHighlights = 5

	minSearchableText = 20
)

// SearchHit is one matching segment of a completed project.
type SearchHit struct {
	ProjectID    string  `json:"projectId"`
	ProjectTitle string  `json:"projectTitle"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker,omitempty"`
	Score        float64 `json:"score"`
}

// Search ranks segments of every completed project by the share of query terms they contain.
func (d *Dispatcher) Search(ctx context.Context, query string, topK int) (out []SearchHit, err error) {
	defer func() { d.telemetry.Enrichment(OpSearch, err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is empty", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = DefaultSearchResults
	}

	projects, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}

	hits := []SearchHit{}
	for _, project := range projects {
		if project.Status != domain.ProjectStatusCompleted {
			continue
		}
		transcript, err := d.store.LatestTranscript(ctx, project.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, seg := range transcript.Segments {
			text := strings.TrimSpace(seg.Text)
			if len(text) <= minSearchableText {
				continue
			}
			score := segment.KeywordScore(query, text, project.Title)
			if score <= 0 {
				continue
			}
			hits = append(hits, SearchHit{
				ProjectID:    project.ID,
				ProjectTitle: project.Title,
				Start:        seg.Start,
				End:          seg.End,
				Text:         text,
				Speaker:      seg.Speaker,
				Score:        score,
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Highlights returns the count best scored moments of a transcript.
func (d *Dispatcher) Highlights(ctx context.Context, projectID string, count int) (out []segment.Highlight, err error) {
	defer func() { d.telemetry.Enrichment(OpHighlights, err) }()

	if count <= 0 {
		count = DefaultHighlights
	}
	_, transcript, err := d.completed(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out = segment.Highlights(transcript.Segments, count)
	if out == nil {
		out = []segment.Highlight{}
	}
	return out, nil
}
