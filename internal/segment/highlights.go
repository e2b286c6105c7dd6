package segment

import (
	"sort"
	"strings"

	"transcript-studio/internal/domain"
)

var highlightKeywords = []string{
	"key", "important", "crucial", "amazing", "incredible", "secret",
	"tip", "trick", "hack", "solution", "problem", "answer", "why",
	"how to", "best", "worst", "never", "always", "must", "should",
	"first", "finally", "biggest", "smallest", "most", "least",
}

// Highlight is a scored moment worth clipping or sharing.
type Highlight struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Highlights scores segments by keywords and punctuation and returns the top count.
// Segments near the edges of the transcript are damped.
func Highlights(segments []domain.Segment, count int) []Highlight {
	if count <= 0 || len(segments) == 0 {
		return nil
	}

	scored := make([]Highlight, 0, len(segments))
	for i, seg := range segments {
		text := strings.ToLower(seg.Text)
		score := 0.0
		for _, kw := range highlightKeywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		score += float64(strings.Count(text, "!")) * 0.5
		score += float64(strings.Count(text, "?")) * 0.3

		switch {
		case i < 3:
			score *= 0.5
		case i > len(segments)-3:
			score *= 0.7
		}

		if score > 0 {
			scored = append(scored, Highlight{
				Index: i,
				Start: seg.Start,
				End:   seg.End,
				Text:  seg.Text,
				Score: score,
			})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > count {
		scored = scored[:count]
	}
	return scored
}

// KeywordScore is the fraction of distinct query terms found in text or title.
func KeywordScore(query, text, title string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(terms))
	text = strings.ToLower(text)
	title = strings.ToLower(title)

	matches := 0
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		if strings.Contains(text, term) || strings.Contains(title, term) {
			matches++
		}
	}
	return float64(matches) / float64(len(seen))
}
