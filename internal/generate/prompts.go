package generate

import (
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"
)

// SummaryStyle selects the summary prompt.
type SummaryStyle string

const (
	StyleConcise      SummaryStyle = "concise"
	StyleDetailed     SummaryStyle = "detailed"
	StyleBulletPoints SummaryStyle = "bullet_points"
)

// Platform selects the social content prompt.
type Platform string

const (
	PlatformTwitter            Platform = "twitter"
	PlatformLinkedIn           Platform = "linkedin"
	PlatformYouTubeDescription Platform = "youtube_description"
)

// DefaultKeyPoints is used when no positive count is requested.
const DefaultKeyPoints = 5

var summaryTemplates = map[SummaryStyle]*fasttemplate.Template{
	StyleConcise:      fasttemplate.New("Summarize this transcript in 2-3 sentences:\n\n{{text}}", "{{", "}}"),
	StyleDetailed:     fasttemplate.New("Provide a detailed summary of this transcript in 4-6 paragraphs:\n\n{{text}}", "{{", "}}"),
	StyleBulletPoints: fasttemplate.New("Summarize this transcript as 5-10 bullet points:\n\n{{text}}", "{{", "}}"),
}

var keyPointsTemplate = fasttemplate.New(`Extract the {{count}} most important key points or takeaways from this transcript.
Format as a numbered list.

Transcript:
{{text}}`, "{{", "}}")

var socialTemplates = map[Platform]*fasttemplate.Template{
	PlatformTwitter: fasttemplate.New(`Create a compelling Twitter/X thread (5-7 tweets) from this transcript.
Each tweet should be under 280 characters.
Use engaging hooks and include relevant hashtags.

Transcript:
{{text}}`, "{{", "}}"),
	PlatformLinkedIn: fasttemplate.New(`Create a professional LinkedIn post from this transcript.
Include key insights and a call to action.
Keep it under 1300 characters.

Transcript:
{{text}}`, "{{", "}}"),
	PlatformYouTubeDescription: fasttemplate.New(`Create a YouTube video description from this transcript.
Include:
- Hook/summary (2-3 sentences)
- Key timestamps (make up reasonable ones)
- Call to action
- Relevant tags

Transcript:
{{text}}`, "{{", "}}"),
}

var blogTemplate = fasttemplate.New(`Transform this transcript into a well-structured blog post.
Include:
- Catchy title
- Introduction
- Main sections with headings
- Conclusion
- Call to action

Format in Markdown.

Transcript:
{{text}}`, "{{", "}}")

// ParseStyle maps free text to a style; unknown values fall back to concise.
func ParseStyle(raw string) SummaryStyle {
	style := SummaryStyle(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := summaryTemplates[style]; ok {
		return style
	}
	return StyleConcise
}

// ParsePlatform maps free text to a platform; unknown values fall back to twitter.
func ParsePlatform(raw string) Platform {
	platform := Platform(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := socialTemplates[platform]; ok {
		return platform
	}
	return PlatformTwitter
}

// SummaryPrompt renders the summary prompt for style.
func SummaryPrompt(style SummaryStyle, text string) string {
	return summaryTemplates[ParseStyle(string(style))].ExecuteString(map[string]interface{}{"text": text})
}

// KeyPointsPrompt renders the key points prompt.
func KeyPointsPrompt(count int, text string) string {
	if count <= 0 {
		count = DefaultKeyPoints
	}
	return keyPointsTemplate.ExecuteString(map[string]interface{}{
		"count": strconv.Itoa(count),
		"text":  text,
	})
}

// SocialPrompt renders the social content prompt for platform.
func SocialPrompt(platform Platform, text string) string {
	return socialTemplates[ParsePlatform(string(platform))].ExecuteString(map[string]interface{}{"text": text})
}

// BlogPrompt renders the blog post prompt.
func BlogPrompt(text string) string {
	return blogTemplate.ExecuteString(map[string]interface{}{"text": text})
}

// ParseKeyPoints splits a generated list into its non-empty lines.
func ParseKeyPoints(raw string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
