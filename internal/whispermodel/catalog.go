// Package whispermodel lists and downloads whisper.cpp ggml models.
package whispermodel

import (
	"strings"

	"github.com/samber/lo"

	"transcript-studio/internal/domain"
)

// DefaultBaseURL hosts the upstream ggml model files.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

type preset struct {
	id, name, size, description string
}

var presets = []preset{
	{"tiny.en", "Tiny (English)", "~75 MB", "Fastest, English-only model."},
	{"tiny", "Tiny (Multilingual)", "~75 MB", "Fastest multilingual model."},
	{"base.en", "Base (English)", "~142 MB", "Balanced speed/quality, English-only."},
	{"base", "Base (Multilingual)", "~142 MB", "Balanced speed/quality, multilingual."},
	{"small.en", "Small (English)", "~466 MB", "Higher quality, English-only."},
	{"small", "Small (Multilingual)", "~466 MB", "Higher quality multilingual model."},
	{"medium.en", "Medium (English)", "~1.5 GB", "High quality, English-only."},
	{"medium", "Medium (Multilingual)", "~1.5 GB", "High quality multilingual model."},
	{"large-v2", "Large v2", "~2.9 GB", "Very high quality multilingual model."},
	{"large-v3", "Large v3", "~2.9 GB", "Latest large multilingual model."},
	{"large-v3-turbo", "Large v3 Turbo", "~1.6 GB", "Faster large-v3 variant."},
}

// FileName is the ggml file name of a model id.
func FileName(id string) string {
	return "ggml-" + id + ".bin"
}

// Catalog returns the built-in presets with download URLs below baseURL.
func Catalog(baseURL string) []domain.WhisperModelOption {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return lo.Map(presets, func(p preset, _ int) domain.WhisperModelOption {
		return domain.WhisperModelOption{
			ID:           p.id,
			Name:         p.name,
			FileName:     FileName(p.id),
			URL:          baseURL + "/" + FileName(p.id),
			SizeLabel:    p.size,
			Description:  p.description,
			Multilingual: !strings.HasSuffix(p.id, ".en"),
		}
	})
}

// Lookup finds a preset by id.
func Lookup(baseURL, id string) (domain.WhisperModelOption, bool) {
	id = strings.TrimSpace(id)
	return lo.Find(Catalog(baseURL), func(m domain.WhisperModelOption) bool {
		return m.ID == id
	})
}
