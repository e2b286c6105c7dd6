package tts

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"transcript-studio/internal/domain"
)

const defaultLanguage = "en"

var voices = map[string]map[domain.VoiceGender]string{
	"en": {domain.VoiceGenderMale: "en-US-GuyNeural", domain.VoiceGenderFemale: "en-US-JennyNeural"},
	"es": {domain.VoiceGenderMale: "es-ES-AlvaroNeural", domain.VoiceGenderFemale: "es-ES-ElviraNeural"},
	"fr": {domain.VoiceGenderMale: "fr-FR-HenriNeural", domain.VoiceGenderFemale: "fr-FR-DeniseNeural"},
	"de": {domain.VoiceGenderMale: "de-DE-ConradNeural", domain.VoiceGenderFemale: "de-DE-KatjaNeural"},
	"ar": {domain.VoiceGenderMale: "ar-SA-HamedNeural", domain.VoiceGenderFemale: "ar-SA-ZariyahNeural"},
}

// VoiceOption is one selectable synthesized voice.
type VoiceOption struct {
	Language string             `json:"language"`
	Gender   domain.VoiceGender `json:"gender"`
	Voice    string             `json:"voice"`
}

// Voices lists every voice ordered by language then gender.
func Voices() []VoiceOption {
	langs := lo.Keys(voices)
	sort.Strings(langs)

	out := make([]VoiceOption, 0, len(langs)*2)
	for _, lang := range langs {
		for _, gender := range []domain.VoiceGender{domain.VoiceGenderFemale, domain.VoiceGenderMale} {
			out = append(out, VoiceOption{Language: lang, Gender: gender, Voice: voices[lang][gender]})
		}
	}
	return out
}

// Voice resolves a voice name. Unknown languages fall back to English and
// unknown genders to female.
func Voice(language string, gender domain.VoiceGender) string {
	byGender, ok := voices[strings.ToLower(language)]
	if !ok {
		byGender = voices[defaultLanguage]
	}
	if name, ok := byGender[ParseGender(string(gender))]; ok {
		return name
	}
	return voices[defaultLanguage][domain.VoiceGenderFemale]
}

// ParseGender maps free text to a gender, defaulting to female.
func ParseGender(raw string) domain.VoiceGender {
	if domain.VoiceGender(strings.ToLower(strings.TrimSpace(raw))) == domain.VoiceGenderMale {
		return domain.VoiceGenderMale
	}
	return domain.VoiceGenderFemale
}
