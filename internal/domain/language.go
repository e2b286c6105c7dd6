package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage validates a BCP 47 tag and returns its base language code.
func NormalizeLanguage(raw string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")
	if trimmed == "" {
		return "", fmt.Errorf("%w: language is required", ErrInvalidInput)
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, raw)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, raw)
	}
	return base.String(), nil
}
