package domain

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// LocalScheme marks a source whose media was uploaded rather than acquired.
const LocalScheme = "local://"

// SourceKind tells the orchestrator whether acquisition is needed.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// Source is a validated source reference.
type Source struct {
	Kind     SourceKind
	Ref      string
	FileName string
}

// ParseSource validates a source reference given at intake.
func ParseSource(raw string) (Source, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return Source{}, fmt.Errorf("%w: source reference is required", ErrInvalidInput)
	}

	if strings.HasPrefix(ref, LocalScheme) {
		name := strings.TrimPrefix(ref, LocalScheme)
		if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
			return Source{}, fmt.Errorf("%w: invalid local file marker %q", ErrInvalidInput, ref)
		}
		return Source{Kind: SourceLocal, Ref: ref, FileName: name}, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return Source{}, fmt.Errorf("%w: malformed source url %q", ErrInvalidInput, ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Source{}, fmt.Errorf("%w: unsupported source scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return Source{}, fmt.Errorf("%w: source url has no host", ErrInvalidInput)
	}
	return Source{Kind: SourceRemote, Ref: ref}, nil
}

// LocalSourceRef builds the marker stored for an uploaded file.
func LocalSourceRef(fileName string) string {
	return LocalScheme + fileName
}
