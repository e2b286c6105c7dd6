package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProjectStatus tracks each pipeline stage of a project.
type ProjectStatus string

const (
	ProjectStatusCreated     ProjectStatus = "created"
	ProjectStatusDownloading ProjectStatus = "downloading"
	ProjectStatusProcessing  ProjectStatus = "processing"
	ProjectStatusCompleted   ProjectStatus = "completed"
	ProjectStatusFailed      ProjectStatus = "failed"
)

// ParseProjectStatus rejects anything outside the five defined states.
func ParseProjectStatus(raw string) (ProjectStatus, error) {
	status := ProjectStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown project status %q", ErrInvalidInput, raw)
	}
	return status, nil
}

// Valid reports whether the status is one of the defined states.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusCreated, ProjectStatusDownloading, ProjectStatusProcessing,
		ProjectStatusCompleted, ProjectStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions leave the status.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusFailed
}

// Project is one unit of pipeline work.
type Project struct {
	ID           string        `json:"id"`
	SourceRef    string        `json:"url"`
	Title        string        `json:"title,omitempty"`
	ThumbnailURL string        `json:"thumbnailUrl,omitempty"`
	Duration     float64       `json:"duration,omitempty"`
	Status       ProjectStatus `json:"status"`
	MediaPath    string        `json:"mediaPath,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Segment is one timed span of spoken content, times in seconds.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker,omitempty"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcript is one completed transcription result for a project.
type Transcript struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"projectId"`
	Language           string    `json:"language"`
	LanguageConfidence float64   `json:"languageConfidence,omitempty"`
	Segments           []Segment `json:"segments"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Clone returns a copy that shares no segment storage with t.
func (t Transcript) Clone() Transcript {
	out := t
	if t.Segments != nil {
		out.Segments = make([]Segment, len(t.Segments))
		copy(out.Segments, t.Segments)
	}
	return out
}

// Media is what the acquisition collaborator hands back for a source.
type Media struct {
	Title        string
	Duration     float64
	ThumbnailURL string
	Path         string
}

// AcquireRequest names the source and the per-project directory to download into.
type AcquireRequest struct {
	ProjectID string
	SourceRef string
	Dir       string
}

// TranscriptionResult is the output of the speech-to-text collaborator.
type TranscriptionResult struct {
	Language           string
	LanguageConfidence float64
	Segments           []Segment
}

// SpeakerSpan is one speaker-labelled interval produced by diarization.
type SpeakerSpan struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// VoiceGender selects a synthesized voice.
type VoiceGender string

const (
	VoiceGenderFemale VoiceGender = "female"
	VoiceGenderMale   VoiceGender = "male"
)

// SpeechRequest asks the TTS collaborator to write synthesized audio to OutputPath.
type SpeechRequest struct {
	Text       string
	Language   string
	Gender     VoiceGender
	OutputPath string
}
