// Package layout owns the per-project on-disk directory structure.
package layout

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"transcript-studio/internal/domain"
)

const maxFileNameLen = 200

var (
	invalidFileRunes = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	multiSpace       = regexp.MustCompile(`\s+`)
)

// Layout resolves artifact paths below one data root, keyed by project id.
type Layout struct {
	Root string
}

// New returns a layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// ProjectDir is the directory owning every file of a project.
func (l Layout) ProjectDir(projectID string) string {
	return filepath.Join(l.Root, "projects", projectID)
}

// MediaDir receives downloaded media.
func (l Layout) MediaDir(projectID string) string {
	return filepath.Join(l.ProjectDir(projectID), "media")
}

// UploadPath is where an uploaded file named name is stored.
func (l Layout) UploadPath(projectID, name string) string {
	return filepath.Join(l.ProjectDir(projectID), "upload", name)
}

// DubPath is the full-dub audio file for a language and voice.
func (l Layout) DubPath(projectID, language string, gender domain.VoiceGender) string {
	return filepath.Join(l.ProjectDir(projectID), "dubs", fmt.Sprintf("dub_%s_%s.mp3", language, gender))
}

// DubSegmentDir holds per-segment dub audio for a language and voice.
func (l Layout) DubSegmentDir(projectID, language string, gender domain.VoiceGender) string {
	return filepath.Join(l.ProjectDir(projectID), "dubs", fmt.Sprintf("%s_%s", language, gender))
}

// DubSegmentPath is the audio file of segment index inside DubSegmentDir.
func (l Layout) DubSegmentPath(projectID, language string, gender domain.VoiceGender, index int) string {
	return filepath.Join(l.DubSegmentDir(projectID, language, gender), fmt.Sprintf("segment_%04d.mp3", index))
}

// ExportPath is the exported transcript file for an extension.
func (l Layout) ExportPath(projectID, ext string) string {
	return filepath.Join(l.ProjectDir(projectID), "exports", "transcript."+ext)
}

// ModelsDir holds downloaded speech models.
func (l Layout) ModelsDir() string {
	return filepath.Join(l.Root, "models")
}

// RemoveProject deletes the project directory tree.
func (l Layout) RemoveProject(projectID string) error {
	if projectID == "" {
		return fmt.Errorf("%w: empty project id", domain.ErrInvalidInput)
	}
	return os.RemoveAll(l.ProjectDir(projectID))
}

// Owns reports whether path sits inside the project directory.
func (l Layout) Owns(projectID, path string) bool {
	rel, err := filepath.Rel(l.ProjectDir(projectID), path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SanitizeFileName makes an uploaded name safe to use as a single path element.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := invalidFileRunes.ReplaceAllString(name, "_")
	clean = multiSpace.ReplaceAllString(strings.TrimSpace(clean), "_")
	clean = strings.TrimLeft(clean, ".")
	if len(clean) > maxFileNameLen {
		ext := filepath.Ext(clean)
		clean = clean[:maxFileNameLen-len(ext)] + ext
	}
	if clean == "" {
		return "upload"
	}
	return clean
}

// WriteFileAtomic writes data to a temp file in the destination directory and renames it.
// Parent directories are created as needed.
func WriteFileAtomic(destPath string, data []byte, perm os.FileMode) error {
	_, err := CopyFileAtomic(destPath, bytes.NewReader(data), perm)
	return err
}

// CopyFileAtomic streams r into destPath the same way WriteFileAtomic does and
// returns the number of bytes written.
func CopyFileAtomic(destPath string, r io.Reader, perm os.FileMode) (int64, error) {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return n, fmt.Errorf("write temp file: %w", err)
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	_ = os.Chmod(tmpName, perm)
	if err := os.Rename(tmpName, destPath); err != nil {
		return n, fmt.Errorf("rename temp file: %w", err)
	}
	return n, nil
}
