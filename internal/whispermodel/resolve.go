package whispermodel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// ErrNoModel reports that a path holds no usable ggml model.
var ErrNoModel = errors.New("no whisper model")

var modelExts = []string{".bin", ".gguf"}

// Resolve turns a configured model path into a model file. A directory
// resolves to its lexically first .bin or .gguf file.
func Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: model path is empty", ErrNoModel)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoModel, path)
		}
		return "", fmt.Errorf("access model path %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", path, err)
	}
	names := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (string, bool) {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		return entry.Name(), !entry.IsDir() && slices.Contains(modelExts, ext)
	})
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no .bin or .gguf file in %s", ErrNoModel, path)
	}
	slices.Sort(names)
	return filepath.Join(path, names[0]), nil
}
