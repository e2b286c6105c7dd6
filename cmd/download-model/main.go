package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"transcript-studio/internal/whispermodel"
)

func main() {
	var (
		variant = flag.String("variant", "base", "whisper.cpp model id, e.g. tiny.en, base, large-v3-turbo")
		output  = flag.String("dir", "models", "directory the ggml file is stored in")
		baseURL = flag.String("base-url", "", "mirror hosting ggml-<id>.bin files")
		list    = flag.Bool("list", false, "list known models and exit")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download-model: --dir must not be empty")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	manager := whispermodel.NewManager(whispermodel.Options{
		Dir:     filepath.Clean(*output),
		BaseURL: *baseURL,
		Logger:  logger,
	})

	if *list {
		for _, m := range manager.List() {
			mark := " "
			if m.Downloaded {
				mark = "*"
			}
			fmt.Printf("%s %-16s %-9s %s\n", mark, m.ID, m.SizeLabel, m.Description)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	path, err := manager.Ensure(ctx, *variant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download-model: ensure %q: %v\n", *variant, err)
		os.Exit(1)
	}
	fmt.Printf("Model %q ready at %s\n", *variant, path)
}
