// Package diagnostics checks the external tools, model and directories the
// studio depends on.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/lo"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/whispermodel"
)

const storePingTimeout = 5 * time.Second

// Tool is one executable to look up.
type Tool struct {
	Name     string
	Path     string
	Optional bool
	Hint     string
}

// Target lists everything one diagnostics run inspects.
type Target struct {
	Tools     []Tool
	ModelPath string
	DataDir   string
	// Store is pinged when set.
	Store func(context.Context) error
}

// Checker runs environment checks. OS access goes through fields so tests
// can replace it.
type Checker struct {
	lookPath     func(string) (string, error)
	resolveModel func(string) (string, error)
	mkdirAll     func(string, os.FileMode) error
	createTemp   func(string, string) (*os.File, error)
	remove       func(string) error
	now          func() time.Time
}

// NewChecker returns a checker bound to the real filesystem and PATH.
func NewChecker() *Checker {
	return &Checker{
		lookPath:     exec.LookPath,
		resolveModel: whispermodel.Resolve,
		mkdirAll:     os.MkdirAll,
		createTemp:   os.CreateTemp,
		remove:       os.Remove,
		now:          time.Now,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, target Target) domain.DiagnosticReport {
	items := lo.Map(target.Tools, func(tool Tool, _ int) domain.DiagnosticItem {
		return c.checkTool(tool)
	})
	items = append(items, c.checkModel(target.ModelPath), c.checkDataDir(target.DataDir))
	if target.Store != nil {
		items = append(items, checkStore(ctx, target.Store))
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Warnings: lo.CountBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusWarn
		}),
		Items: items,
	}
}

func pass(id, name, msg string) domain.DiagnosticItem {
	return domain.DiagnosticItem{ID: id, Name: name, Status: domain.DiagnosticStatusPass, Message: msg}
}

func fail(id, name, msg, hint string) domain.DiagnosticItem {
	return domain.DiagnosticItem{ID: id, Name: name, Status: domain.DiagnosticStatusFail, Message: msg, Hint: hint}
}

func (c *Checker) checkTool(tool Tool) domain.DiagnosticItem {
	id := "tool_" + tool.Name
	bin := lo.Ternary(strings.TrimSpace(tool.Path) != "", strings.TrimSpace(tool.Path), tool.Name)

	path, err := c.lookPath(bin)
	if err == nil {
		item := pass(id, tool.Name, "found at "+path)
		item.Optional = tool.Optional
		return item
	}

	hint := lo.CoalesceOrEmpty(tool.Hint, "install it on PATH or into <data_dir>/bin, or configure its path under tools")
	item := fail(id, tool.Name, "not found: "+bin, hint)
	if tool.Optional {
		item.Status = domain.DiagnosticStatusWarn
		item.Optional = true
	}
	return item
}

func (c *Checker) checkModel(modelPath string) domain.DiagnosticItem {
	const id, name = "model_path", "Whisper model"

	resolved, err := c.resolveModel(modelPath)
	switch {
	case err == nil:
		return pass(id, name, "using "+resolved)
	case errors.Is(err, whispermodel.ErrNoModel):
		return fail(id, name, err.Error(), "set whisper.model_path, enable whisper.auto_download, or run download-model")
	default:
		return fail(id, name, err.Error(), "check permissions on the model path")
	}
}

func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	const id, name = "data_dir", "Data directory"

	if strings.TrimSpace(dataDir) == "" {
		return fail(id, name, "data directory is empty", "set data_dir")
	}
	if err := c.mkdirAll(dataDir, 0o755); err != nil {
		return fail(id, name, fmt.Sprintf("cannot create %s: %v", dataDir, err), "choose a writable location")
	}
	probe, err := c.createTemp(dataDir, ".write-check-*")
	if err != nil {
		return fail(id, name, fmt.Sprintf("%s is not writable: %v", dataDir, err), "choose a writable location")
	}
	_ = probe.Close()
	_ = c.remove(probe.Name())

	return pass(id, name, "writable: "+dataDir)
}

func checkStore(ctx context.Context, ping func(context.Context) error) domain.DiagnosticItem {
	const id, name = "store", "Artifact store"

	ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return fail(id, name, fmt.Sprintf("unreachable: %v", err), "check the database settings")
	}
	return pass(id, name, "reachable")
}
