package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/jobs"
	"transcript-studio/internal/layout"
	"transcript-studio/internal/store"
	"transcript-studio/internal/telemetry"
)

type fakeAcquirer struct {
	fn func(ctx context.Context, req domain.AcquireRequest) (domain.Media, error)
}

func (f fakeAcquirer) Acquire(ctx context.Context, req domain.AcquireRequest) (domain.Media, error) {
	return f.fn(ctx, req)
}

type fakeTranscriber struct {
	calls atomic.Int32
	fn    func(ctx context.Context, mediaPath string) (domain.TranscriptionResult, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mediaPath string) (domain.TranscriptionResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, mediaPath)
}

type fakeProber struct {
	duration float64
	err      error
}

func (f fakeProber) Duration(context.Context, string) (float64, error) {
	return f.duration, f.err
}

// flakyStore fails a number of writes before delegating to the wrapped store.
type flakyStore struct {
	store.Store
	failUpdates atomic.Int32
	failSaves   atomic.Int32
}

func (s *flakyStore) Update(ctx context.Context, id string, fn func(*domain.Project) error) (domain.Project, error) {
	if s.failUpdates.Add(-1) >= 0 {
		return domain.Project{}, domain.ErrPersistence
	}
	return s.Store.Update(ctx, id, fn)
}

func (s *flakyStore) SaveTranscript(ctx context.Context, t domain.Transcript) (domain.Transcript, error) {
	if s.failSaves.Add(-1) >= 0 {
		return domain.Transcript{}, domain.ErrPersistence
	}
	return s.Store.SaveTranscript(ctx, t)
}

// failedWriteStore refuses every write that would move a project to FAILED.
type failedWriteStore struct {
	store.Store
}

func (s failedWriteStore) Update(ctx context.Context, id string, fn func(*domain.Project) error) (domain.Project, error) {
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := fn(&current); err == nil && current.Status == domain.ProjectStatusFailed {
		return domain.Project{}, fmt.Errorf("%w: disk full", domain.ErrPersistence)
	}
	return s.Store.Update(ctx, id, fn)
}

func twoSegments(context.Context, string) (domain.TranscriptionResult, error) {
	return domain.TranscriptionResult{
		Language: "en",
		Segments: []domain.Segment{
			{Start: 0, End: 2, Text: "hello"},
			{Start: 2, End: 4, Text: "world"},
		},
	}, nil
}

type harness struct {
	orch        *Orchestrator
	store       store.Store
	layout      layout.Layout
	telemetry   *telemetry.Recorder
	transcriber *fakeTranscriber
}

func newHarness(t *testing.T, st store.Store, acquire fakeAcquirer) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		store:       st,
		layout:      layout.New(t.TempDir()),
		telemetry:   telemetry.NewRecorder(logger),
		transcriber: &fakeTranscriber{fn: twoSegments},
	}
	orch, err := New(Deps{
		Store:       st,
		Layout:      h.layout,
		Acquirer:    acquire,
		Transcriber: h.transcriber,
		Prober:      fakeProber{duration: 4},
		Telemetry:   h.telemetry,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func (h *harness) project(t *testing.T, id string) domain.Project {
	t.Helper()
	p, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return p
}

func okAcquirer() fakeAcquirer {
	return fakeAcquirer{fn: func(_ context.Context, req domain.AcquireRequest) (domain.Media, error) {
		return domain.Media{Title: "Talk", Duration: 4, Path: req.Dir + "/media.mp3"}, nil
	}}
}

// TestUploadRunsToCompleted covers the local file path: CREATED -> PROCESSING -> COMPLETED.
func TestUploadRunsToCompleted(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	ctx := context.Background()

	p, err := h.orch.IntakeUpload(ctx, "clip.mp4", strings.NewReader("fake media"))
	if err != nil {
		t.Fatalf("IntakeUpload() error = %v", err)
	}
	if p.SourceRef != "local://clip.mp4" {
		t.Fatalf("source = %q", p.SourceRef)
	}
	h.wait(t)

	got := h.project(t, p.ID)
	if got.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Title != "clip" || got.Duration != 4 {
		t.Fatalf("project = %+v, want title clip duration 4", got)
	}
	if got.MediaPath != h.layout.UploadPath(p.ID, "clip.mp4") {
		t.Fatalf("media path = %q", got.MediaPath)
	}
	data, err := os.ReadFile(got.MediaPath)
	if err != nil || string(data) != "fake media" {
		t.Fatalf("uploaded file = %q, %v", data, err)
	}

	tr, err := h.store.LatestTranscript(ctx, p.ID)
	if err != nil {
		t.Fatalf("LatestTranscript() error = %v", err)
	}
	if len(tr.Segments) != 2 || tr.Language != "en" {
		t.Fatalf("transcript = %+v", tr)
	}

	var statuses []domain.ProjectStatus
	for _, ev := range h.orch.Events().ForProject(p.ID, 0) {
		if ev.Type == jobs.EventTypeStatus {
			statuses = append(statuses, ev.Status)
		}
	}
	want := []domain.ProjectStatus{domain.ProjectStatusProcessing, domain.ProjectStatusCompleted}
	if len(statuses) != len(want) || statuses[0] != want[0] || statuses[1] != want[1] {
		t.Fatalf("status events = %v, want %v", statuses, want)
	}
}

// TestRemoteRunStoresMetadata covers DOWNLOADING -> PROCESSING -> COMPLETED.
func TestRemoteRunStoresMetadata(t *testing.T) {
	var gotReq domain.AcquireRequest
	h := newHarness(t, store.NewMemory(), fakeAcquirer{fn: func(_ context.Context, req domain.AcquireRequest) (domain.Media, error) {
		gotReq = req
		return domain.Media{Title: "Talk", Duration: 61, ThumbnailURL: "https://img/x.jpg", Path: req.Dir + "/media.mp3"}, nil
	}})

	p, err := h.orch.Intake(context.Background(), "https://example.com/watch?v=1")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	h.wait(t)

	got := h.project(t, p.ID)
	if got.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Title != "Talk" || got.Duration != 61 || got.ThumbnailURL != "https://img/x.jpg" {
		t.Fatalf("project = %+v", got)
	}
	if gotReq.Dir != h.layout.MediaDir(p.ID) || gotReq.SourceRef != "https://example.com/watch?v=1" {
		t.Fatalf("acquire request = %+v", gotReq)
	}
}

// TestAcquisitionFailureMarksFailed leaves no transcript behind.
func TestAcquisitionFailureMarksFailed(t *testing.T) {
	h := newHarness(t, store.NewMemory(), fakeAcquirer{fn: func(context.Context, domain.AcquireRequest) (domain.Media, error) {
		return domain.Media{}, &domain.StageError{
			Stage:      "acquire",
			Message:    "yt-dlp failed",
			CommandLog: domain.CommandLog{Command: "yt-dlp", ExitCode: 1, Stderr: "ERROR: unavailable"},
		}
	}})
	ctx := context.Background()

	p, err := h.orch.Intake(ctx, "https://example.com/gone")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	h.wait(t)

	if got := h.project(t, p.ID); got.Status != domain.ProjectStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if _, err := h.store.LatestTranscript(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LatestTranscript() error = %v, want not found", err)
	}
	if h.transcriber.calls.Load() != 0 {
		t.Fatalf("transcriber called after acquisition failure")
	}

	var errEvent *jobs.Event
	for _, ev := range h.orch.Events().ForProject(p.ID, 0) {
		if ev.Type == jobs.EventTypeError {
			e := ev
			errEvent = &e
		}
	}
	if errEvent == nil || errEvent.Stage != StageAcquire || errEvent.Command != "yt-dlp" || errEvent.ExitCode != 1 {
		t.Fatalf("error event = %+v", errEvent)
	}
	if snap := h.telemetry.Snapshot(); snap.Failed != 1 || snap.Active != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// TestTranscriptionFailureMarksFailed fails from PROCESSING.
func TestTranscriptionFailureMarksFailed(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	h.transcriber.fn = func(context.Context, string) (domain.TranscriptionResult, error) {
		return domain.TranscriptionResult{}, &domain.StageError{Stage: "transcribe", Message: "whisper crashed"}
	}

	p, err := h.orch.Intake(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	h.wait(t)

	if got := h.project(t, p.ID); got.Status != domain.ProjectStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

// TestSubmitAllowsOneExecutionPerProject races submissions of one id.
func TestSubmitAllowsOneExecutionPerProject(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	ctx := context.Background()

	release := make(chan struct{})
	h.transcriber.fn = func(ctx context.Context, path string) (domain.TranscriptionResult, error) {
		<-release
		return twoSegments(ctx, path)
	}

	p, err := h.store.Create(ctx, domain.Project{SourceRef: "https://example.com/a"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.orch.Submit(p.ID)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, jobs.ErrJobAlreadyRunning):
				rejected.Add(1)
			default:
				t.Errorf("Submit() error = %v", err)
			}
		}()
	}
	wg.Wait()
	close(release)
	h.wait(t)

	if accepted.Load() != 1 || rejected.Load() != 15 {
		t.Fatalf("accepted = %d rejected = %d, want 1 and 15", accepted.Load(), rejected.Load())
	}

	// A completed project refuses its first transition, so resubmission is a no-op.
	if err := h.orch.Submit(p.ID); err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	h.wait(t)

	if h.transcriber.calls.Load() != 1 {
		t.Fatalf("transcriber calls = %d, want 1", h.transcriber.calls.Load())
	}
	if got := h.project(t, p.ID); got.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if snap := h.telemetry.Snapshot(); snap.Completed != 1 || snap.Failed != 0 || snap.Active != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// TestPersistenceIsRetriedOnce recovers from a single failed write.
func TestPersistenceIsRetriedOnce(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory()}
	h := newHarness(t, st, okAcquirer())
	st.failUpdates.Store(1)
	st.failSaves.Store(1)

	p, err := h.orch.Intake(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	h.wait(t)

	if got := h.project(t, p.ID); got.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if snap := h.telemetry.Snapshot(); snap.PersistenceRetries != 2 {
		t.Fatalf("persistence retries = %d, want 2", snap.PersistenceRetries)
	}
}

// TestPersistentWriteFailureMarksFailed gives up after the retry.
func TestPersistentWriteFailureMarksFailed(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory()}
	h := newHarness(t, st, okAcquirer())
	st.failSaves.Store(2)

	p, err := h.orch.Intake(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	h.wait(t)

	if got := h.project(t, p.ID); got.Status != domain.ProjectStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if _, err := st.LatestTranscript(context.Background(), p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LatestTranscript() error = %v, want not found", err)
	}
}

// TestUnrecordableFailureKeepsLastStatus leaves the project in its last
// committed status when the FAILED write itself cannot be stored.
func TestUnrecordableFailureKeepsLastStatus(t *testing.T) {
	st := failedWriteStore{Store: store.NewMemory()}
	h := newHarness(t, st, fakeAcquirer{fn: func(context.Context, domain.AcquireRequest) (domain.Media, error) {
		return domain.Media{}, errors.New("boom")
	}})
	ctx := context.Background()

	p, err := h.orch.Intake(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	h.wait(t)

	if got := h.project(t, p.ID); got.Status != domain.ProjectStatusDownloading {
		t.Fatalf("status = %s, want downloading", got.Status)
	}
	if h.orch.Running(p.ID) {
		t.Fatal("execution slot still held")
	}
	if _, err := st.LatestTranscript(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LatestTranscript() error = %v, want not found", err)
	}
	snap := h.telemetry.Snapshot()
	if snap.Anomalies != 1 || snap.PersistenceRetries != 1 || snap.Active != 0 {
		t.Fatalf("snapshot = %+v, want one anomaly after one retry", snap)
	}
}

// TestPanicBecomesFailure keeps a panicking collaborator from killing the process.
func TestPanicBecomesFailure(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	h.transcriber.fn = func(context.Context, string) (domain.TranscriptionResult, error) {
		panic("decoder exploded")
	}

	p, err := h.orch.Intake(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	h.wait(t)

	if got := h.project(t, p.ID); got.Status != domain.ProjectStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if h.orch.Running(p.ID) {
		t.Fatalf("execution slot still held after panic")
	}
	if snap := h.telemetry.Snapshot(); snap.Failed != 1 {
		t.Fatalf("failed = %d, want 1", snap.Failed)
	}
}

// TestRemoveDuringExecutionAbortsQuietly drops the execution once the record is gone.
func TestRemoveDuringExecutionAbortsQuietly(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.transcriber.fn = func(ctx context.Context, path string) (domain.TranscriptionResult, error) {
		close(entered)
		<-release
		return twoSegments(ctx, path)
	}

	p, err := h.orch.Intake(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	<-entered
	if _, err := h.orch.Remove(ctx, p.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	close(release)
	h.wait(t)

	if _, err := h.store.Get(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() error = %v, want not found", err)
	}
	if snap := h.telemetry.Snapshot(); snap.Anomalies != 0 || snap.Active != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// TestRemoveDuringAcquisitionReclaimsMedia cleans up files the acquirer
// wrote after the project directory was already removed.
func TestRemoveDuringAcquisitionReclaimsMedia(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, store.NewMemory(), fakeAcquirer{fn: func(_ context.Context, req domain.AcquireRequest) (domain.Media, error) {
		close(entered)
		<-release
		path := filepath.Join(req.Dir, "media.mp3")
		if err := os.MkdirAll(req.Dir, 0o755); err != nil {
			return domain.Media{}, err
		}
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			return domain.Media{}, err
		}
		return domain.Media{Title: "Talk", Path: path}, nil
	}})
	ctx := context.Background()

	p, err := h.orch.Intake(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	<-entered
	if _, err := h.orch.Remove(ctx, p.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	close(release)
	h.wait(t)

	if _, err := os.Stat(h.layout.ProjectDir(p.ID)); !os.IsNotExist(err) {
		t.Fatalf("project dir left behind: %v", err)
	}
	if h.transcriber.calls.Load() != 0 {
		t.Fatal("transcriber ran for a removed project")
	}
	if snap := h.telemetry.Snapshot(); snap.Anomalies != 0 || snap.Active != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// TestRemoveDeletesFiles reclaims the project directory.
func TestRemoveDeletesFiles(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	ctx := context.Background()

	p, err := h.orch.IntakeUpload(ctx, "talk.wav", strings.NewReader("riff"))
	if err != nil {
		t.Fatalf("IntakeUpload() error = %v", err)
	}
	h.wait(t)

	if _, err := h.orch.Remove(ctx, p.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(h.layout.ProjectDir(p.ID)); !os.IsNotExist(err) {
		t.Fatalf("project dir still present: %v", err)
	}
	if _, err := h.store.LatestTranscript(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LatestTranscript() error = %v, want not found", err)
	}
	if _, err := h.orch.Remove(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Remove() error = %v, want not found", err)
	}
}

// TestIntakeRejectsBadInput covers malformed sources and unsupported uploads.
func TestIntakeRejectsBadInput(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	ctx := context.Background()

	for _, ref := range []string{"", "ftp://example.com/a", "local://../etc/passwd", "https://"} {
		if _, err := h.orch.Intake(ctx, ref); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Intake(%q) error = %v, want invalid input", ref, err)
		}
	}
	if _, err := h.orch.IntakeUpload(ctx, "notes.pdf", strings.NewReader("x")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("IntakeUpload(pdf) error = %v, want invalid input", err)
	}

	list, err := h.store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("projects = %d, want 0", len(list))
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

// TestUploadFailureDiscardsRecord removes the project when the file cannot be stored.
func TestUploadFailureDiscardsRecord(t *testing.T) {
	h := newHarness(t, store.NewMemory(), okAcquirer())
	ctx := context.Background()

	if _, err := h.orch.IntakeUpload(ctx, "clip.mp3", brokenReader{}); err == nil {
		t.Fatalf("IntakeUpload() error = nil, want error")
	}
	list, _ := h.store.List(ctx)
	if len(list) != 0 {
		t.Fatalf("projects = %d, want 0", len(list))
	}
}

// TestSupportedUpload checks extension matching is case-insensitive.
func TestSupportedUpload(t *testing.T) {
	cases := map[string]bool{
		"a.MP4":    true,
		"b.opus":   true,
		"c.mkv":    true,
		"d.txt":    false,
		"noext":    false,
		"e.mp3.sh": false,
	}
	for name, want := range cases {
		if got := SupportedUpload(name); got != want {
			t.Fatalf("SupportedUpload(%q) = %v, want %v", name, got, want)
		}
	}
}
