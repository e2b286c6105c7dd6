package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"transcript-studio/internal/domain"
)

type storedTranscript struct {
	seq        int64
	transcript domain.Transcript
}

type record struct {
	mu          sync.Mutex
	deleted     bool
	project     domain.Project
	transcripts []storedTranscript
}

// Memory is an in-process Store. Each project has its own lock.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*record
	seq     atomic.Int64
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a project, assigning id and timestamps when absent.
func (m *Memory) Create(_ context.Context, p domain.Project) (domain.Project, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Status == "" {
		p.Status = domain.ProjectStatusCreated
	}
	now := m.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := validateProject(p); err != nil {
		return domain.Project{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[p.ID]; exists {
		return domain.Project{}, fmt.Errorf("%w: project %s already exists", domain.ErrInvalidInput, p.ID)
	}
	m.records[p.ID] = &record{project: p}
	return p, nil
}

// Get returns a snapshot of one project.
func (m *Memory) Get(_ context.Context, id string) (domain.Project, error) {
	rec, err := m.lock(id)
	if err != nil {
		return domain.Project{}, err
	}
	defer rec.mu.Unlock()
	return rec.project, nil
}

// List returns all projects, newest first.
func (m *Memory) List(_ context.Context) ([]domain.Project, error) {
	m.mu.RLock()
	recs := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	out := make([]domain.Project, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.deleted {
			out = append(out, rec.project)
		}
		rec.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies fn to a copy of the project and stores it when fn succeeds.
func (m *Memory) Update(_ context.Context, id string, fn func(*domain.Project) error) (domain.Project, error) {
	rec, err := m.lock(id)
	if err != nil {
		return domain.Project{}, err
	}
	defer rec.mu.Unlock()

	next := rec.project
	if err := fn(&next); err != nil {
		return domain.Project{}, err
	}
	next.ID = rec.project.ID
	next.CreatedAt = rec.project.CreatedAt
	next.UpdatedAt = m.now()
	if err := validateProject(next); err != nil {
		return domain.Project{}, err
	}
	rec.project = next
	return next, nil
}

// Delete removes a project and its transcripts, returning the removed project.
func (m *Memory) Delete(_ context.Context, id string) (domain.Project, error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	m.mu.Unlock()
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.deleted = true
	rec.transcripts = nil
	return rec.project, nil
}

// SaveTranscript appends a transcript to its project.
func (m *Memory) SaveTranscript(_ context.Context, t domain.Transcript) (domain.Transcript, error) {
	if err := validateTranscript(t); err != nil {
		return domain.Transcript{}, err
	}
	rec, err := m.lock(t.ProjectID)
	if err != nil {
		return domain.Transcript{}, err
	}
	defer rec.mu.Unlock()

	if t.ID == "" {
		t.ID = NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}
	t = t.Clone()
	rec.transcripts = append(rec.transcripts, storedTranscript{seq: m.seq.Add(1), transcript: t})
	return t.Clone(), nil
}

// LatestTranscript returns the most recent transcript of a project.
func (m *Memory) LatestTranscript(_ context.Context, projectID string) (domain.Transcript, error) {
	rec, err := m.lock(projectID)
	if err != nil {
		return domain.Transcript{}, err
	}
	defer rec.mu.Unlock()

	idx := latest(rec.transcripts)
	if idx < 0 {
		return domain.Transcript{}, fmt.Errorf("%w: no transcript for project %s", domain.ErrNotFound, projectID)
	}
	return rec.transcripts[idx].transcript.Clone(), nil
}

// UpdateTranscript applies fn to a copy of the latest transcript and stores it in place.
func (m *Memory) UpdateTranscript(_ context.Context, projectID string, fn func(*domain.Transcript) error) (domain.Transcript, error) {
	rec, err := m.lock(projectID)
	if err != nil {
		return domain.Transcript{}, err
	}
	defer rec.mu.Unlock()

	idx := latest(rec.transcripts)
	if idx < 0 {
		return domain.Transcript{}, fmt.Errorf("%w: no transcript for project %s", domain.ErrNotFound, projectID)
	}
	current := rec.transcripts[idx].transcript
	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.Transcript{}, err
	}
	next.ID = current.ID
	next.ProjectID = current.ProjectID
	next.CreatedAt = current.CreatedAt
	if err := validateTranscript(next); err != nil {
		return domain.Transcript{}, err
	}
	rec.transcripts[idx].transcript = next.Clone()
	return next, nil
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error { return nil }

// lock returns the live record for id with its mutex held.
func (m *Memory) lock(id string) (*record, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
	}

	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return nil, fmt.Errorf("%w: project %s", domain.ErrNotFound, id)
	}
	return rec, nil
}

// latest picks the greatest created_at, ties broken by insertion order.
func latest(transcripts []storedTranscript) int {
	idx := -1
	for i, st := range transcripts {
		if idx < 0 {
			idx = i
			continue
		}
		best := transcripts[idx]
		if st.transcript.CreatedAt.After(best.transcript.CreatedAt) ||
			(st.transcript.CreatedAt.Equal(best.transcript.CreatedAt) && st.seq > best.seq) {
			idx = i
		}
	}
	return idx
}
