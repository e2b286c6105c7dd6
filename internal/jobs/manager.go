package jobs

import (
	"errors"
	"sort"
	"sync"
)

// ErrJobAlreadyRunning is returned when a project already has an active execution.
var ErrJobAlreadyRunning = errors.New("job already running")

// Manager tracks which projects currently have an active pipeline execution.
type Manager struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager creates a manager with no active executions.
func NewManager() *Manager {
	return &Manager{active: make(map[string]struct{})}
}

// Start claims the execution slot for projectID.
func (m *Manager) Start(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[projectID]; ok {
		return ErrJobAlreadyRunning
	}
	m.active[projectID] = struct{}{}
	return nil
}

// Finish releases the execution slot for projectID.
func (m *Manager) Finish(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, projectID)
}

// IsRunning reports whether projectID has an active execution.
func (m *Manager) IsRunning(projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[projectID]
	return ok
}

// Active returns the ids of all running executions, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
