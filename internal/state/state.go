// Package state persists per-file batch scan state in a JSON file.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Manager handles batch state persistence and operations
type Manager struct {
	state    *BatchState
	filePath string
	mu       sync.RWMutex
}

// NewManager creates a new state manager
func NewManager(filePath string) *Manager {
	return &Manager{
		state:    NewBatchState(),
		filePath: filePath,
	}
}

// Path returns the state file path
func (m *Manager) Path() string {
	return m.filePath
}

// Load reads the batch state from the JSON file.
// A missing file yields a new empty state, not an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		m.state = NewBatchState()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	if state.Version != StateFileVersion {
		return fmt.Errorf("unsupported state file version %d (expected %d)", state.Version, StateFileVersion)
	}
	if state.Files == nil {
		state.Files = make(map[string]*FileState)
	}

	m.state = &state
	return nil
}

// Save writes the batch state to the JSON file atomically
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// write to a temp file, then rename
	tmpFile := m.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tmpFile, m.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp state file: %w", err)
	}

	return nil
}

// GetState returns the current batch state
func (m *Manager) GetState() *BatchState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// GetFile returns the state of one file, or nil
func (m *Manager) GetFile(path string) *FileState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetFile(path)
}

// PutFile adds or updates a file in the state
func (m *Manager) PutFile(fs *FileState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PutFile(fs)
}

// RemoveFile removes a file from the state
func (m *Manager) RemoveFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RemoveFile(path)
}

// UpdateLastRun updates the last run timestamp
func (m *Manager) UpdateLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.UpdateLastRun()
}

// FilesByStatus returns all files with a given status
func (m *Manager) FilesByStatus(status ScanStatus) []*FileState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FilesByStatus(status)
}

// FilesWithAccount returns the files an account number was found in
func (m *Manager) FilesWithAccount(account string) []*FileState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FilesWithAccount(account)
}

// Prune drops files that are no longer present
func (m *Manager) Prune(keep map[string]bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Prune(keep)
}

// LoadOrCreate loads an existing state file or creates a new one if it doesn't exist
func LoadOrCreate(filePath string) (*Manager, error) {
	manager := NewManager(filePath)

	if err := manager.Load(); err != nil {
		return nil, err
	}

	if len(manager.state.Files) == 0 && manager.state.LastRun.IsZero() {
		if err := manager.Save(); err != nil {
			return nil, fmt.Errorf("failed to save initial state: %w", err)
		}
	}

	return manager, nil
}

// Reset clears all state
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = NewBatchState()
}

// Count returns the number of files in the state
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.Files)
}
