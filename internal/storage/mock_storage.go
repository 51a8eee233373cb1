package storage

import (
	"slices"
	"sync"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// MockStorage is an in-memory ledger for tests. It follows the same
// copy-then-swap rules as CSVStorage; a configured save error makes every
// mutation fail without changing state.
type MockStorage struct {
	mu            sync.RWMutex
	saveError     error
	loadError     error
	positions     []models.Position
	saveCallCount int
	loadCallCount int
}

// NewMockStorage creates a mock ledger seeded with positions.
func NewMockStorage(positions ...models.Position) *MockStorage {
	return &MockStorage{positions: slices.Clone(positions)}
}

// Data persistence methods (mocked)
func (m *MockStorage) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	return m.saveError
}

func (m *MockStorage) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCallCount++
	return m.loadError
}

// Position management methods
func (m *MockStorage) Append(pos models.Position) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	if m.saveError != nil {
		return -1, m.saveError
	}
	m.positions = append(m.positions, pos)
	return len(m.positions) - 1, nil
}

func (m *MockStorage) Positions() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.positions)
}

func (m *MockStorage) OpenPositions() []OpenPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return openPositions(m.positions)
}

func (m *MockStorage) ApplyExit(row int, exit models.Exit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated, err := exitRow(m.positions, row, exit)
	if err != nil {
		return err
	}
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	m.positions[row] = updated
	return nil
}

// Historical data and analytics
func (m *MockStorage) GetStatistics() *Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ComputeStatistics(m.positions)
}

func (m *MockStorage) GetDailyPnL(date string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return dailyPnL(m.positions, date)
}

// Mock control methods for testing
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

func (m *MockStorage) GetSaveCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCallCount
}

func (m *MockStorage) GetLoadCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadCallCount
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)
