package storage

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// CSVStorage is the file-backed trade ledger. The whole file is rewritten on
// every mutation: the new image goes to path.tmp and is renamed over path.
type CSVStorage struct {
	mu        sync.RWMutex
	path      string
	positions []models.Position
}

// NewCSVStorage opens the ledger at path. A missing file is an empty ledger;
// it is created on the first write.
func NewCSVStorage(path string) (*CSVStorage, error) {
	s := &CSVStorage{path: path}
	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	return s, nil
}

// Path returns the ledger file location.
func (s *CSVStorage) Path() string {
	return s.path
}

// Load replaces the in-memory image with the file contents. Ledgers written
// with an older header are migrated and rewritten once.
func (s *CSVStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.positions = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	positions, migrated, err := decodeLedger(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", s.path, err)
	}
	if migrated {
		if err := s.write(positions); err != nil {
			return fmt.Errorf("rewriting migrated ledger: %w", err)
		}
	}
	s.positions = positions
	return nil
}

// Save persists the current image.
func (s *CSVStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(s.positions)
}

// write must be called with mu held.
func (s *CSVStorage) write(positions []models.Position) error {
	data, err := encodeLedger(positions)
	if err != nil {
		return err
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmpFile, err)
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Append adds a row and persists the ledger. It returns the new row index.
func (s *CSVStorage) Append(pos models.Position) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(slices.Clone(s.positions), pos)
	if err := s.write(next); err != nil {
		return -1, err
	}
	s.positions = next
	return len(next) - 1, nil
}

// Positions returns a copy of every row.
func (s *CSVStorage) Positions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.positions)
}

// OpenPositions returns copies of the OPEN rows with their indices.
func (s *CSVStorage) OpenPositions() []OpenPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openPositions(s.positions)
}

// ApplyExit moves row out of OPEN. The exit is applied to a copy, the
// ledger is persisted, and only then is the in-memory image replaced; a
// failed write leaves memory and file as they were.
func (s *CSVStorage) ApplyExit(row int, exit models.Exit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := exitRow(s.positions, row, exit)
	if err != nil {
		return err
	}
	next := slices.Clone(s.positions)
	next[row] = updated
	if err := s.write(next); err != nil {
		return err
	}
	s.positions = next
	return nil
}

// GetStatistics summarizes every row that has a realized P/L.
func (s *CSVStorage) GetStatistics() *Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeStatistics(s.positions)
}

// GetDailyPnL sums the realized P/L of rows entered on date (YYYY-MM-DD).
func (s *CSVStorage) GetDailyPnL(date string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dailyPnL(s.positions, date)
}

func openPositions(positions []models.Position) []OpenPosition {
	var open []OpenPosition
	for i, p := range positions {
		if p.IsOpen() {
			open = append(open, OpenPosition{Row: i, Position: p})
		}
	}
	return open
}

func exitRow(positions []models.Position, row int, exit models.Exit) (models.Position, error) {
	if row < 0 || row >= len(positions) {
		return models.Position{}, fmt.Errorf("row %d of %d: %w", row, len(positions), ErrRowNotFound)
	}
	updated := positions[row]
	if !updated.IsOpen() {
		return models.Position{}, fmt.Errorf("row %d is %s: %w", row, updated.Status, ErrNotOpen)
	}
	if err := updated.ApplyExit(exit); err != nil {
		return models.Position{}, err
	}
	return updated, nil
}
