package storage

import (
	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// OpenPosition is an OPEN ledger row together with its row index. The index
// is the handle ApplyExit takes; rows are only ever appended, so it is stable
// across reloads.
type OpenPosition struct {
	Row int
	models.Position
}

// Interface defines the contract for the trade ledger.
//
// Implementations must be safe for concurrent use. Every mutation is
// serialized and replaces the persisted ledger as a whole, so a reader sees
// either the image before a transition or the one after it.
type Interface interface {
	// Data persistence
	Load() error
	Save() error

	// Position management
	Append(pos models.Position) (int, error)
	Positions() []models.Position
	OpenPositions() []OpenPosition
	ApplyExit(row int, exit models.Exit) error

	// Analytics
	GetStatistics() *Statistics
	GetDailyPnL(date string) float64
}

// NewStorage opens the CSV ledger at path.
func NewStorage(path string) (Interface, error) {
	return NewCSVStorage(path)
}

// Ensure CSVStorage implements Interface
var _ Interface = (*CSVStorage)(nil)
