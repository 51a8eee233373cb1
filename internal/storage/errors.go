package storage

import "errors"

var (
	// ErrNotOpen is returned when an exit is applied to a row that already
	// left OPEN. The row is not modified.
	ErrNotOpen = errors.New("position is not open")

	// ErrRowNotFound is returned for a row index outside the ledger.
	ErrRowNotFound = errors.New("ledger row not found")

	// ErrUnmappedColumn is returned when a ledger column with data has no
	// place in the canonical header. The file is left as it is.
	ErrUnmappedColumn = errors.New("ledger column has no canonical mapping")
)
