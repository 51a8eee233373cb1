package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// DefaultStrategyName is written into the Strategy column of ledgers that
// predate it. Those files only ever held the 20 delta condor.
const DefaultStrategyName = "20 Delta"

// Columns is the canonical ledger header, in file order. It must match the
// csv tags of models.Position.
var Columns = []string{
	"Date", "Entry Time", "Symbol", "Strategy", "StrategyId",
	"Short Call", "Long Call", "Short Put", "Long Put",
	"Credit Collected", "Buying Power", "Profit Target",
	"Status", "Exit Time", "Exit P/L", "Notes", "IV Rank",
}

var columnDefaults = map[string]string{
	"Strategy": DefaultStrategyName,
}

// columnAliases maps older header spellings, after columnKey folding, to
// their canonical column.
var columnAliases = map[string]string{
	"pl":          "Exit P/L",
	"pnl":         "Exit P/L",
	"exitpnl":     "Exit P/L",
	"profitloss":  "Exit P/L",
	"realizedpl":  "Exit P/L",
	"realizedpnl": "Exit P/L",
	"credit":      "Credit Collected",
	"bp":          "Buying Power",
	"target":      "Profit Target",
	"note":        "Notes",
	"ivr":         "IV Rank",
}

// columnKey folds a header cell so that "EntryTime", "entry_time" and
// "Entry Time" all address the same column, as do "Exit P/L" and "Exit PL".
func columnKey(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '/', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

var canonicalByKey = func() map[string]string {
	m := make(map[string]string, len(Columns)+len(columnAliases))
	for key, c := range columnAliases {
		m[key] = c
	}
	for _, c := range Columns {
		m[columnKey(c)] = c
	}
	return m
}()

// rowsReader feeds already-normalized records to gocsv.
type rowsReader struct {
	rows [][]string
	next int
}

func (r *rowsReader) Read() ([]string, error) {
	if r.next >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.next]
	r.next++
	return row, nil
}

func (r *rowsReader) ReadAll() ([][]string, error) {
	rest := r.rows[r.next:]
	r.next = len(r.rows)
	return rest, nil
}

// normalizeRecords maps a raw ledger onto Columns. Missing columns are filled
// with their default and blank lines skipped. Unknown or duplicate columns
// are dropped only when every cell in them is empty; otherwise the ledger is
// refused with ErrUnmappedColumn so that no data is lost on rewrite.
// migrated reports whether the file differs from its canonical form.
func normalizeRecords(records [][]string) (rows [][]string, migrated bool, err error) {
	if len(records) == 0 {
		return nil, false, nil
	}
	header := records[0]
	index := make(map[string]int, len(header))
	var unmapped []int
	for i, cell := range header {
		canonical, ok := canonicalByKey[columnKey(cell)]
		if !ok {
			unmapped = append(unmapped, i)
			continue
		}
		if _, dup := index[canonical]; dup {
			unmapped = append(unmapped, i)
			continue
		}
		index[canonical] = i
	}
	for _, col := range unmapped {
		for _, rec := range records[1:] {
			if col < len(rec) && strings.TrimSpace(rec[col]) != "" {
				return nil, false, fmt.Errorf("%w: %q", ErrUnmappedColumn, header[col])
			}
		}
	}
	if len(header) != len(Columns) {
		migrated = true
	}
	for i, c := range Columns {
		if i >= len(header) || header[i] != c {
			migrated = true
			break
		}
	}

	rows = make([][]string, 0, len(records))
	rows = append(rows, append([]string(nil), Columns...))
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		row := make([]string, len(Columns))
		for j, c := range Columns {
			src, ok := index[c]
			switch {
			case !ok:
				row[j] = columnDefaults[c]
			case src < len(rec):
				row[j] = strings.TrimSpace(rec[src])
			}
		}
		rows = append(rows, row)
	}
	return rows, migrated, nil
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// decodeLedger parses ledger bytes into positions.
func decodeLedger(data []byte) ([]models.Position, bool, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, false, fmt.Errorf("reading csv: %w", err)
	}
	rows, migrated, err := normalizeRecords(records)
	if err != nil {
		return nil, false, err
	}
	if len(rows) <= 1 {
		return nil, migrated, nil
	}

	var positions []models.Position
	if err := gocsv.UnmarshalCSV(&rowsReader{rows: rows}, &positions); err != nil {
		return nil, false, fmt.Errorf("unmarshalling rows: %w", err)
	}
	for i := range positions {
		positions[i].Status = models.ParseStatus(string(positions[i].Status))
	}
	return positions, migrated, nil
}

// encodeLedger renders positions with the canonical header. An empty ledger
// still carries the header line.
func encodeLedger(positions []models.Position) ([]byte, error) {
	if positions == nil {
		positions = []models.Position{}
	}
	data, err := gocsv.MarshalBytes(&positions)
	if err != nil {
		return nil, fmt.Errorf("marshalling ledger: %w", err)
	}
	return data, nil
}
