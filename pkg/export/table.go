// Package export renders tabular reports as CSV or PDF.
package export

import "time"

// Column describes one report column. Width is a relative weight used by
// the PDF renderer; zero means 1.
type Column struct {
	Key   string
	Label string
	Width float64
}

// Table is a titled set of rows keyed by column key.
type Table struct {
	Title       string
	Columns     []Column
	Rows        []map[string]string
	GeneratedAt time.Time
}

func (t Table) header() []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = col.Label
		if out[i] == "" {
			out[i] = col.Key
		}
	}
	return out
}

func (t Table) record(row map[string]string) []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = row[col.Key]
	}
	return out
}
