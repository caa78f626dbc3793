package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVRenderer writes a header row followed by one record per table row.
type CSVRenderer struct{}

// NewCSVRenderer builds a CSV renderer.
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

// Render encodes the table.
func (r *CSVRenderer) Render(table Table) ([]byte, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(table.header()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range table.Rows {
		if err := w.Write(table.record(row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentType is the MIME type of the rendered output.
func (r *CSVRenderer) ContentType() string { return "text/csv" }

// Extension is the file suffix of the rendered output.
func (r *CSVRenderer) Extension() string { return "csv" }
