package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageMargin = 10.0
	rowHeight  = 7.0
)

// PDFRenderer lays a table out on A4 pages, switching to landscape for
// wide tables and repeating the header row on every page.
type PDFRenderer struct {
	LandscapeFrom int
}

// NewPDFRenderer constructs a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{LandscapeFrom: 6}
}

// Render encodes the table.
func (r *PDFRenderer) Render(table Table) ([]byte, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	orientation := "P"
	if r.LandscapeFrom > 0 && len(table.Columns) >= r.LandscapeFrom {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pageMargin, 15, pageMargin)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, _ := pdf.GetPageSize()
	widths := columnWidths(table.Columns, pageWidth-2*pageMargin)
	header := table.header()

	pdf.SetHeaderFunc(func() {
		if table.Title != "" {
			pdf.SetFont("Arial", "B", 13)
			pdf.CellFormat(0, 9, tr(table.Title), "", 1, "C", false, 0, "")
			pdf.Ln(2)
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, label := range header {
			pdf.CellFormat(widths[i], 8, tr(label), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 7)
		footer := fmt.Sprintf("Page %d", pdf.PageNo())
		if !table.GeneratedAt.IsZero() {
			footer = fmt.Sprintf("Generated %s - %s", table.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), footer)
		}
		pdf.CellFormat(0, 6, footer, "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "", 8)
	for _, row := range table.Rows {
		for i, value := range table.record(row) {
			pdf.CellFormat(widths[i], rowHeight, tr(truncate(pdf, value, widths[i])), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// ContentType is the MIME type of the rendered output.
func (r *PDFRenderer) ContentType() string { return "application/pdf" }

// Extension is the file suffix of the rendered output.
func (r *PDFRenderer) Extension() string { return "pdf" }

func columnWidths(cols []Column, total float64) []float64 {
	sum := 0.0
	for _, c := range cols {
		sum += weight(c)
	}
	out := make([]float64, len(cols))
	for i, c := range cols {
		out[i] = total * weight(c) / sum
	}
	return out
}

func weight(c Column) float64 {
	if c.Width <= 0 {
		return 1
	}
	return c.Width
}

// truncate shortens value with an ellipsis so it fits the cell.
func truncate(pdf *gofpdf.Fpdf, value string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(value) <= limit {
		return value
	}
	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
