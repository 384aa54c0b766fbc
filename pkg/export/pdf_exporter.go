package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfHeaderRowHeight = 8.0
	pdfBodyRowHeight   = 7.0
	pdfBottomLimit     = 20.0
)

// PDFExporter lays datasets out as an A4 table. Wide tables switch to landscape and
// the header row repeats on every page.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// Render returns the PDF bytes of data under title.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errNoHeaders
	}
	orientation, width := "P", 190.0
	if len(data.Headers) > 5 {
		orientation, width = "L", 277.0
	}
	colWidth := width / float64(len(data.Headers))

	doc := gofpdf.New(orientation, "mm", "A4", "")
	doc.SetMargins(10, 15, 10)
	doc.SetAutoPageBreak(false, 0)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	generated := e.now().UTC().Format("2006-01-02 15:04 MST")
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont("Arial", "I", 8)
		doc.CellFormat(0, 8, fmt.Sprintf("%d rows - generated %s - page %d", len(data.Rows), generated, doc.PageNo()), "", 0, "C", false, 0, "")
	})

	header := func() {
		doc.SetFont("Arial", "B", 10)
		doc.SetFillColor(225, 232, 240)
		for _, h := range data.Headers {
			doc.CellFormat(colWidth, pdfHeaderRowHeight, tr(h), "1", 0, "C", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont("Arial", "", 9)
	}

	doc.AddPage()
	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
		doc.Ln(4)
	}
	header()

	_, pageHeight := doc.GetPageSize()
	doc.SetFillColor(246, 248, 250)
	for i := range data.Rows {
		if doc.GetY()+pdfBodyRowHeight > pageHeight-pdfBottomLimit {
			doc.AddPage()
			header()
			doc.SetFillColor(246, 248, 250)
		}
		for _, cell := range data.Record(i) {
			doc.CellFormat(colWidth, pdfBodyRowHeight, tr(cell), "1", 0, "", i%2 == 1, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
