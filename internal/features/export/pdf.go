package export

import (
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	pdfRowHeight = 6.0
	pdfFontSize  = 8.0
)

type PDFRenderer struct{}

func (r *PDFRenderer) Format() Format { return FormatPDF }

// Render lays the table out on landscape A4 pages, repeating the header row
// on every page.
func (r *PDFRenderer) Render(w io.Writer, table Table) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)

	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	colW := pageW - left - right
	if n := len(table.Columns); n > 0 {
		colW /= float64(n)
	}

	hdrs := headers(table)
	writeHeader := func() {
		pdf.SetFont("Helvetica", "B", pdfFontSize)
		pdf.SetFillColor(224, 224, 224)
		for _, h := range hdrs {
			pdf.CellFormat(colW, pdfRowHeight, tr(fit(pdf, h, colW)), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", pdfFontSize)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr(table.Title), "", 1, "L", false, 0, "")
	if !table.GeneratedAt.IsZero() {
		pdf.SetFont("Helvetica", "", pdfFontSize)
		pdf.CellFormat(0, 5, "Generated "+table.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
	writeHeader()

	for _, row := range table.Rows {
		if pdf.GetY()+pdfRowHeight > pageH-bottom {
			pdf.AddPage()
			writeHeader()
		}
		for i, col := range table.Columns {
			text, align := "", "L"
			if i < len(row) {
				text = FormatValue(row[i], col.FormatHint)
				switch row[i].(type) {
				case int64, int, float64:
					align = "R"
				}
			}
			pdf.CellFormat(colW, pdfRowHeight, tr(fit(pdf, text, colW)), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// fit truncates s so it stays inside one cell.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
