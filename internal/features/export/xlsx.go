package export

import (
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Report"

type XLSXRenderer struct{}

func (r *XLSXRenderer) Format() Format { return FormatXLSX }

// Render keeps numbers numeric so spreadsheets can sum them; everything else
// is written as formatted text.
func (r *XLSXRenderer) Render(w io.Writer, table Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	currencyFmt := "#,##0.00"
	currencyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &currencyFmt})
	if err != nil {
		return err
	}

	for i, h := range headers(table) {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for rowIdx, row := range table.Rows {
		for colIdx, col := range table.Columns {
			if colIdx >= len(row) {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			switch v := row[colIdx].(type) {
			case nil:
				continue
			case int64, int, float64:
				if col.FormatHint == "percent" {
					err = f.SetCellValue(sheetName, cell, FormatValue(v, col.FormatHint))
					break
				}
				err = f.SetCellValue(sheetName, cell, v)
				if err == nil && col.FormatHint == "currency" {
					err = f.SetCellStyle(sheetName, cell, cell, currencyStyle)
				}
			case time.Time:
				err = f.SetCellValue(sheetName, cell, FormatValue(v, col.FormatHint))
			default:
				err = f.SetCellValue(sheetName, cell, FormatValue(v, col.FormatHint))
			}
			if err != nil {
				return err
			}
		}
	}

	for i := range table.Columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, 18); err != nil {
			return err
		}
	}

	return f.Write(w)
}
