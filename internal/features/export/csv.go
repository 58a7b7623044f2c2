package export

import (
	"encoding/csv"
	"io"
)

type CSVRenderer struct{}

func (r *CSVRenderer) Format() Format { return FormatCSV }

func (r *CSVRenderer) Render(w io.Writer, table Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers(table)); err != nil {
		return err
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, col := range table.Columns {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatValue(row[i], col.FormatHint)
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
