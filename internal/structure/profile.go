package structure

import (
	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/model"
)

// maxSampleValues caps ColumnProfile.SampleValues.
const maxSampleValues = 5

// Profile summarizes each column over at most sampleRows data rows
// (sampleRows <= 0 profiles every row). A cell is null when the row is too
// short to hold it or it spells a null token; it is empty when present but
// blank. Neither counts toward type inference, distinct values or samples.
func Profile(table *model.RawTable, sampleRows int) []model.ColumnProfile {
	headers := table.Headers()
	rows := table.DataRows()
	if sampleRows > 0 && len(rows) > sampleRows {
		rows = rows[:sampleRows]
	}

	profiles := make([]model.ColumnProfile, len(headers))
	for col, header := range headers {
		p := model.ColumnProfile{
			Index:        col,
			Header:       header,
			SampleValues: []string{},
		}

		seen := make(map[string]struct{})
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			if col >= len(row) {
				p.NullCount++
				continue
			}
			cell := row[col]
			switch {
			case cell == "":
				p.EmptyCount++
				continue
			case convert.IsNullToken(cell):
				p.NullCount++
				continue
			}

			values = append(values, cell)
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			if len(p.SampleValues) < maxSampleValues {
				p.SampleValues = append(p.SampleValues, cell)
			}
		}

		p.DistinctCount = len(seen)
		p.InferredType = InferColumnType(values)
		profiles[col] = p
	}

	return profiles
}

// ColumnValues returns the cells of one column across the given rows.
// Short rows contribute "".
func ColumnValues(rows [][]string, col int) []string {
	values := make([]string, len(rows))
	for i, row := range rows {
		values[i] = model.Cell(row, col)
	}
	return values
}
