package structure

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/factflow/internal/model"
)

// Parse tokenizes decoded CSV text into a RawTable. Cells are trimmed and
// rows whose cells are all empty are dropped. Quotes are strict: an
// unterminated quoted field fails with model.ErrMalformedFile.
//
// HasHeader is left false; callers decide it with DetectHeader.
func Parse(r io.Reader, enc string, delimiter rune) (*model.RawTable, error) {
	reader := csv.NewReader(Decode(r, enc))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	table := &model.RawTable{
		Delimiter: delimiter,
		Encoding:  enc,
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("%w: line %d: %v", model.ErrMalformedFile, pe.Line, pe.Err)
			}
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedFile, err)
		}

		row := make([]string, len(record))
		for i, cell := range record {
			row[i] = strings.TrimSpace(cell)
		}
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// isEmptyRow returns true if all cells are empty.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
