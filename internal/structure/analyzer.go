// Package structure detects the physical shape of an unknown CSV file:
// its encoding, delimiter, header row and per-column data types.
//
// Analysis is pure. The same bytes always produce the same Result, so the
// caller may cache results by Fingerprint or regenerate a RawTable on demand
// with LoadTable.
package structure

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JonMunkholm/factflow/internal/model"
)

var tracer = otel.Tracer("github.com/JonMunkholm/factflow/internal/structure")

// DefaultSampleRows is the number of data rows profiled per column.
const DefaultSampleRows = 1000

// Result is the structural fingerprint of a file.
type Result struct {
	Table       *model.RawTable
	Fingerprint string
	Headers     []string
	Columns     []model.ColumnProfile
	RowCount    int
	ColumnCount int
}

// Analyzer runs structure analysis.
type Analyzer struct {
	sampleRows int
}

// NewAnalyzer creates an analyzer that profiles at most sampleRows data rows.
func NewAnalyzer(sampleRows int) *Analyzer {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &Analyzer{sampleRows: sampleRows}
}

// AnalyzeFile reads and analyzes the file at path. A missing file returns an
// error wrapping model.ErrNotFound; a file that cannot be tokenized returns a
// *model.StructuralError.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Result, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	res, err := a.Analyze(ctx, data)
	if err != nil {
		return nil, &model.StructuralError{Path: path, Err: err}
	}
	return res, nil
}

// Analyze runs detection over in-memory file content.
func (a *Analyzer) Analyze(ctx context.Context, data []byte) (*Result, error) {
	_, span := tracer.Start(ctx, "structure.Analyze")
	defer span.End()

	enc := DetectEncoding(data)
	delimiter := DetectDelimiter(firstLine(decodeHead(data, enc)))

	table, err := Parse(bytes.NewReader(data), enc, delimiter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	table.HasHeader = DetectHeader(table.Rows)

	res := &Result{
		Table:       table,
		Fingerprint: Fingerprint(data),
		Headers:     table.Headers(),
		Columns:     Profile(table, a.sampleRows),
		RowCount:    len(table.DataRows()),
		ColumnCount: table.Width(),
	}

	span.SetAttributes(
		attribute.String("encoding", enc),
		attribute.String("delimiter", string(delimiter)),
		attribute.Bool("has_header", table.HasHeader),
		attribute.Int("rows", res.RowCount),
		attribute.Int("columns", res.ColumnCount),
	)
	return res, nil
}

// LoadTable regenerates the RawTable of a previously analyzed file.
func LoadTable(path, enc string, delimiter rune, hasHeader bool) (*model.RawTable, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	table, err := Parse(bytes.NewReader(data), enc, delimiter)
	if err != nil {
		return nil, &model.StructuralError{Path: path, Err: err}
	}
	table.HasHeader = hasHeader
	return table, nil
}

// Fingerprint is the hex SHA-256 of file content.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintFile hashes the file at path.
func FingerprintFile(path string) (string, error) {
	data, err := readFile(path)
	if err != nil {
		return "", err
	}
	return Fingerprint(data), nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file %s: %w", path, model.ErrNotFound)
		}
		return nil, model.Infra("read file", err)
	}
	return data, nil
}

// decodeHead decodes the leading lines for delimiter detection.
func decodeHead(data []byte, enc string) string {
	head := leadingLines(data, 1)
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(Decode(bytes.NewReader(head), enc)); err != nil {
		return string(head)
	}
	return buf.String()
}
