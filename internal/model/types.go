// Package model defines the domain types shared by every stage of the
// CSV-to-fact pipeline: raw tables, column profiles, dimension mappings,
// dimension dictionaries, fact records and processing jobs.
//
// The package has no dependencies on storage or transport so that the
// analyzer, mapping engine, transformation pipeline and job controller can
// all import it without cycles.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

/* ----------------------------------------
	STRUCTURE
---------------------------------------- */

// DataType is the inferred type of a column.
type DataType string

const (
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeDate    DataType = "date"
	TypeString  DataType = "string"
)

// RawTable is a tokenized CSV file. Cells are trimmed of surrounding whitespace.
// Rows may be ragged; Width reports the widest row.
type RawTable struct {
	Rows      [][]string
	HasHeader bool
	Delimiter rune
	Encoding  string
}

// Width returns the number of columns in the widest row.
func (t *RawTable) Width() int {
	width := 0
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// Headers returns the header row, or synthesized Column_N names when the
// table has no header. Missing or blank header cells are synthesized too.
func (t *RawTable) Headers() []string {
	width := t.Width()
	headers := make([]string, width)
	for i := range headers {
		if t.HasHeader && len(t.Rows) > 0 && i < len(t.Rows[0]) && t.Rows[0][i] != "" {
			headers[i] = t.Rows[0][i]
			continue
		}
		headers[i] = SyntheticHeader(i)
	}
	return headers
}

// DataRows returns the rows that carry data (everything after the header).
func (t *RawTable) DataRows() [][]string {
	if t.HasHeader && len(t.Rows) > 0 {
		return t.Rows[1:]
	}
	return t.Rows
}

// DataRowOffset is the 1-based file line of the first data row minus one.
// Row numbers reported in errors and fact records are file line numbers.
func (t *RawTable) DataRowOffset() int {
	if t.HasHeader {
		return 2
	}
	return 1
}

// SyntheticHeader names an unlabeled column (1-based).
func SyntheticHeader(index int) string {
	return "Column_" + strconv.Itoa(index+1)
}

// Cell returns row[i], or "" when the row is shorter than i+1.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// ColumnProfile summarizes one column over a bounded sample of rows.
type ColumnProfile struct {
	Index         int      `json:"index"`
	Header        string   `json:"header"`
	InferredType  DataType `json:"inferredDataType"`
	NullCount     int      `json:"nullCount"`
	EmptyCount    int      `json:"emptyCount"`
	DistinctCount int      `json:"distinctCount"`
	SampleValues  []string `json:"sampleValues"`
}

// UploadJob is a file registered for analysis and processing.
type UploadJob struct {
	ID        uuid.UUID `json:"id"`
	FileName  string    `json:"fileName"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Analysis is the persisted result of structure analysis for one upload.
// Fingerprint is the SHA-256 of the file content; an unchanged file maps to
// the same analysis.
type Analysis struct {
	ID          uuid.UUID       `json:"id"`
	UploadJobID uuid.UUID       `json:"uploadJobId"`
	Fingerprint string          `json:"fingerprint"`
	RowCount    int             `json:"rowCount"`
	ColumnCount int             `json:"columnCount"`
	Headers     []string        `json:"headers"`
	Columns     []ColumnProfile `json:"columns"`
	Delimiter   string          `json:"delimiter"`
	Encoding    string          `json:"encoding"`
	HasHeader   bool            `json:"hasHeader"`
	CreatedAt   time.Time       `json:"createdAt"`
}

/* ----------------------------------------
	MAPPING
---------------------------------------- */

// DimensionType is the semantic role a column plays.
type DimensionType string

const (
	DimTimeType       DimensionType = "TIME"
	DimLocationType   DimensionType = "LOCATION"
	DimIndicatorName  DimensionType = "INDICATOR_NAME"
	DimIndicatorValue DimensionType = "INDICATOR_VALUE"
	DimUnit           DimensionType = "UNIT"
	DimSource         DimensionType = "SOURCE"
	DimGoal           DimensionType = "GOAL"
	DimAdditional     DimensionType = "ADDITIONAL"
)

// DimensionTypes lists every dimension type in declaration order.
var DimensionTypes = []DimensionType{
	DimTimeType, DimLocationType, DimIndicatorName, DimIndicatorValue,
	DimUnit, DimSource, DimGoal, DimAdditional,
}

// ParseDimensionType accepts a dimension type name in any case.
func ParseDimensionType(s string) (DimensionType, error) {
	want := DimensionType(strings.ToUpper(strings.TrimSpace(s)))
	for _, dt := range DimensionTypes {
		if dt == want {
			return dt, nil
		}
	}
	return "", fmt.Errorf("invalid dimension type: %q", s)
}

// DimensionMapping assigns a semantic role to one column of an analysis.
type DimensionMapping struct {
	ID              uuid.UUID         `json:"id"`
	AnalysisID      uuid.UUID         `json:"analysisId"`
	ColumnIndex     int               `json:"columnIndex"`
	DimensionType   DimensionType     `json:"dimensionType"`
	ConfidenceScore float64           `json:"confidenceScore"`
	IsAutoDetected  bool              `json:"isAutoDetected"`
	MappingRules    map[string]string `json:"mappingRules,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Rule returns a mapping rule value, or "" when unset.
func (m DimensionMapping) Rule(key string) string {
	if m.MappingRules == nil {
		return ""
	}
	return m.MappingRules[key]
}

// Well-known mapping rule keys.
const (
	// RuleTimeSource selects where a TIME column reads its time label from:
	// "header" (the column header is the label, the cell is the value) or
	// "cell" (the cell is the label).
	RuleTimeSource = "timeSource"
	// RuleDimensionName names the generic dimension an ADDITIONAL column feeds.
	// Defaults to the column header.
	RuleDimensionName = "dimensionName"
	// RuleDateLayout is a Go time layout used to normalize TIME cells.
	RuleDateLayout = "dateLayout"
)

// Orientation describes whether indicators are listed down rows or across headers.
type Orientation string

const (
	OrientationRows    Orientation = "ROWS"
	OrientationColumns Orientation = "COLUMNS"
)

// ValidationResult is the structured outcome of mapping validation.
type ValidationResult struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

/* ----------------------------------------
	DIMENSIONS & FACTS
---------------------------------------- */

// Indicator is a named statistical series. Unit, Source and Goal are filled
// from UNIT, SOURCE and GOAL columns the first time the indicator is seen.
type Indicator struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Unit   string    `json:"unit,omitempty"`
	Source string    `json:"source,omitempty"`
	Goal   string    `json:"goal,omitempty"`
}

// DimTime is an interned time label.
type DimTime struct {
	ID    uuid.UUID `json:"id"`
	Value string    `json:"value"`
}

// DimLocation is an interned location label.
type DimLocation struct {
	ID    uuid.UUID `json:"id"`
	Value string    `json:"value"`
}

// DimGeneric is an interned value of a free-form dimension.
type DimGeneric struct {
	ID            uuid.UUID `json:"id"`
	DimensionName string    `json:"dimensionName"`
	Value         string    `json:"value"`
}

// FactRecord is one normalized observation.
type FactRecord struct {
	ID              uuid.UUID      `json:"id"`
	JobID           uuid.UUID      `json:"jobId"`
	IndicatorID     uuid.UUID      `json:"indicatorId"`
	Value           pgtype.Numeric `json:"value"`
	TimeID          *uuid.UUID     `json:"timeId,omitempty"`
	LocationID      *uuid.UUID     `json:"locationId,omitempty"`
	GenericIDs      []uuid.UUID    `json:"genericIds,omitempty"`
	SourceFile      string         `json:"sourceFile"`
	SourceRowNumber int            `json:"sourceRowNumber"`
	SourceRowHash   string         `json:"sourceRowHash"`
	ConfidenceScore float64        `json:"confidenceScore"`
	IsAggregated    bool           `json:"isAggregated"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// HasIndicator reports whether the record's indicator was resolved.
func (f *FactRecord) HasIndicator() bool {
	return f.IndicatorID != uuid.Nil
}

/* ----------------------------------------
	JOBS
---------------------------------------- */

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ProcessingJob tracks one transformation run.
type ProcessingJob struct {
	ID                 uuid.UUID  `json:"id"`
	UploadJobID        uuid.UUID  `json:"uploadJobId"`
	AnalysisID         uuid.UUID  `json:"analysisId"`
	Status             JobStatus  `json:"status"`
	RecordsProcessed   int        `json:"recordsProcessed"`
	RecordsTotal       int        `json:"recordsTotal"`
	ErrorCount         int        `json:"errorCount"`
	ProgressPercentage float64    `json:"progressPercentage"`
	BatchSize          int        `json:"batchSize"`
	QualityScore       *float64   `json:"qualityScore,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	FinishedAt         *time.Time `json:"finishedAt,omitempty"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// Severity grades a processing error.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Processing error types.
const (
	ErrTypeInvalidNumber    = "invalid_number"
	ErrTypeMissingIndicator = "missing_indicator"
	ErrTypeValueRange       = "value_out_of_range"
	ErrTypeDimension        = "dimension_resolution"
)

// ProcessingError is one row-level failure recorded against a job.
type ProcessingError struct {
	ID           uuid.UUID `json:"id"`
	JobID        uuid.UUID `json:"jobId"`
	RowNumber    int       `json:"rowNumber"`
	ErrorType    string    `json:"errorType"`
	ErrorMessage string    `json:"errorMessage"`
	RawValue     string    `json:"rawValue"`
	Severity     Severity  `json:"severity"`
	IsResolved   bool      `json:"isResolved"`
	CreatedAt    time.Time `json:"createdAt"`
}
