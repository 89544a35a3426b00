package transform

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/model"
)

// Plausible value range. Values outside it are kept but flagged.
const (
	minPlausibleValue = 0
	maxPlausibleValue = 999_999_999
)

// AggregatePlaces is the number of fractional digits kept by aggregate means.
const AggregatePlaces = 6

// RowHash is the base64 SHA-256 digest of the pipe-joined raw row cells.
func RowHash(cells []string) string {
	sum := sha256.Sum256([]byte(strings.Join(cells, "|")))
	return base64.StdEncoding.EncodeToString(sum[:])
}

/* ----------------------------------------
	DEDUPLICATION
---------------------------------------- */

// dedupKey identifies a record for deduplication: the source row hash plus
// every resolved coordinate. Records from identical raw rows collapse; the
// several records one wide row produces do not.
func dedupKey(f *model.FactRecord) string {
	var b strings.Builder
	b.WriteString(f.SourceRowHash)
	b.WriteByte('|')
	b.WriteString(f.IndicatorID.String())
	b.WriteByte('|')
	if f.TimeID != nil {
		b.WriteString(f.TimeID.String())
	}
	b.WriteByte('|')
	if f.LocationID != nil {
		b.WriteString(f.LocationID.String())
	}
	generics := make([]string, len(f.GenericIDs))
	for i, id := range f.GenericIDs {
		generics[i] = id.String()
	}
	sort.Strings(generics)
	for _, g := range generics {
		b.WriteByte('|')
		b.WriteString(g)
	}
	return b.String()
}

// Dedupe keeps one record per dedup key: the highest ConfidenceScore wins and
// ties keep the first encountered. Survivors stay in first-seen order.
func Dedupe(records []model.FactRecord) []model.FactRecord {
	index := make(map[string]int, len(records))
	out := make([]model.FactRecord, 0, len(records))

	for _, r := range records {
		key := dedupKey(&r)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		if r.ConfidenceScore > out[i].ConfidenceScore {
			out[i] = r
		}
	}
	return out
}

/* ----------------------------------------
	QUALITY
---------------------------------------- */

// QualityReport summarizes a record set. Errors describe invalid records
// (null value or unresolved indicator); Warnings describe valid records whose
// value falls outside the plausible range.
type QualityReport struct {
	QualityScore float64                 `json:"qualityScore"`
	TotalRecords int                     `json:"totalRecords"`
	ValidRecords int                     `json:"validRecords"`
	Errors       []model.ProcessingError `json:"errors"`
	Warnings     []model.ProcessingError `json:"warnings"`
}

// Valid reports whether a record may be persisted.
func Valid(f *model.FactRecord) bool {
	return f.Value.Valid && f.HasIndicator()
}

// ValidateDataQuality scores records. The score is valid / total, or 1 when
// there are no records.
func ValidateDataQuality(records []model.FactRecord) QualityReport {
	report := QualityReport{
		TotalRecords: len(records),
		Errors:       []model.ProcessingError{},
		Warnings:     []model.ProcessingError{},
	}

	for i := range records {
		r := &records[i]
		switch {
		case !r.Value.Valid:
			report.Errors = append(report.Errors, model.RowError(r.SourceRowNumber,
				model.ErrTypeInvalidNumber, "record has no value", "", model.SeverityError))
			continue
		case !r.HasIndicator():
			report.Errors = append(report.Errors, model.RowError(r.SourceRowNumber,
				model.ErrTypeMissingIndicator, "record has no indicator", convert.FormatNumeric(r.Value), model.SeverityError))
			continue
		}

		report.ValidRecords++
		if outOfRange(r.Value) {
			report.Warnings = append(report.Warnings, model.RowError(r.SourceRowNumber,
				model.ErrTypeValueRange,
				fmt.Sprintf("value outside expected range [%d, %d]", minPlausibleValue, maxPlausibleValue),
				convert.FormatNumeric(r.Value), model.SeverityWarning))
		}
	}

	if report.TotalRecords == 0 {
		report.QualityScore = 1
	} else {
		report.QualityScore = float64(report.ValidRecords) / float64(report.TotalRecords)
	}
	return report
}

func outOfRange(v pgtype.Numeric) bool {
	if c, ok := convert.Compare(v, minPlausibleValue); ok && c < 0 {
		return true
	}
	if c, ok := convert.Compare(v, maxPlausibleValue); ok && c > 0 {
		return true
	}
	return false
}

/* ----------------------------------------
	AGGREGATION
---------------------------------------- */

// Aggregate returns one IsAggregated record per indicator holding the mean of
// its valid, non-aggregated records, rounded half-up to AggregatePlaces.
// Indicators appear in first-seen order.
func Aggregate(records []model.FactRecord, jobID uuid.UUID, sourceFile string) []model.FactRecord {
	type group struct {
		values     []pgtype.Numeric
		confidence float64
	}
	groups := make(map[uuid.UUID]*group)
	var order []uuid.UUID

	for i := range records {
		r := &records[i]
		if r.IsAggregated || !Valid(r) {
			continue
		}
		g, ok := groups[r.IndicatorID]
		if !ok {
			g = &group{}
			groups[r.IndicatorID] = g
			order = append(order, r.IndicatorID)
		}
		g.values = append(g.values, r.Value)
		g.confidence += r.ConfidenceScore
	}

	out := make([]model.FactRecord, 0, len(order))
	for _, id := range order {
		g := groups[id]
		mean, ok := convert.Mean(g.values, AggregatePlaces)
		if !ok {
			continue
		}
		out = append(out, model.FactRecord{
			ID:              uuid.New(),
			JobID:           jobID,
			IndicatorID:     id,
			Value:           mean,
			SourceFile:      sourceFile,
			SourceRowHash:   RowHash([]string{"aggregate", id.String()}),
			ConfidenceScore: g.confidence / float64(len(g.values)),
			IsAggregated:    true,
		})
	}
	return out
}
