// Package mapping assigns semantic roles to the columns of an analyzed table.
//
// Each column is scored by a registry of independent detectors; the winning
// role becomes a suggested DimensionMapping when its confidence clears the
// engine threshold. Operators may override any suggestion; validation checks
// the final mapping set before processing starts.
package mapping

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/structure"
)

// DefaultThreshold is the minimum confidence for an emitted suggestion.
const DefaultThreshold = 0.7

// Engine suggests, validates and orients dimension mappings.
type Engine struct {
	registry  *Registry
	threshold float64
}

// NewEngine returns an engine scoring with the standard detectors over vocab.
// A threshold outside (0, 1] falls back to DefaultThreshold.
func NewEngine(vocab *Vocabulary, threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Engine{registry: NewRegistry(vocab), threshold: threshold}
}

// Threshold returns the confidence threshold suggestions must reach.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Registry exposes the detector registry so callers can register extra detectors.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Suggest scores every column and returns one auto-detected mapping per
// column whose best confidence reaches the threshold. samples are data rows;
// when nil, each profile's SampleValues stand in. Columns below threshold are
// left unmapped.
func (e *Engine) Suggest(columns []model.ColumnProfile, samples [][]string) []model.DimensionMapping {
	suggestions := make([]model.DimensionMapping, 0, len(columns))
	for _, profile := range columns {
		col := Column{
			Index:  profile.Index,
			Header: profile.Header,
			Values: sampleValues(profile, samples),
		}

		dimType, confidence := e.registry.Best(col)
		if confidence < e.threshold {
			continue
		}

		suggestions = append(suggestions, model.DimensionMapping{
			ColumnIndex:     profile.Index,
			DimensionType:   dimType,
			ConfidenceScore: confidence,
			IsAutoDetected:  true,
		})
	}
	return suggestions
}

// sampleValues returns the non-empty, non-null cells of a column.
func sampleValues(profile model.ColumnProfile, samples [][]string) []string {
	if samples == nil {
		return profile.SampleValues
	}
	values := make([]string, 0, len(samples))
	for _, v := range structure.ColumnValues(samples, profile.Index) {
		if v == "" || convert.IsNullToken(v) {
			continue
		}
		values = append(values, v)
	}
	return values
}

// requiredRoles must each be mapped at least once for a set to be valid.
var requiredRoles = []model.DimensionType{model.DimIndicatorName, model.DimIndicatorValue}

// Validate checks a mapping set. Each missing required role is one error;
// duplicate INDICATOR_NAME columns and weak auto-detections are warnings.
func (e *Engine) Validate(mappings []model.DimensionMapping) model.ValidationResult {
	result := model.ValidationResult{
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}

	byType := make(map[model.DimensionType][]int)
	for _, m := range sortedMappings(mappings) {
		byType[m.DimensionType] = append(byType[m.DimensionType], m.ColumnIndex)

		if m.IsAutoDetected && m.ConfidenceScore < e.threshold {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"column %d auto-detected as %s with low confidence %.2f",
				m.ColumnIndex, m.DimensionType, m.ConfidenceScore))
		}
	}

	for _, role := range requiredRoles {
		if len(byType[role]) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("missing required dimension %s", role))
		}
	}

	if cols := byType[model.DimIndicatorName]; len(cols) > 1 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"multiple %s mappings (columns %v); each header is read as an indicator in column orientation",
			model.DimIndicatorName, cols))
	}

	if len(byType[model.DimTimeType]) == 0 {
		result.Suggestions = append(result.Suggestions,
			"no TIME mapping; facts will carry no time coordinate unless value headers are time labels")
	}
	if len(byType[model.DimLocationType]) == 0 {
		result.Suggestions = append(result.Suggestions,
			"no LOCATION mapping; facts will carry no location coordinate")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// DetectOrientation decides whether indicators run down the rows or across
// the header. Column 0 mapped INDICATOR_NAME means ROWS; otherwise a header
// that is mostly non-numeric text means COLUMNS; ROWS is the fallback.
func DetectOrientation(mappings []model.DimensionMapping, table *model.RawTable) model.Orientation {
	for _, m := range mappings {
		if m.ColumnIndex == 0 && m.DimensionType == model.DimIndicatorName {
			return model.OrientationRows
		}
	}

	if table == nil || !table.HasHeader || len(table.Rows) == 0 {
		return model.OrientationRows
	}

	header := table.Rows[0]
	text := 0
	for _, cell := range header {
		if cell != "" && !convert.LooksNumeric(cell) {
			text++
		}
	}
	if len(header) > 0 && text*2 > len(header) {
		return model.OrientationColumns
	}
	return model.OrientationRows
}

// sortedMappings orders mappings by column index without mutating the input.
func sortedMappings(mappings []model.DimensionMapping) []model.DimensionMapping {
	out := append([]model.DimensionMapping(nil), mappings...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ColumnIndex < out[j].ColumnIndex })
	return out
}
