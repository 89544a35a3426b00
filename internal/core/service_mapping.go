package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/logging"
	"github.com/JonMunkholm/factflow/internal/model"
)

// SuggestMappings scores every column of an analysis and returns the
// auto-detected mappings that clear the engine threshold. Suggestions are
// not saved.
func (s *Service) SuggestMappings(ctx context.Context, analysisID uuid.UUID) ([]model.DimensionMapping, error) {
	a, err := s.analysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	u, err := s.upload(ctx, a.UploadJobID)
	if err != nil {
		return nil, err
	}
	table, err := s.loadTable(u, a)
	if err != nil {
		return nil, err
	}
	return s.suggest(a, table), nil
}

func (s *Service) suggest(a *model.Analysis, table *model.RawTable) []model.DimensionMapping {
	suggestions := s.engine.Suggest(a.Columns, s.sampleRows(table))
	for i := range suggestions {
		suggestions[i].AnalysisID = a.ID
	}
	return suggestions
}

// SaveMapping records an operator's choice for one column, replacing any
// earlier mapping of that column. Saved mappings carry full confidence.
func (s *Service) SaveMapping(ctx context.Context, analysisID uuid.UUID, columnIndex int, dimType model.DimensionType, rules map[string]string) (model.DimensionMapping, error) {
	a, err := s.analysis(ctx, analysisID)
	if err != nil {
		return model.DimensionMapping{}, err
	}

	if columnIndex < 0 || columnIndex >= a.ColumnCount {
		return model.DimensionMapping{}, fmt.Errorf("%w: column out of range: %d (file has %d columns)",
			ErrInvalidInput, columnIndex, a.ColumnCount)
	}
	dimType, err = model.ParseDimensionType(string(dimType))
	if err != nil {
		return model.DimensionMapping{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validateRules(dimType, rules); err != nil {
		return model.DimensionMapping{}, err
	}

	saved, err := s.store.UpsertMapping(ctx, model.DimensionMapping{
		AnalysisID:      analysisID,
		ColumnIndex:     columnIndex,
		DimensionType:   dimType,
		ConfidenceScore: 1.0,
		IsAutoDetected:  false,
		MappingRules:    rules,
	})
	if err != nil {
		return model.DimensionMapping{}, model.Infra("save mapping", err)
	}

	logging.WithFields(ctx, "analysis_id", analysisID).Info("mapping saved",
		"column", columnIndex, "dimension_type", dimType)
	return saved, nil
}

// validateRules rejects rule values the pipeline would misread.
func validateRules(dimType model.DimensionType, rules map[string]string) error {
	for key, value := range rules {
		switch key {
		case model.RuleTimeSource:
			if dimType != model.DimTimeType {
				return fmt.Errorf("%w: rule %s applies to TIME mappings only", ErrInvalidInput, key)
			}
			if value != "header" && value != "cell" {
				return fmt.Errorf("%w: rule %s must be \"header\" or \"cell\", got %q", ErrInvalidInput, key, value)
			}
		case model.RuleDateLayout:
			if dimType != model.DimTimeType {
				return fmt.Errorf("%w: rule %s applies to TIME mappings only", ErrInvalidInput, key)
			}
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("%w: rule %s is empty", ErrInvalidInput, key)
			}
		case model.RuleDimensionName:
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("%w: rule %s is empty", ErrInvalidInput, key)
			}
		default:
			return fmt.Errorf("%w: unknown mapping rule %q", ErrInvalidInput, key)
		}
	}
	return nil
}

// DeleteMapping removes the saved mapping of one column.
func (s *Service) DeleteMapping(ctx context.Context, analysisID uuid.UUID, columnIndex int) error {
	if _, err := s.analysis(ctx, analysisID); err != nil {
		return err
	}
	if err := s.store.DeleteMapping(ctx, analysisID, columnIndex); err != nil {
		return fmt.Errorf("mapping of column %d: %w", columnIndex, err)
	}
	return nil
}

// ListMappings returns the saved mappings of an analysis ordered by column.
func (s *Service) ListMappings(ctx context.Context, analysisID uuid.UUID) ([]model.DimensionMapping, error) {
	if _, err := s.analysis(ctx, analysisID); err != nil {
		return nil, err
	}
	return s.store.ListMappings(ctx, analysisID)
}

// ValidateMappings checks the mapping set processing would use: the
// auto-suggestions with every saved mapping replacing the suggestion for its
// column.
func (s *Service) ValidateMappings(ctx context.Context, analysisID uuid.UUID) (model.ValidationResult, error) {
	a, err := s.analysis(ctx, analysisID)
	if err != nil {
		return model.ValidationResult{}, err
	}
	mappings, _, err := s.effectiveMappings(ctx, a)
	if err != nil {
		return model.ValidationResult{}, err
	}
	return s.engine.Validate(mappings), nil
}

// effectiveMappings merges the saved mappings of a over fresh suggestions,
// ordered by column, and returns the table it loaded to suggest them.
func (s *Service) effectiveMappings(ctx context.Context, a *model.Analysis) ([]model.DimensionMapping, *model.RawTable, error) {
	saved, err := s.store.ListMappings(ctx, a.ID)
	if err != nil {
		return nil, nil, model.Infra("list mappings", err)
	}

	u, err := s.upload(ctx, a.UploadJobID)
	if err != nil {
		return nil, nil, err
	}
	table, err := s.loadTable(u, a)
	if err != nil {
		return nil, nil, err
	}
	return mergeMappings(a.ColumnCount, s.suggest(a, table), saved), table, nil
}

// mergeMappings overlays saved on suggested by column index.
func mergeMappings(columns int, suggested, saved []model.DimensionMapping) []model.DimensionMapping {
	byColumn := make(map[int]model.DimensionMapping, len(suggested)+len(saved))
	for _, m := range suggested {
		byColumn[m.ColumnIndex] = m
	}
	for _, m := range saved {
		byColumn[m.ColumnIndex] = m
	}

	out := make([]model.DimensionMapping, 0, len(byColumn))
	for i := 0; i < columns; i++ {
		if m, ok := byColumn[i]; ok {
			out = append(out, m)
		}
	}
	return out
}
