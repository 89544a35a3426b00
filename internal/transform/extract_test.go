package transform

import (
	"testing"

	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/model"
)

func TestExtract_Rules(t *testing.T) {
	table := &model.RawTable{HasHeader: true, Rows: [][]string{
		{"Indicator", "Date", "Region", "Unit", "Value"},
		{"GDP", "03/15/2020", "North", "USD", "10"},
		{"GDP", "2020-03-15", "South", "", "n/a"},
	}}
	mappings := []model.DimensionMapping{
		{ColumnIndex: 0, DimensionType: model.DimIndicatorName, ConfidenceScore: 0.9},
		{ColumnIndex: 1, DimensionType: model.DimTimeType, ConfidenceScore: 0.8,
			MappingRules: map[string]string{model.RuleDateLayout: "01/02/2006"}},
		{ColumnIndex: 2, DimensionType: model.DimAdditional, ConfidenceScore: 0.5,
			MappingRules: map[string]string{model.RuleDimensionName: "zone"}},
		{ColumnIndex: 3, DimensionType: model.DimUnit, ConfidenceScore: 1},
		{ColumnIndex: 4, DimensionType: model.DimIndicatorValue, ConfidenceScore: 1},
	}

	obs, errs := Extract(table, mappings, model.OrientationRows)

	if len(obs) != 1 {
		t.Fatalf("observations = %d, want 1 (null token skipped)", len(obs))
	}
	o := obs[0]
	if o.Time != "2020-03-15" {
		t.Errorf("Time = %q, want normalized 2020-03-15", o.Time)
	}
	if o.Indicator.Unit != "USD" {
		t.Errorf("Unit = %q", o.Indicator.Unit)
	}
	if len(o.Generics) != 1 || o.Generics[0] != (GenericValue{Name: "zone", Value: "North"}) {
		t.Errorf("Generics = %+v", o.Generics)
	}
	if o.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8 (weakest participating mapping)", o.Confidence)
	}
	if convert.FormatNumeric(o.Value) != "10" || o.Row != 2 {
		t.Errorf("observation = %+v", o)
	}

	// Row 3's date does not match the layout.
	if len(errs) != 1 || errs[0].ErrorType != model.ErrTypeDimension || errs[0].Severity != model.SeverityWarning {
		t.Errorf("errs = %+v", errs)
	}
}

func TestExtract_TimeSourceRule(t *testing.T) {
	table := &model.RawTable{HasHeader: true, Rows: [][]string{
		{"Indicator", "Period", "Value"},
		{"GDP", "FY20", "10"},
	}}

	tests := []struct {
		name     string
		rule     string
		wantTime string
		wantObs  int
	}{
		{"cell", "cell", "FY20", 1},
		{"header", "header", "Period", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mappings := []model.DimensionMapping{
				{ColumnIndex: 0, DimensionType: model.DimIndicatorName},
				{ColumnIndex: 1, DimensionType: model.DimTimeType, MappingRules: map[string]string{model.RuleTimeSource: tt.rule}},
				{ColumnIndex: 2, DimensionType: model.DimIndicatorValue},
			}
			obs, _ := Extract(table, mappings, model.OrientationRows)
			if tt.rule == "header" {
				// "FY20" is the value of the Period column and fails to parse;
				// column 2 is emitted without a time.
				if len(obs) != tt.wantObs || obs[0].Time != tt.wantTime || obs[0].Value.Valid {
					t.Errorf("obs = %+v", obs)
				}
				return
			}
			if len(obs) != tt.wantObs || obs[0].Time != tt.wantTime {
				t.Errorf("obs = %+v", obs)
			}
		})
	}
}

func TestExtract_MissingIndicatorReportedOncePerRow(t *testing.T) {
	table := &model.RawTable{HasHeader: true, Rows: [][]string{
		{"Indicator", "2020", "2021"},
		{"NULL", "1", "2"},
	}}
	mappings := []model.DimensionMapping{
		{ColumnIndex: 0, DimensionType: model.DimIndicatorName},
		{ColumnIndex: 1, DimensionType: model.DimIndicatorValue},
		{ColumnIndex: 2, DimensionType: model.DimIndicatorValue},
	}

	obs, errs := Extract(table, mappings, model.OrientationRows)
	if len(obs) != 2 {
		t.Fatalf("observations = %d, want 2", len(obs))
	}
	if len(errs) != 1 || errs[0].ErrorType != model.ErrTypeMissingIndicator {
		t.Errorf("errs = %+v", errs)
	}
}
