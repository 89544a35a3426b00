package mapping

import (
	"testing"

	"github.com/JonMunkholm/factflow/internal/model"
)

func TestRegistry_Best(t *testing.T) {
	registry := NewRegistry(nil)

	tests := []struct {
		name     string
		col      Column
		wantType model.DimensionType
		wantConf float64
	}{
		{
			name:     "year header",
			col:      Column{Index: 1, Header: "Year", Values: []string{"2020", "2021"}},
			wantType: model.DimTimeType,
			wantConf: MatchConfidence,
		},
		{
			name:     "quarter values",
			col:      Column{Index: 2, Header: "Periodo", Values: []string{"Q1 2020", "Q2 2020", "2020Q3"}},
			wantType: model.DimTimeType,
			wantConf: MatchConfidence,
		},
		{
			name:     "month names",
			col:      Column{Index: 2, Header: "Mes", Values: []string{"January 2020", "Feb 2020"}},
			wantType: model.DimTimeType,
			wantConf: MatchConfidence,
		},
		{
			name:     "country header",
			col:      Column{Index: 1, Header: "Country", Values: []string{"Atlantis"}},
			wantType: model.DimLocationType,
			wantConf: MatchConfidence,
		},
		{
			name:     "gazetteer values",
			col:      Column{Index: 2, Header: "Pais", Values: []string{"Colombia", "France", "Texas"}},
			wantType: model.DimLocationType,
			wantConf: MatchConfidence,
		},
		{
			name:     "first column",
			col:      Column{Index: 0, Header: "Column_1", Values: []string{"GDP", "Population"}},
			wantType: model.DimIndicatorName,
			wantConf: MatchConfidence,
		},
		{
			name:     "indicator header",
			col:      Column{Index: 3, Header: "Indicator", Values: []string{"GDP"}},
			wantType: model.DimIndicatorName,
			wantConf: MatchConfidence,
		},
		{
			name:     "numeric values",
			col:      Column{Index: 1, Header: "2020", Values: []string{"100", "5"}},
			wantType: model.DimIndicatorValue,
			wantConf: MatchConfidence,
		},
		{
			name:     "percent values",
			col:      Column{Index: 3, Header: "x", Values: []string{"12%", "3.5%", "$1,200"}},
			wantType: model.DimIndicatorValue,
			wantConf: MatchConfidence,
		},
		{
			name:     "unit header beats text values",
			col:      Column{Index: 4, Header: "Unit", Values: []string{"kg", "tonnes"}},
			wantType: model.DimUnit,
			wantConf: MatchConfidence,
		},
		{
			name:     "source header beats text values",
			col:      Column{Index: 5, Header: "Source", Values: []string{"World Bank"}},
			wantType: model.DimSource,
			wantConf: MatchConfidence,
		},
		{
			name:     "url values lose ties to text",
			col:      Column{Index: 5, Header: "Link", Values: []string{"https://data.example.org/gdp", "www.example.com"}},
			wantType: model.DimIndicatorName,
			wantConf: MatchConfidence,
		},
		{
			name:     "nothing matches",
			col:      Column{Index: 6, Header: "Flag", Values: []string{"1", "x", "2", "y"}},
			wantType: model.DimAdditional,
			wantConf: BaseConfidence,
		},
		{
			name:     "no values",
			col:      Column{Index: 6, Header: "Notes"},
			wantType: model.DimAdditional,
			wantConf: BaseConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotConf := registry.Best(tt.col)
			if gotType != tt.wantType || gotConf != tt.wantConf {
				t.Errorf("Best() = %s %.1f, want %s %.1f", gotType, gotConf, tt.wantType, tt.wantConf)
			}
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(Detector{
		Type: model.DimGoal,
		Score: func(col Column) Match {
			return detect(headerHas(col.Header, []string{"goal", "target"}), false)
		},
	})

	got, _ := registry.Best(Column{Index: 3, Header: "Target 2030", Values: []string{"5", "7"}})
	if got != model.DimGoal {
		t.Errorf("Best() = %s, want GOAL", got)
	}
	if n := len(registry.Detectors()); n != 7 {
		t.Errorf("Detectors() = %d, want 7", n)
	}
}

func TestLooksLikeTime(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"2020", true},
		{"1999", true},
		{"2019-2020", true},
		{"2019/20", true},
		{"Q3 2021", true},
		{"2021-Q1", true},
		{"03/2020", true},
		{"2020-03", true},
		{"March", true},
		{"Sept 2020", true},
		{"2020-03-15", true},
		{"15/03/2020", true},
		{"100", false},
		{"3000", false},
		{"Marketing", false},
		{"Mayor", false},
		{"GDP", false},
	}

	for _, tt := range tests {
		if got := LooksLikeTime(tt.value); got != tt.want {
			t.Errorf("LooksLikeTime(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestHeaderHas(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"Rate", true},
		{"Growth rate (%)", true},
		{"rates_2020", true},
		{"Separate", false},
		{"Narrative", false},
	}

	for _, tt := range tests {
		if got := headerHas(tt.header, valueHeaderWords); got != tt.want {
			t.Errorf("headerHas(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
