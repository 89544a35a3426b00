package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/mapping"
	"github.com/JonMunkholm/factflow/internal/model"
)

// normalizedDateLayout is the format TIME cells are rewritten to when their
// mapping carries a dateLayout rule.
const normalizedDateLayout = "2006-01-02"

// GenericValue is one coordinate on a free-form dimension.
type GenericValue struct {
	Name  string
	Value string
}

// Observation is one extracted value with its coordinates still as text.
// An Observation whose Value is invalid or whose Indicator is empty becomes
// an invalid record: it counts against quality and is never persisted.
type Observation struct {
	Row        int
	Column     int
	Indicator  model.Indicator
	Time       string
	Location   string
	Generics   []GenericValue
	Value      pgtype.Numeric
	Raw        string
	Hash       string
	Confidence float64
}

// layout groups a mapping set by role, each slice ordered by column.
type layout struct {
	names      []model.DimensionMapping
	values     []model.DimensionMapping
	cellTimes  []model.DimensionMapping
	headTimes  []model.DimensionMapping
	locations  []model.DimensionMapping
	units      []model.DimensionMapping
	sources    []model.DimensionMapping
	goals      []model.DimensionMapping
	additional []model.DimensionMapping
}

func newLayout(mappings []model.DimensionMapping, headers []string) layout {
	sorted := append([]model.DimensionMapping(nil), mappings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ColumnIndex < sorted[j].ColumnIndex })

	var l layout
	for _, m := range sorted {
		switch m.DimensionType {
		case model.DimIndicatorName:
			l.names = append(l.names, m)
		case model.DimIndicatorValue:
			l.values = append(l.values, m)
		case model.DimTimeType:
			if headerValuedTime(m, headers) {
				l.headTimes = append(l.headTimes, m)
			} else {
				l.cellTimes = append(l.cellTimes, m)
			}
		case model.DimLocationType:
			l.locations = append(l.locations, m)
		case model.DimUnit:
			l.units = append(l.units, m)
		case model.DimSource:
			l.sources = append(l.sources, m)
		case model.DimGoal:
			l.goals = append(l.goals, m)
		case model.DimAdditional:
			l.additional = append(l.additional, m)
		}
	}
	return l
}

// headerValuedTime reports whether a TIME column carries its time label in
// the header (a year-per-column layout) rather than in its cells.
func headerValuedTime(m model.DimensionMapping, headers []string) bool {
	switch m.Rule(model.RuleTimeSource) {
	case "header":
		return true
	case "cell":
		return false
	}
	return isTimeLabel(header(headers, m.ColumnIndex))
}

func isTimeLabel(h string) bool {
	return h != "" && mapping.LooksLikeTime(h)
}

func header(headers []string, i int) string {
	if i < 0 || i >= len(headers) {
		return ""
	}
	return headers[i]
}

// confidence returns the weakest confidence among the mappings that produced
// a value.
func confidence(ms ...model.DimensionMapping) float64 {
	c := 1.0
	for _, m := range ms {
		if m.ConfidenceScore > 0 && m.ConfidenceScore < c {
			c = m.ConfidenceScore
		}
	}
	return c
}

// Extract turns every data row of table into observations according to the
// mapping set and orientation. Cell-level failures become row errors; they
// never stop extraction.
func Extract(table *model.RawTable, mappings []model.DimensionMapping, orientation model.Orientation) ([]Observation, []model.ProcessingError) {
	headers := table.Headers()
	l := newLayout(mappings, headers)
	x := &extractor{headers: headers, layout: l}

	for i, row := range table.DataRows() {
		rowNum := i + table.DataRowOffset()
		if orientation == model.OrientationColumns {
			x.columnsRow(row, rowNum)
		} else {
			x.rowsRow(row, rowNum)
		}
	}
	return x.obs, x.errs
}

type extractor struct {
	headers []string
	layout  layout
	obs     []Observation
	errs    []model.ProcessingError
}

// rowsRow handles one row of a table whose indicators run down a column.
func (x *extractor) rowsRow(row []string, rowNum int) {
	l := x.layout
	hash := RowHash(row)

	var nameMapping model.DimensionMapping
	name := ""
	if len(l.names) > 0 {
		nameMapping = l.names[0]
		name = model.Cell(row, nameMapping.ColumnIndex)
		if convert.IsNullToken(name) {
			name = ""
		}
	}
	base := x.rowContext(row, rowNum, hash)
	base.Indicator.Name = name

	missingReported := false
	emit := func(valueCol model.DimensionMapping, timeValue string, ms ...model.DimensionMapping) {
		raw := model.Cell(row, valueCol.ColumnIndex)
		obs, ok := x.observe(base, valueCol.ColumnIndex, raw, timeValue)
		if !ok {
			return
		}
		if name == "" && !missingReported {
			missingReported = true
			x.errs = append(x.errs, model.RowError(rowNum, model.ErrTypeMissingIndicator,
				fmt.Sprintf("column %d: indicator name is empty", nameMapping.ColumnIndex+1), raw, model.SeverityError))
		}
		obs.Confidence = confidence(append([]model.DimensionMapping{nameMapping, valueCol}, ms...)...)
		x.obs = append(x.obs, obs)
	}

	// Year-per-column TIME mappings carry the value in the cell.
	for _, t := range l.headTimes {
		emit(t, header(x.headers, t.ColumnIndex))
	}

	for _, v := range l.values {
		if len(l.cellTimes) == 0 {
			timeValue := ""
			if h := header(x.headers, v.ColumnIndex); isTimeLabel(h) {
				timeValue = h
			}
			emit(v, timeValue)
			continue
		}
		for _, t := range l.cellTimes {
			emit(v, x.timeCell(row, rowNum, t), t)
		}
	}
}

// columnsRow handles one row of a table whose indicators are column headers.
func (x *extractor) columnsRow(row []string, rowNum int) {
	l := x.layout
	hash := RowHash(row)
	base := x.rowContext(row, rowNum, hash)

	var timeMapping model.DimensionMapping
	timeValue := ""
	if len(l.cellTimes) > 0 {
		timeMapping = l.cellTimes[0]
		timeValue = x.timeCell(row, rowNum, l.cellTimes[0])
	}

	for _, n := range l.names {
		raw := model.Cell(row, n.ColumnIndex)
		base.Indicator.Name = header(x.headers, n.ColumnIndex)
		obs, ok := x.observe(base, n.ColumnIndex, raw, timeValue)
		if !ok {
			continue
		}
		obs.Confidence = confidence(timeMapping, n)
		x.obs = append(x.obs, obs)
	}
}

// rowContext collects the coordinates shared by every value of a row.
func (x *extractor) rowContext(row []string, rowNum int, hash string) Observation {
	l := x.layout
	obs := Observation{Row: rowNum, Hash: hash}

	obs.Indicator.Unit = firstCell(row, l.units)
	obs.Indicator.Source = firstCell(row, l.sources)
	obs.Indicator.Goal = firstCell(row, l.goals)

	// The first non-empty LOCATION cell is the location; further LOCATION
	// columns become generic coordinates named by their header.
	for _, m := range l.locations {
		v := model.Cell(row, m.ColumnIndex)
		if v == "" || convert.IsNullToken(v) {
			continue
		}
		if obs.Location == "" {
			obs.Location = v
			continue
		}
		obs.Generics = append(obs.Generics, GenericValue{Name: x.dimensionName(m), Value: v})
	}

	for _, m := range l.additional {
		v := model.Cell(row, m.ColumnIndex)
		if v == "" || convert.IsNullToken(v) {
			continue
		}
		obs.Generics = append(obs.Generics, GenericValue{Name: x.dimensionName(m), Value: v})
	}
	return obs
}

// observe parses raw into a copy of base. Empty cells and null tokens are
// missing observations (ok false). Unparseable cells yield an observation
// with an invalid value plus a row error.
func (x *extractor) observe(base Observation, col int, raw, timeValue string) (Observation, bool) {
	value, err := convert.ExtractNumeric(raw)
	if err == nil && !value.Valid {
		return Observation{}, false
	}

	obs := base
	obs.Column = col
	obs.Raw = raw
	obs.Time = timeValue
	obs.Generics = append([]GenericValue(nil), base.Generics...)

	if err != nil {
		x.errs = append(x.errs, model.RowError(base.Row, model.ErrTypeInvalidNumber,
			fmt.Sprintf("column %d: %v", col+1, err), raw, model.SeverityError))
		return obs, true
	}
	obs.Value = value
	return obs, true
}

// timeCell reads a cell-valued TIME column, normalizing it when the mapping
// names a date layout.
func (x *extractor) timeCell(row []string, rowNum int, m model.DimensionMapping) string {
	v := model.Cell(row, m.ColumnIndex)
	if convert.IsNullToken(v) {
		return ""
	}
	dateLayout := m.Rule(model.RuleDateLayout)
	if dateLayout == "" || v == "" {
		return v
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		x.errs = append(x.errs, model.RowError(rowNum, model.ErrTypeDimension,
			fmt.Sprintf("column %d: time %q does not match layout %q", m.ColumnIndex+1, v, dateLayout),
			v, model.SeverityWarning))
		return v
	}
	return t.Format(normalizedDateLayout)
}

func (x *extractor) dimensionName(m model.DimensionMapping) string {
	if name := strings.TrimSpace(m.Rule(model.RuleDimensionName)); name != "" {
		return name
	}
	return header(x.headers, m.ColumnIndex)
}

func firstCell(row []string, ms []model.DimensionMapping) string {
	for _, m := range ms {
		if v := model.Cell(row, m.ColumnIndex); v != "" && !convert.IsNullToken(v) {
			return v
		}
	}
	return ""
}
