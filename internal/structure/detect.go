package structure

import (
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/factflow/internal/model"
)

// candidateDelimiters are counted in this order; ties keep the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// DetectDelimiter returns the candidate delimiter occurring most often in the
// first line, or ',' when none occurs.
func DetectDelimiter(firstLine string) rune {
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(firstLine, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// firstLine returns text up to the first line break.
func firstLine(text string) string {
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		return text[:i]
	}
	return text
}

var (
	numericRegex = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

	// yearLabelRegex matches four-digit years used as column labels in wide
	// tables ("Indicator,2020,2021").
	yearLabelRegex = regexp.MustCompile(`^(1[89]|2[01])\d{2}$`)
)

// IsNumeric reports whether s is a signed decimal.
func IsNumeric(s string) bool {
	return numericRegex.MatchString(s)
}

// headerLike reports whether a cell reads as a label: non-empty text, or a
// year, which wide tables use as column labels.
func headerLike(cell string) bool {
	if cell == "" {
		return false
	}
	return !IsNumeric(cell) || yearLabelRegex.MatchString(cell)
}

func headerLikeFraction(row []string) float64 {
	if len(row) == 0 {
		return 0
	}
	n := 0
	for _, c := range row {
		if headerLike(c) {
			n++
		}
	}
	return float64(n) / float64(len(row))
}

// DetectHeader treats row 0 as a header when every cell is a non-empty label
// and the next row, if any, has a strictly lower label fraction.
func DetectHeader(rows [][]string) bool {
	if len(rows) == 0 {
		return false
	}
	first := headerLikeFraction(rows[0])
	if first < 1 {
		return false
	}
	if len(rows) == 1 {
		return true
	}
	return headerLikeFraction(rows[1]) < first
}

var booleanValues = map[string]bool{
	"true": true, "false": true, "yes": true, "no": true, "1": true, "0": true,
}

// dateLayouts are accepted by date inference. Numeric month/day fields accept
// one or two digits.
var dateLayouts = func() []string {
	bases := []string{"2006", "2006-1-2", "2/1/2006", "1/2/2006"}
	times := []string{"", " 15:04", " 15:04:05", "T15:04", "T15:04:05"}
	layouts := make([]string, 0, len(bases)*len(times))
	for _, b := range bases {
		for _, t := range times {
			if b == "2006" && t != "" {
				continue
			}
			layouts = append(layouts, b+t)
		}
	}
	return layouts
}()

// IsDate reports whether s parses under one of the accepted date layouts.
func IsDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// InferColumnType classifies a column. Inference is conjunctive: every
// non-empty value must conform or the column is a string column.
func InferColumnType(values []string) model.DataType {
	var nonEmpty []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	if len(nonEmpty) == 0 {
		return model.TypeString
	}

	switch {
	case all(nonEmpty, IsNumeric):
		return model.TypeNumber
	case all(nonEmpty, func(v string) bool { return booleanValues[strings.ToLower(v)] }):
		return model.TypeBoolean
	case all(nonEmpty, IsDate):
		return model.TypeDate
	default:
		return model.TypeString
	}
}

func all(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}
