package mapping

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/structure"
)

// Detector confidence levels. A detector scores BaseConfidence when its
// pattern does not match and MatchConfidence when it does.
const (
	BaseConfidence  = 0.5
	MatchConfidence = 0.9
)

// Column is the view of one column a detector scores: its position, header
// and the non-empty sampled values.
type Column struct {
	Index  int
	Header string
	Values []string
}

// Match is a detector's verdict on one column. ByHeader records that the
// header named the role, which outranks a value-pattern match of equal
// confidence.
type Match struct {
	Confidence float64
	ByHeader   bool
}

// ScoreFunc scores how likely a column plays a detector's role.
type ScoreFunc func(col Column) Match

// Detector pairs a dimension type with its scoring function.
type Detector struct {
	Type  model.DimensionType
	Score ScoreFunc
}

// Registry holds detectors in priority order. The highest confidence wins; on
// equal confidence a header match beats a value match, then earlier
// detectors win.
type Registry struct {
	detectors []Detector
}

// NewRegistry returns a registry loaded with the standard detectors.
func NewRegistry(vocab *Vocabulary) *Registry {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Registry{detectors: []Detector{
		{model.DimTimeType, timeDetector},
		{model.DimLocationType, locationDetector(vocab)},
		{model.DimIndicatorName, indicatorNameDetector},
		{model.DimIndicatorValue, indicatorValueDetector},
		{model.DimUnit, unitDetector(vocab)},
		{model.DimSource, sourceDetector},
	}}
}

// Register appends a detector at the lowest priority.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
}

// Detectors returns the registered detectors in priority order.
func (r *Registry) Detectors() []Detector {
	return append([]Detector(nil), r.detectors...)
}

// Best scores col with every detector and returns the winning type. When no
// detector beats BaseConfidence the column falls back to ADDITIONAL.
func (r *Registry) Best(col Column) (model.DimensionType, float64) {
	bestType, best := model.DimAdditional, Match{Confidence: BaseConfidence}
	for _, d := range r.detectors {
		if m := d.Score(col); m.beats(best) {
			bestType, best = d.Type, m
		}
	}
	return bestType, best.Confidence
}

func (m Match) beats(other Match) bool {
	if m.Confidence != other.Confidence {
		return m.Confidence > other.Confidence
	}
	return m.ByHeader && !other.ByHeader && m.Confidence > BaseConfidence
}

// detect combines the header and value evidence of one detector.
func detect(byHeader, byValues bool) Match {
	switch {
	case byHeader:
		return Match{Confidence: MatchConfidence, ByHeader: true}
	case byValues:
		return Match{Confidence: MatchConfidence}
	}
	return Match{Confidence: BaseConfidence}
}

/* ----------------------------------------
	DETECTORS
---------------------------------------- */

var (
	timeHeaderWords     = []string{"year", "month", "date", "time", "period"}
	locationHeaderWords = []string{"country", "state", "city", "region", "location", "area"}
	nameHeaderWords     = []string{"indicator", "metric", "measure", "name", "description"}
	valueHeaderWords    = []string{"value", "amount", "number", "score", "rate"}
	unitHeaderWords     = []string{"unit", "measurement"}
	sourceHeaderWords   = []string{"source", "reference", "url"}
)

func timeDetector(col Column) Match {
	return detect(headerHas(col.Header, timeHeaderWords), fraction(col.Values, LooksLikeTime) >= 0.5)
}

func locationDetector(vocab *Vocabulary) ScoreFunc {
	return func(col Column) Match {
		return detect(headerHas(col.Header, locationHeaderWords), fraction(col.Values, vocab.IsPlace) >= 0.3)
	}
}

func indicatorNameDetector(col Column) Match {
	return detect(headerHas(col.Header, nameHeaderWords), col.Index == 0 || fraction(col.Values, isText) >= 0.7)
}

func indicatorValueDetector(col Column) Match {
	return detect(headerHas(col.Header, valueHeaderWords), fraction(col.Values, convert.LooksNumeric) >= 0.7)
}

func unitDetector(vocab *Vocabulary) ScoreFunc {
	return func(col Column) Match {
		return detect(headerHas(col.Header, unitHeaderWords), fraction(col.Values, vocab.IsUnit) >= 0.5)
	}
}

func sourceDetector(col Column) Match {
	return detect(headerHas(col.Header, sourceHeaderWords), fraction(col.Values, looksLikeURL) >= 0.3)
}

/* ----------------------------------------
	VALUE PATTERNS
---------------------------------------- */

var (
	yearRegex      = regexp.MustCompile(`^(1[89]|2[01])\d{2}$`)
	yearRangeRegex = regexp.MustCompile(`^(1[89]|2[01])\d{2}\s*[-/]\s*(1[89]|2[01])?\d{2}$`)
	quarterRegex   = regexp.MustCompile(`(?i)^(q[1-4][\s/-]?\d{4}|\d{4}[\s/-]?q[1-4]|[1-4]q\d{2,4})$`)
	monthYearRegex = regexp.MustCompile(`^(0?[1-9]|1[0-2])[/-]\d{4}$|^\d{4}[/-](0?[1-9]|1[0-2])$`)
	monthNameRegex = regexp.MustCompile(`(?i)^(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sep(t(ember)?)?|oct(ober)?|nov(ember)?|dec(ember)?)\.?([\s/-]*\d{2,4})?$`)
	urlRegex       = regexp.MustCompile(`(?i)^(https?://|ftp://|www\.)\S+$|^[a-z0-9-]+(\.[a-z0-9-]+)*\.(com|org|net|gov|edu|int|io)(/\S*)?$`)
)

// LooksLikeTime reports whether a value reads as a year, year range,
// quarter, month or calendar date.
func LooksLikeTime(v string) bool {
	v = strings.TrimSpace(v)
	switch {
	case yearRegex.MatchString(v),
		yearRangeRegex.MatchString(v),
		quarterRegex.MatchString(v),
		monthYearRegex.MatchString(v),
		monthNameRegex.MatchString(v):
		return true
	}
	return strings.ContainsAny(v, "-/") && structure.IsDate(v)
}

func looksLikeURL(v string) bool {
	return urlRegex.MatchString(strings.TrimSpace(v))
}

// isText reports whether a value is non-numeric text.
func isText(v string) bool {
	return v != "" && !convert.LooksNumeric(v)
}

// headerHas reports whether any word of the header starts with one of the
// keywords ("Dates" matches "date", "Separate" does not match "rate").
func headerHas(header string, keywords []string) bool {
	words := strings.FieldsFunc(strings.ToLower(header), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		for _, k := range keywords {
			if strings.HasPrefix(w, k) {
				return true
			}
		}
	}
	return false
}

// fraction returns the share of values satisfying pred (0 for no values).
func fraction(values []string, pred func(string) bool) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if pred(v) {
			n++
		}
	}
	return float64(n) / float64(len(values))
}
