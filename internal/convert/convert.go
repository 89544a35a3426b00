// Package convert turns messy CSV cell text into typed values.
//
// Indicator files arrive with currency symbols, percent signs, thousands
// separators, accounting negatives and Excel formula wrappers. Everything
// here returns pgtype values so parsed numbers flow straight into the fact
// table without a float round-trip.
package convert

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Magnitude limits for parsed values. Cells beyond them are invalid numbers;
// both stay far inside Postgres numeric (131072 integer, 16383 fraction digits).
const (
	MaxIntegerDigits  = 1000
	MaxFractionDigits = 1000
)

// maxRatExp bounds the power of ten Rat will expand.
const maxRatExp = MaxIntegerDigits + MaxFractionDigits

// numericRegex validates a cleaned number: integers, decimals and
// scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// currencyCodes are stripped when they prefix or suffix a number ("USD 10").
var currencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true, "MXN": true,
	"BRL": true, "COP": true, "CLP": true, "ARS": true, "PEN": true, "CAD": true,
	"AUD": true, "CHF": true, "INR": true,
}

// ExtractNumeric parses a cell as an arbitrary-precision decimal after
// stripping currency symbols and codes, percent signs, thousands separators
// and whitespace. "(12.5)" is negative. An empty cell returns an invalid
// Numeric and no error; unparseable text returns an "invalid number" error.
func ExtractNumeric(raw string) (pgtype.Numeric, error) {
	s := CleanCell(raw)
	if s == "" || IsNullToken(s) {
		return pgtype.Numeric{}, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = stripCurrencyCode(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '%' || r == '\'' || r == '_':
			return -1
		case unicode.IsSpace(r) || unicode.Is(unicode.Sc, r):
			return -1
		}
		return r
	}, s)
	s = normalizeSeparators(s)

	if negative {
		s = "-" + strings.TrimPrefix(s, "+")
	}

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{}, fmt.Errorf("invalid number %q", raw)
	}

	mantissa, exp := s, int64(0)
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa = s[:i]
		e, err := strconv.ParseInt(s[i+1:], 10, 32)
		if err != nil || e > maxRatExp || e < -maxRatExp {
			return pgtype.Numeric{}, fmt.Errorf("invalid number %q: exponent out of range", raw)
		}
		exp = e
	}
	if len(mantissa) > maxRatExp {
		return pgtype.Numeric{}, fmt.Errorf("invalid number %q: too many digits", raw)
	}

	var n pgtype.Numeric
	if err := n.Scan(strings.TrimSuffix(mantissa, ".")); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	n.Exp += int32(exp)
	if !withinLimits(n) {
		return pgtype.Numeric{}, fmt.Errorf("invalid number %q: magnitude out of range", raw)
	}
	return n, nil
}

// withinLimits reports whether n has at most MaxIntegerDigits integer digits
// and MaxFractionDigits fractional digits.
func withinLimits(n pgtype.Numeric) bool {
	if n.Int == nil || n.Int.Sign() == 0 {
		return true
	}
	digits := int64(len(new(big.Int).Abs(n.Int).String()))
	exp := int64(n.Exp)
	return digits+exp <= MaxIntegerDigits && -exp <= MaxFractionDigits
}

// nullTokens are cell spellings of a missing value.
var nullTokens = map[string]bool{
	"null": true, "nil": true, "na": true, "n/a": true, "#n/a": true, "none": true,
	"-": true, "--": true, "..": true, "...": true,
}

// IsNullToken reports whether a cell spells out a missing value.
func IsNullToken(s string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(s))]
}

// LooksNumeric reports whether a non-empty cell parses as a number under
// ExtractNumeric (so "12%", "$1,200" and "(5)" all count).
func LooksNumeric(s string) bool {
	n, err := ExtractNumeric(s)
	return err == nil && n.Valid
}

// stripCurrencyCode removes a leading or trailing ISO currency code.
func stripCurrencyCode(s string) string {
	if len(s) < 3 {
		return s
	}
	if code := strings.ToUpper(s[:3]); currencyCodes[code] {
		return strings.TrimSpace(s[3:])
	}
	if code := strings.ToUpper(s[len(s)-3:]); currencyCodes[code] {
		return strings.TrimSpace(s[:len(s)-3])
	}
	return s
}

// normalizeSeparators resolves thousands and decimal separators.
//
// With both '.' and ',' present the later one is the decimal separator.
// A lone ',' followed by exactly three digits is a thousands separator;
// otherwise it is a decimal comma ("3,5").
func normalizeSeparators(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case comma < 0:
		return s
	case dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case dot >= 0:
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") > 1 || len(s)-comma-1 == 3:
		return strings.ReplaceAll(s, ",", "")
	default:
		return strings.Replace(s, ",", ".", 1)
	}
}

// CleanCell removes common CSV artifacts from a cell value:
// surrounding whitespace, an Excel formula wrapper (="...") and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// Rat converts a valid, finite Numeric to a big.Rat.
func Rat(n pgtype.Numeric) (*big.Rat, bool) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return nil, false
	}
	exp := int64(n.Exp)
	if exp > maxRatExp || exp < -maxRatExp {
		return nil, false
	}
	r := new(big.Rat).SetInt(n.Int)
	if exp == 0 {
		return r, true
	}
	if exp < 0 {
		exp = -exp
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	if n.Exp > 0 {
		return r.Mul(r, new(big.Rat).SetInt(scale)), true
	}
	return r.Quo(r, new(big.Rat).SetInt(scale)), true
}

// RoundHalfUp rounds r to places fractional digits, halves away from zero.
func RoundHalfUp(r *big.Rat, places int) pgtype.Numeric {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))

	num := new(big.Int).Abs(scaled.Num())
	den := scaled.Denom()
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if new(big.Int).Lsh(rem, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if scaled.Sign() < 0 {
		q.Neg(q)
	}

	return pgtype.Numeric{Int: q, Exp: int32(-places), Valid: true}
}

// Mean averages values and rounds the result half-up to places fractional
// digits. Invalid values are skipped; ok is false when none remain.
func Mean(values []pgtype.Numeric, places int) (pgtype.Numeric, bool) {
	sum := new(big.Rat)
	count := 0
	for _, v := range values {
		r, ok := Rat(v)
		if !ok {
			continue
		}
		sum.Add(sum, r)
		count++
	}
	if count == 0 {
		return pgtype.Numeric{}, false
	}
	sum.Quo(sum, new(big.Rat).SetInt64(int64(count)))
	return RoundHalfUp(sum, places), true
}

// Compare compares a valid Numeric with an int64 bound (-1, 0, +1).
func Compare(n pgtype.Numeric, bound int64) (int, bool) {
	r, ok := Rat(n)
	if !ok {
		return 0, false
	}
	return r.Cmp(new(big.Rat).SetInt64(bound)), true
}

// FormatNumeric renders a Numeric as a plain decimal string ("" when invalid).
func FormatNumeric(n pgtype.Numeric) string {
	r, ok := Rat(n)
	if !ok {
		return ""
	}
	places := 0
	if n.Exp < 0 {
		places = int(-n.Exp)
	}
	return r.FloatString(places)
}

// ToPgUUID converts an optional UUID to pgtype.UUID.
func ToPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// FromPgUUID converts a nullable pgtype.UUID back to an optional UUID.
func FromPgUUID(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}
