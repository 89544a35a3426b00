package convert

import (
	"math/big"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ----------------------------------------------------------------------------
// ExtractNumeric Tests
// ----------------------------------------------------------------------------

func TestExtractNumeric(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantErr   bool
		wantValue string
	}{
		// Plain numbers
		{name: "integer", input: "123", wantValid: true, wantValue: "123"},
		{name: "negative", input: "-456", wantValid: true, wantValue: "-456"},
		{name: "decimal", input: "123.45", wantValid: true, wantValue: "123.45"},
		{name: "leading point", input: ".99", wantValid: true, wantValue: "0.99"},
		{name: "trailing point", input: "99.", wantValid: true, wantValue: "99"},
		{name: "scientific", input: "1.5e3", wantValid: true, wantValue: "1500"},

		// Formatting noise
		{name: "thousands", input: "1,234.56", wantValid: true, wantValue: "1234.56"},
		{name: "dollar", input: "$1,200", wantValid: true, wantValue: "1200"},
		{name: "euro decimal comma", input: "€1.234,56", wantValid: true, wantValue: "1234.56"},
		{name: "decimal comma", input: "3,5", wantValid: true, wantValue: "3.5"},
		{name: "percent", input: "12%", wantValid: true, wantValue: "12"},
		{name: "currency code", input: "USD 10", wantValid: true, wantValue: "10"},
		{name: "trailing code", input: "10 EUR", wantValid: true, wantValue: "10"},
		{name: "spaces", input: " 1 000 ", wantValid: true, wantValue: "1000"},
		{name: "accounting negative", input: "(12.5)", wantValid: true, wantValue: "-12.5"},
		{name: "excel wrapper", input: "=\"42\"", wantValid: true, wantValue: "42"},

		// Missing values
		{name: "empty", input: "", wantValid: false},
		{name: "whitespace", input: "   ", wantValid: false},
		{name: "null token", input: "n/a", wantValid: false},
		{name: "dash", input: "-", wantValid: false},

		// Garbage
		{name: "text", input: "abc", wantErr: true},
		{name: "two points", input: "1.2.3", wantErr: true},
		{name: "lone percent", input: "%", wantErr: true},

		// Magnitude limits
		{name: "largest exponent", input: "1e999", wantValid: true, wantValue: "1" + strings.Repeat("0", 999)},
		{name: "huge exponent", input: "1e999999999", wantErr: true},
		{name: "exponent overflow", input: "1e99999999999", wantErr: true},
		{name: "too many integer digits", input: "1e1000", wantErr: true},
		{name: "tiny exponent", input: "1e-200000", wantErr: true},
		{name: "long digit string", input: strings.Repeat("9", 2001), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractNumeric(tt.input)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractNumeric(%q) expected error, got %v", tt.input, FormatNumeric(got))
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractNumeric(%q) error = %v", tt.input, err)
			}
			if got.Valid != tt.wantValid {
				t.Fatalf("ExtractNumeric(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if tt.wantValid && FormatNumeric(got) != tt.wantValue {
				t.Errorf("ExtractNumeric(%q) = %s, want %s", tt.input, FormatNumeric(got), tt.wantValue)
			}
		})
	}
}

func TestLooksNumeric(t *testing.T) {
	tests := map[string]bool{
		"12":     true,
		"3.5%":   true,
		"(5)":    true,
		"":       false,
		"n/a":    false,
		"GDP":    false,
		"2020Q1": false,
	}
	for in, want := range tests {
		if got := LooksNumeric(in); got != want {
			t.Errorf("LooksNumeric(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsNullToken(t *testing.T) {
	for _, s := range []string{"NULL", " n/a ", "#N/A", "..", "None"} {
		if !IsNullToken(s) {
			t.Errorf("IsNullToken(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0", "nan?", "Nigeria"} {
		if IsNullToken(s) {
			t.Errorf("IsNullToken(%q) = true", s)
		}
	}
}

// ----------------------------------------------------------------------------
// Decimal arithmetic
// ----------------------------------------------------------------------------

func mustNumeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	n, err := ExtractNumeric(s)
	if err != nil || !n.Valid {
		t.Fatalf("ExtractNumeric(%q) = %v, %v", s, n, err)
	}
	return n
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		num, den int64
		places   int
		want     string
	}{
		{2, 3, 6, "0.666667"},
		{1, 3, 6, "0.333333"},
		{5, 2, 0, "3"},
		{-5, 2, 0, "-3"},
		{1, 8, 2, "0.13"},
		{105, 1, 6, "105.000000"},
	}

	for _, tt := range tests {
		got := RoundHalfUp(big.NewRat(tt.num, tt.den), tt.places)
		if s := FormatNumeric(got); s != tt.want {
			t.Errorf("RoundHalfUp(%d/%d, %d) = %s, want %s", tt.num, tt.den, tt.places, s, tt.want)
		}
	}
}

func TestMean(t *testing.T) {
	values := []pgtype.Numeric{
		mustNumeric(t, "1"),
		mustNumeric(t, "1"),
		mustNumeric(t, "2"),
		{},
	}

	got, ok := Mean(values, 6)
	if !ok {
		t.Fatal("Mean() ok = false")
	}
	if s := FormatNumeric(got); s != "1.333333" {
		t.Errorf("Mean() = %s, want 1.333333", s)
	}

	if _, ok := Mean([]pgtype.Numeric{{}}, 6); ok {
		t.Error("Mean of invalid values should report ok = false")
	}
}

func TestCompare(t *testing.T) {
	n := mustNumeric(t, "999999999.5")
	if c, ok := Compare(n, 999_999_999); !ok || c != 1 {
		t.Errorf("Compare() = %d, %v; want 1, true", c, ok)
	}
	if c, ok := Compare(mustNumeric(t, "-0.01"), 0); !ok || c != -1 {
		t.Errorf("Compare() = %d, %v; want -1, true", c, ok)
	}
	if _, ok := Compare(pgtype.Numeric{}, 0); ok {
		t.Error("Compare(invalid) ok = true")
	}
}

// ----------------------------------------------------------------------------
// pgtype helpers
// ----------------------------------------------------------------------------

func TestRat_RefusesUnboundedScale(t *testing.T) {
	for _, exp := range []int32{maxRatExp + 1, -maxRatExp - 1, 1 << 30, -1 << 31} {
		n := pgtype.Numeric{Int: big.NewInt(1), Exp: exp, Valid: true}
		if _, ok := Rat(n); ok {
			t.Errorf("Rat(1e%d) ok, want refusal", exp)
		}
		if _, ok := Compare(n, 0); ok {
			t.Errorf("Compare(1e%d) ok, want refusal", exp)
		}
	}
	if r, ok := Rat(pgtype.Numeric{Int: big.NewInt(15), Exp: -1, Valid: true}); !ok || r.FloatString(1) != "1.5" {
		t.Errorf("Rat(15e-1) = %v, %v", r, ok)
	}
}

func TestPgUUIDRoundTrip(t *testing.T) {
	if got := ToPgUUID(nil); got.Valid {
		t.Error("ToPgUUID(nil) should be invalid")
	}
	if got := FromPgUUID(pgtype.UUID{}); got != nil {
		t.Errorf("FromPgUUID(invalid) = %v, want nil", got)
	}

	id := uuid.New()
	back := FromPgUUID(ToPgUUID(&id))
	if back == nil || *back != id {
		t.Errorf("round trip = %v, want %v", back, id)
	}
}
