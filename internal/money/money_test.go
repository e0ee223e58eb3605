package money

import (
	"testing"

	"github.com/taxpadi/taxpadi/internal/platform/errors"
)

func TestParseCommonForms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  Amount
	}{
		{"0", 0},
		{"1", 100},
		{"0.5", 50},
		{"1234.56", 123456},
		{"1,234,567.89", 123456789},
		{"₦28,750", 2875000},
		{"NGN 3,000,000", 300000000},
		{"  250.00  ", 25000},
		{"-120.25", -12025},
		{"0.005", 1}, // rounds to nearest kobo
	}
	for _, tc := range cases {
		if got := Parse(tc.input); got != tc.want {
			t.Fatalf("Parse(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestParseMalformedYieldsZero(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "abc", "12.3.4", "₦"} {
		if got := Parse(input); got != 0 {
			t.Fatalf("Parse(%q) = %d, want 0", input, got)
		}
	}
}

func TestParseStrictRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseStrict("not-a-number")
	if !errors.IsCode(err, errors.CodeAmountUnparseable) {
		t.Fatalf("error code = %q, want %q", errors.GetCode(err), errors.CodeAmountUnparseable)
	}
	_, err = ParseStrict("")
	if !errors.IsCode(err, errors.CodeAmountUnparseable) {
		t.Fatalf("empty input error code = %q, want %q", errors.GetCode(err), errors.CodeAmountUnparseable)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"0", "0.01", "0.99", "1", "10.50", "999.99",
		"1234.56", "28750", "1,234,567.89", "3000000",
		"50000000", "123456789.01",
	}
	for _, input := range inputs {
		parsed := Parse(input)
		if got := Parse(parsed.Format()); got != parsed {
			t.Fatalf("Parse(Format(Parse(%q))) = %d, want %d (formatted %q)",
				input, got, parsed, parsed.Format())
		}
	}
}

func TestFormatGrouping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		amount Amount
		want   string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{123456789, "1,234,567.89"},
		{2875000, "28,750.00"},
		{-12025, "-120.25"},
	}
	for _, tc := range cases {
		if got := tc.amount.Format(); got != tc.want {
			t.Fatalf("Format(%d) = %q, want %q", tc.amount, got, tc.want)
		}
	}
	if got := Amount(2875000).FormatNaira(); got != "₦28,750.00" {
		t.Fatalf("FormatNaira = %q, want ₦28,750.00", got)
	}
}

func TestMultiplyByRateExact(t *testing.T) {
	t.Parallel()

	if got := MultiplyByRate(100000, 0.075); got != 7500 {
		t.Fatalf("MultiplyByRate(100000, 0.075) = %d, want 7500", got)
	}
	if got := RateToBasisPoints(0.075); got != 750 {
		t.Fatalf("RateToBasisPoints(0.075) = %d, want 750", got)
	}
	if got := ApplyBasisPoints(100000, 750); got != 7500 {
		t.Fatalf("ApplyBasisPoints(100000, 750) = %d, want 7500", got)
	}
}

func TestMultiplyByRateNeverDrifts(t *testing.T) {
	t.Parallel()

	const iterations = 10000
	single := MultiplyByRate(100000, 0.075)
	var total Amount
	for i := 0; i < iterations; i++ {
		total = total.Add(MultiplyByRate(100000, 0.075))
	}
	if total != single*iterations {
		t.Fatalf("accumulated = %d, want %d", total, single*iterations)
	}
}

func TestApplyBasisPointsRounding(t *testing.T) {
	t.Parallel()

	// 33 kobo at 5000 bps = 16.5 kobo, rounds half away from zero.
	if got := ApplyBasisPoints(33, 5000); got != 17 {
		t.Fatalf("ApplyBasisPoints(33, 5000) = %d, want 17", got)
	}
	if got := ApplyBasisPoints(-33, 5000); got != -17 {
		t.Fatalf("ApplyBasisPoints(-33, 5000) = %d, want -17", got)
	}
}

func TestComparisonHelpers(t *testing.T) {
	t.Parallel()

	a, b := Amount(100), Amount(250)
	if got := a.Add(b); got != 350 {
		t.Fatalf("Add = %d, want 350", got)
	}
	if got := b.Sub(a); got != 150 {
		t.Fatalf("Sub = %d, want 150", got)
	}
	if got := a.Min(b); got != 100 {
		t.Fatalf("Min = %d, want 100", got)
	}
	if got := a.Max(b); got != 250 {
		t.Fatalf("Max = %d, want 250", got)
	}
	if !Amount(0).IsZero() || a.IsZero() {
		t.Fatal("IsZero misreported")
	}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Fatal("Compare misordered")
	}
}
