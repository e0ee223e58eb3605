// Package money implements exact fixed-point arithmetic over kobo, the minor
// unit of the naira.
//
// Amounts are integer counts of kobo. No operation in this package goes
// through binary floating point once an amount exists: rates are converted to
// integer basis points exactly once, and all arithmetic after that is
// integer-exact, so repeated application never drifts.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/taxpadi/taxpadi/internal/platform/errors"
)

// Amount is a signed count of kobo (1/100 naira).
type Amount int64

// BasisPointDenominator is the integer denominator for rate arithmetic:
// one basis point is 1/10,000 of a whole.
const BasisPointDenominator = 10000

var printer = message.NewPrinter(language.MustParse("en-NG"))

// Parse converts display text into kobo, rounding to the nearest kobo.
//
// Grouping commas, naira signs, "NGN" prefixes and surrounding space are
// stripped first. Malformed or empty input yields zero by explicit policy:
// this is the single documented non-erroring fallback in the module, kept for
// form-input call sites that treat blanks as zero. Callers that need strict
// validation must use ParseStrict instead.
func Parse(text string) Amount {
	amount, err := ParseStrict(text)
	if err != nil {
		return 0
	}
	return amount
}

// ParseStrict converts display text into kobo, rejecting malformed input
// with an AMOUNT_UNPARSEABLE validation error.
func ParseStrict(text string) (Amount, error) {
	cleaned := normalizeAmountText(text)
	if cleaned == "" {
		return 0, errors.WithMetadata(errors.CodeAmountUnparseable,
			"amount text is empty", map[string]string{"input": text})
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, errors.Wrap(errors.CodeAmountUnparseable,
			"amount text is not a decimal number", err)
	}
	kobo := value.Mul(decimal.NewFromInt(100)).Round(0)
	if !kobo.IsInteger() || !kobo.BigInt().IsInt64() {
		return 0, errors.WithMetadata(errors.CodeAmountInvalid,
			"amount is out of range", map[string]string{"input": text})
	}
	return Amount(kobo.IntPart()), nil
}

func normalizeAmountText(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, "₦", "")
	cleaned = strings.TrimPrefix(strings.ToUpper(cleaned), "NGN")
	return strings.TrimSpace(cleaned)
}

// RateToBasisPoints converts a fractional rate (0.075 = 7.5%) to integer
// basis points with a single rounding. All subsequent rate arithmetic is
// integer-exact.
func RateToBasisPoints(rate float64) int64 {
	return decimal.NewFromFloat(rate).
		Mul(decimal.NewFromInt(BasisPointDenominator)).
		Round(0).
		IntPart()
}

// MultiplyByRate applies a fractional rate to an amount. The rate is rounded
// to basis points once; the multiply and divide are exact, with the final
// kobo rounded half away from zero.
func MultiplyByRate(amount Amount, rate float64) Amount {
	return ApplyBasisPoints(amount, RateToBasisPoints(rate))
}

// ApplyBasisPoints multiplies an amount by an integer basis-point rate,
// rounding the result to the nearest kobo.
func ApplyBasisPoints(amount Amount, basisPoints int64) Amount {
	result := decimal.NewFromInt(int64(amount)).
		Mul(decimal.NewFromInt(basisPoints)).
		DivRound(decimal.NewFromInt(BasisPointDenominator), 0)
	return Amount(result.IntPart())
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if b < a {
		return b
	}
	return a
}

// Max returns the larger of a and b.
func (a Amount) Max(b Amount) Amount {
	if b > a {
		return b
	}
	return a
}

// IsZero reports whether the amount is exactly zero kobo.
func (a Amount) IsZero() bool {
	return a == 0
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Compare(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Kobo returns the raw kobo count.
func (a Amount) Kobo() int64 {
	return int64(a)
}

// Format renders the amount as locale-grouped naira text with two decimals,
// e.g. 123456789 kobo -> "1,234,567.89". Parse(Format(x)) == x for any
// amount produced by Parse.
func (a Amount) Format() string {
	kobo := int64(a)
	sign := ""
	if kobo < 0 {
		sign = "-"
		kobo = -kobo
	}
	return printer.Sprintf("%s%d.%02d", sign, kobo/100, kobo%100)
}

// FormatNaira renders the amount with the naira sign, e.g. "₦1,234,567.89".
func (a Amount) FormatNaira() string {
	if a < 0 {
		return "-₦" + (-a).Format()
	}
	return "₦" + a.Format()
}
