package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by monetary amounts.
const Scale = 2

// ErrTooPrecise is returned when an amount carries sub-cent precision.
var ErrTooPrecise = errors.New("money: more than two fractional digits")

// Zero returns the zero amount.
func Zero() decimal.Decimal { return decimal.Zero }

// ParseStrict parses an operator-supplied amount. The value must be a plain
// decimal with at most two fractional digits.
func ParseStrict(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, err
	}
	if d.Exponent() < -Scale {
		return decimal.Zero, ErrTooPrecise
	}
	return d, nil
}

// ParseLenient parses a value coming from an external row source. Comma
// decimal separators are accepted; blank or unparsable values count as zero,
// since absent monetary columns are treated as zero by the aggregation rules.
func ParseLenient(value string) decimal.Decimal {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Sum adds amounts with exact decimal addition, no intermediate rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Equal reports exact decimal equality.
func Equal(a, b decimal.Decimal) bool { return a.Equal(b) }

// Format renders an amount with exactly two fractional digits.
func Format(a decimal.Decimal) string { return a.StringFixed(Scale) }
