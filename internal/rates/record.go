package rates

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Record is one row of the rate sheet.
// Invariant: 0 <= MinRate <= MaxRate.
type Record struct {
	Continent      string          `json:"continent"`
	Country        string          `json:"country"`
	RawCountryCode string          `json:"country_code"`
	Prefix         string          `json:"prefix"`
	MinRate        decimal.Decimal `json:"min_rate"`
	MaxRate        decimal.Decimal `json:"max_rate"`
}

var errMalformedPrice = errors.New("malformed price")

// parsePrice accepts "$X.XXX" or "$X.XXX-$Y.YYY". A range yields min=X, max=Y.
func parsePrice(raw string) (min, max decimal.Decimal, err error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	vals := make([]decimal.Decimal, 0, 2)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimSpace(strings.TrimPrefix(p, "$"))
		if p == "" {
			return decimal.Zero, decimal.Zero, errMalformedPrice
		}
		d, err := decimal.NewFromString(p)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %q", errMalformedPrice, raw)
		}
		vals = append(vals, d)
	}
	min, max = vals[0], vals[0]
	if len(vals) == 2 {
		max = vals[1]
	}
	if min.IsNegative() || max.LessThan(min) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %q", errMalformedPrice, raw)
	}
	return min, max, nil
}

// normalizePrefix turns a rate-sheet code cell into the digit prefix used for matching.
//
//	"+44"        -> "44"
//	"1-242"      -> "242"
//	"(599) 9"    -> "5999"
//	"+7, +76"    -> "7"   (only the first code in a cell is indexed)
func normalizePrefix(raw string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '+' {
			return -1
		}
		return r
	}, raw)
	s = strings.TrimPrefix(s, "1-")
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return digitsOnly(s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cleanNumber strips the decoration users type around phone numbers.
// Anything other than whitespace, parentheses, '+' and '-' is kept as-is.
func cleanNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '+' || r == '-' {
			return -1
		}
		return r
	}, raw)
}
