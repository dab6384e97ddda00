package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

// decoration stripped from currency-formatted amounts before parsing
var amountReplacer = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "",
	",", "", " ", "", "\u00a0", "",
)

// plainAmount is a signed decimal without exponent, after decoration is stripped
var plainAmount = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

// ParseAmount normalizes a currency-formatted string such as "$1,234.50"
// into a decimal. Empty input is zero; "(12.00)" is negative.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = amountReplacer.Replace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", raw)
	}
	if !plainAmount.MatchString(s) {
		return decimal.Zero, fmt.Errorf("amount %q is not a plain decimal number", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate parses a date in any common layout. Unparseable or empty
// values yield nil rather than an error.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	return &t
}
