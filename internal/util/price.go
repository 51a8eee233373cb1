// Package util provides common utility functions for price calculations.
package util

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundCents rounds x half away from zero to two decimal places.
// Decimal arithmetic avoids the binary drift of math.Round(x*100)/100
// (1.005 rounds to 1.01, not 1.00).
func RoundCents(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}

// FormatMoney renders x with exactly two decimals and no currency decoration.
func FormatMoney(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(2)
}

// ParseMoney parses a numeric field that may carry currency decoration:
// a leading "$", thousands separators, a trailing "%" or surrounding spaces.
// "(1.50)" is read as -1.50. The empty string is reported as ok == false.
func ParseMoney(s string) (float64, bool, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, false, nil
	}
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', '%', ' ':
			return -1
		}
		return r
	}, cleaned)
	if cleaned == "" || strings.EqualFold(cleaned, "nan") {
		return 0, false, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false, fmt.Errorf("parsing money %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	f, _ := d.Float64()
	return f, true, nil
}
