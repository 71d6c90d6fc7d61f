// Package util contains helper functions used around the code.
package util

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrBadAmount is returned when an amount string is not a plain unsigned integer.
var ErrBadAmount = errors.New("amount is not a valid integer string")

// In returns true if s is found in ss, false otherwise
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// ParseUnits converts an amount given as an integer string in the coin's smallest unit into a
// decimal with prec fractional digits. "150000000" with prec 8 yields 1.50000000. The wallet only
// ever reports unsigned amounts, so signs are rejected.
func ParseUnits(s string, prec int32) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, ErrBadAmount
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return decimal.Zero, ErrBadAmount
		}
	}
	// textual split keeps every fractional digit, no float conversion involved
	var intPart, fracPart string
	if l := len(s); l > int(prec) {
		intPart, fracPart = s[:l-int(prec)], s[l-int(prec):]
	} else {
		intPart = "0"
		for i := 0; i < int(prec)-l; i++ {
			fracPart += "0"
		}
		fracPart += s
	}
	d, err := decimal.NewFromString(intPart + "." + fracPart)
	if err != nil {
		return decimal.Zero, ErrBadAmount
	}
	return d, nil
}
