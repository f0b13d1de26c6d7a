// Package money provides fixed-point parsing, formatting and rounding for
// contract and escrow amounts.
//
// Amounts carry 2 decimal places. All arithmetic is done on big.Int in the
// smallest unit (1.00 = 100 units) so milestone splits never drift.
package money

import (
	"math/big"
	"strconv"
	"strings"
)

const Decimals = 2

// unit is the number of smallest units in one whole currency unit.
var unit = big.NewInt(100)

// Parse converts a decimal string (e.g. "1000.33") to its smallest-unit
// big.Int representation (100033). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional digits past the second must be zero ("1.500" is fine, "1.505" is not)
func Parse(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	if len(frac) > Decimals {
		if strings.Trim(frac[Decimals:], "0") != "" {
			return nil, false
		}
		frac = frac[:Decimals]
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, false
	}
	return result, true
}

// ParseExact converts a plain decimal string of any precision to a rational
// number of whole currency units. Unlike Parse it keeps sub-unit digits, so
// "300.005" is 300005/1000.
func ParseExact(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Count(s, ".") > 1 {
		return nil, false
	}
	digits := 0
	for _, ch := range s {
		switch {
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '.':
		default:
			return nil, false
		}
	}
	if digits == 0 {
		return nil, false
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return new(big.Rat).SetString(s)
}

// MustParse is Parse for trusted literals; it panics on invalid input.
func MustParse(s string) *big.Int {
	v, ok := Parse(s)
	if !ok {
		panic("money: invalid amount " + strconv.Quote(s))
	}
	return v
}

// Format converts a smallest-unit big.Int to a decimal string with exactly
// 2 decimal places (e.g. "1000.33").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.00"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// Normalize re-formats a decimal string into canonical 2-decimal form.
func Normalize(s string) (string, bool) {
	v, ok := Parse(s)
	if !ok {
		return "", false
	}
	return Format(v), true
}

// RoundPercent returns round(amount * percent / 100) rounded half-up to a
// whole currency unit, expressed in smallest units.
func RoundPercent(amount *big.Int, percent float64) *big.Int {
	pct, ok := new(big.Rat).SetString(strconv.FormatFloat(percent, 'f', -1, 64))
	if !ok {
		pct = new(big.Rat).SetFloat64(percent)
	}
	if pct == nil {
		// NaN and ±Inf have no rational value
		return new(big.Int)
	}

	// whole units = amount / 100 * pct / 100
	r := new(big.Rat).SetInt(amount)
	r.Mul(r, pct)
	r.Quo(r, new(big.Rat).SetInt64(100*100))

	return new(big.Int).Mul(roundHalfUp(r), unit)
}

// roundHalfUp rounds a non-negative rational to the nearest integer, halves up.
// Negative inputs round half away from zero.
func roundHalfUp(r *big.Rat) *big.Int {
	neg := r.Sign() < 0
	abs := new(big.Rat).Abs(r)
	abs.Add(abs, big.NewRat(1, 2))
	q := new(big.Int).Quo(abs.Num(), abs.Denom())
	if neg {
		q.Neg(q)
	}
	return q
}

// SubFloor returns max(a-b, 0).
func SubFloor(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	if d.Sign() < 0 {
		return big.NewInt(0)
	}
	return d
}

// WithinExact reports whether |exact-amount| <= tolerance, where exact is in
// whole currency units and amount and tolerance are in smallest units.
func WithinExact(exact *big.Rat, amount, tolerance *big.Int) bool {
	d := new(big.Rat).Sub(exact, new(big.Rat).SetFrac(amount, unit))
	d.Abs(d)
	return d.Cmp(new(big.Rat).SetFrac(tolerance, unit)) <= 0
}

// Percent returns part/total*100 rounded to 2 decimal places. A zero total
// yields 0.
func Percent(part, total *big.Int) float64 {
	if total == nil || total.Sign() == 0 {
		return 0
	}
	r := new(big.Rat).SetFrac(new(big.Int).Mul(part, big.NewInt(100*100)), total)
	q := roundHalfUp(r)
	f, _ := new(big.Rat).SetFrac(q, big.NewInt(100)).Float64()
	return f
}
