package model

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in the smallest currency unit (cents).  All fare,
// wallet and refund arithmetic happens on Money so that totals are
// reproducible; the two-decimal representation only exists at the JSON
// boundary.
type Money int64

// MaxAmount bounds any single amount accepted from outside and any
// aggregate fare (one billion currency units).  MaxAmount times a
// basis-point rate stays inside int64.
const MaxAmount Money = 1_000_000_000_00

// MaxSeatsPerBooking bounds the seats of one booking or fare quote.
const MaxSeatsPerBooking = 100

// FromUnits converts a decimal amount such as 12.345 into Money, rounding
// half away from zero to the nearest cent.
func FromUnits(v float64) Money {
	return Money(math.Round(v * 100))
}

// ParseMoney parses a decimal string ("500", "499.5", "12.34").
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if math.Abs(f) > MaxAmount.Units() {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return FromUnits(f), nil
}

// Percent returns m × bp / 10000 rounded half-up to the cent.  bp is
// expressed in basis points so that 5% is 500.  Negative inputs are
// rounded symmetrically.
func (m Money) Percent(bp int64) Money {
	p := int64(m) * bp
	if p < 0 {
		return -Money((-p + 5000) / 10000)
	}
	return Money((p + 5000) / 10000)
}

// Units returns the amount as a float in currency units.
func (m Money) Units() float64 { return float64(m) / 100 }

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON emits a JSON number with two decimals (e.g. 1070.00).
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MinMoney returns the smaller of a and b.
func MinMoney(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

// MaxMoney returns the larger of a and b.
func MaxMoney(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}
