package main

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// RatioDenominator is the number of parts a Ratio is expressed in (one billion)
const RatioDenominator = 1_000_000_000

// Ratio is a proportion in [0, 1] expressed in parts per billion
type Ratio uint32

// RatioFromPercent builds a ratio from a whole percentage
func RatioFromPercent(p uint32) Ratio {
	return Ratio(p * (RatioDenominator / 100))
}

// Valid reports whether the ratio lies in [0, 1]
func (r Ratio) Valid() bool {
	return r <= RatioDenominator
}

// MulFloor returns floor(x * r) without intermediate overflow
func (r Ratio) MulFloor(x Amount) Amount {
	hi, lo := bits.Mul64(uint64(x), uint64(r))
	// hi < RatioDenominator whenever r <= 1, so Div64 cannot panic
	q, _ := bits.Div64(hi, lo, RatioDenominator)
	return Amount(q)
}

// String renders the ratio as a decimal fraction
func (r Ratio) String() string {
	return strconv.FormatFloat(float64(r)/RatioDenominator, 'f', -1, 64)
}

// ParseRatio accepts either a decimal fraction ("0.25") or a percentage ("25%")
func ParseRatio(s string) (Ratio, error) {
	s = strings.TrimSpace(s)
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSuffix(s, "%")
		scale = 100.0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	f /= scale
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("ratio %q out of range [0, 1]", s)
	}
	return Ratio(f*RatioDenominator + 0.5), nil
}

// UnmarshalText lets ratios be written as fractions in config files
func (r *Ratio) UnmarshalText(text []byte) error {
	parsed, err := ParseRatio(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalText is the inverse of UnmarshalText
func (r Ratio) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// CheckedAdd returns a + b or ErrOverflow
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return Amount(sum), nil
}

// CheckedMul returns a * n or ErrOverflow
func (a Amount) CheckedMul(n uint64) (Amount, error) {
	hi, lo := bits.Mul64(uint64(a), n)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return Amount(lo), nil
}

// CheckedSub returns a - b or ErrOverflow when b > a
func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// SaturatingSub returns a - b clamped at zero
func (a Amount) SaturatingSub(b Amount) Amount {
	if b > a {
		return 0
	}
	return a - b
}

// CheckedAdd returns the block b + d or ErrOverflow
func (b BlockNumber) CheckedAdd(d BlockNumber) (BlockNumber, error) {
	sum, carry := bits.Add64(uint64(b), uint64(d), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return BlockNumber(sum), nil
}
