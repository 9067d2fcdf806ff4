// Package money provides checked fixed-point arithmetic for pool balances.
//
// All monetary values in the pool engine are int64 amounts denominated in the
// funding asset's smallest unit. Percentages are basis points (10000 = 100%).
// Every operation fails with ErrArithmeticOverflow instead of wrapping, and
// division always floors so rounding never favors the paying side.
package money

import (
	"errors"
	"math"
	"math/bits"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrZeroDivisor        = errors.New("division by zero")
)

// Add returns a+b, failing on overflow. Both operands must be non-negative.
func Add(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeAmount
	}
	if a > math.MaxInt64-b {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

// Sub returns a-b and fails when the result would go negative. Balances in
// the ledger are never allowed below zero, so underflow is an input error.
func Sub(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeAmount
	}
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// MulDiv returns floor(a*b/div) using a 128-bit intermediate product, so
// allocation math like weight*total/totalWeight never overflows silently.
func MulDiv(a, b, div int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegativeAmount
	}
	if div <= 0 {
		return 0, ErrZeroDivisor
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(div) {
		return 0, ErrArithmeticOverflow
	}
	quo, _ := bits.Div64(hi, lo, uint64(div))
	if quo > math.MaxInt64 {
		return 0, ErrArithmeticOverflow
	}
	return int64(quo), nil
}

// Bps returns floor(amount*bps/10000). Used for platform fees, withdrawal
// penalties, and milestone tranche sizing.
func Bps(amount, bps int64) (int64, error) {
	if bps < 0 || bps > BpsDenominator {
		return 0, ErrNegativeAmount
	}
	return MulDiv(amount, bps, BpsDenominator)
}
