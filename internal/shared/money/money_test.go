package money

import (
	"errors"
	"math"
	"testing"
)

func TestAddOverflow(t *testing.T) {
	if _, err := Add(math.MaxInt64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	sum, err := Add(40_000, 60_000)
	if err != nil || sum != 100_000 {
		t.Fatalf("expected 100000, got %d (%v)", sum, err)
	}
}

func TestSubNeverNegative(t *testing.T) {
	if _, err := Sub(5, 10); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected underflow error, got %v", err)
	}
	diff, err := Sub(10, 10)
	if err != nil || diff != 0 {
		t.Fatalf("expected 0, got %d (%v)", diff, err)
	}
}

func TestMulDivFloors(t *testing.T) {
	got, err := MulDiv(10, 10, 3)
	if err != nil {
		t.Fatalf("muldiv failed: %v", err)
	}
	if got != 33 {
		t.Fatalf("expected floor 33, got %d", got)
	}
}

func TestMulDivLargeOperands(t *testing.T) {
	// weight*total products exceed 64 bits; the 128-bit intermediate keeps
	// the quotient exact.
	got, err := MulDiv(math.MaxInt64/2, 4, 8)
	if err != nil {
		t.Fatalf("muldiv failed: %v", err)
	}
	if got != math.MaxInt64/4 {
		t.Fatalf("unexpected quotient %d", got)
	}
	if _, err := MulDiv(math.MaxInt64, math.MaxInt64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestBpsFee(t *testing.T) {
	fee, err := Bps(40_000, 500)
	if err != nil {
		t.Fatalf("bps failed: %v", err)
	}
	if fee != 2_000 {
		t.Fatalf("expected fee 2000, got %d", fee)
	}
	// Floor rounding: 999 * 5% = 49.95 -> 49, never rounded up.
	fee, err = Bps(999, 500)
	if err != nil || fee != 49 {
		t.Fatalf("expected floored fee 49, got %d (%v)", fee, err)
	}
}
