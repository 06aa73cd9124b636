package amm

import (
	"math/bits"

	"github.com/outcomelab/predengine/internal/domain"
)

// mulDiv computes a*b/den with a 128-bit intermediate product. It fails with
// domain.ErrOverflow when the quotient does not fit in 64 bits and with
// domain.ErrInsufficientLiquidity when den is zero.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, domain.ErrInsufficientLiquidity
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, domain.ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// mulDivCeil computes ceil(a*b/den) with a 128-bit intermediate product,
// with the same failure modes as mulDiv.
func mulDivCeil(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, domain.ErrInsufficientLiquidity
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, domain.ErrOverflow
	}
	q, r := bits.Div64(hi, lo, den)
	if r != 0 {
		if q == ^uint64(0) {
			return 0, domain.ErrOverflow
		}
		q++
	}
	return q, nil
}

// addChecked computes a+b, failing with domain.ErrOverflow on carry.
func addChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrOverflow
	}
	return sum, nil
}

// mul128 returns the full 128-bit product of a and b.
func mul128(a, b uint64) (hi, lo uint64) {
	return bits.Mul64(a, b)
}

// mulCmp compares a*b against c*d using 128-bit products.
// Returns -1, 0, or 1.
func mulCmp(a, b, c, d uint64) int {
	hi1, lo1 := bits.Mul64(a, b)
	hi2, lo2 := bits.Mul64(c, d)
	switch {
	case hi1 != hi2:
		if hi1 < hi2 {
			return -1
		}
		return 1
	case lo1 != lo2:
		if lo1 < lo2 {
			return -1
		}
		return 1
	default:
		return 0
	}
}
