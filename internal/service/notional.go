package service

import (
	"math/bits"

	"github.com/outcomelab/predengine/internal/domain"
)

// notional converts an outcome-token amount and a basis-point price into the
// collateral cost, rounding down. The product is computed in 128 bits.
func notional(amount uint64, priceBps int64) (uint64, error) {
	hi, lo := bits.Mul64(amount, uint64(priceBps))
	den := uint64(domain.PriceScaleBps)
	if hi >= den {
		return 0, domain.ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}
