package amm

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/predengine/internal/domain"
)

func now() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func kProduct(p *Pool) *big.Int {
	hi, lo := p.K()
	k := new(big.Int).Lsh(new(big.Int).SetUint64(hi), 64)
	return k.Add(k, new(big.Int).SetUint64(lo))
}

// expectedOutput recomputes the constant-product output with big.Int:
// out = reserveOut - ceil((reserveIn*reserveOut)/(reserveIn+input-fee)).
func expectedOutput(reserveIn, reserveOut, input, feeBps uint64) (out, fee uint64) {
	in := new(big.Int).SetUint64(reserveIn)
	outR := new(big.Int).SetUint64(reserveOut)
	feeBig := new(big.Int).Mul(new(big.Int).SetUint64(input), new(big.Int).SetUint64(feeBps))
	feeBig.Div(feeBig, big.NewInt(10000))
	eff := new(big.Int).Sub(new(big.Int).SetUint64(input), feeBig)

	k := new(big.Int).Mul(in, outR)
	den := new(big.Int).Add(in, eff)
	kept, rem := new(big.Int).DivMod(k, den, new(big.Int))
	if rem.Sign() != 0 {
		kept.Add(kept, big.NewInt(1))
	}
	res := new(big.Int).Sub(outR, kept)
	return res.Uint64(), feeBig.Uint64()
}

func TestAddLiquidityBootstrap(t *testing.T) {
	p := New("mkt-1", 0, now())

	minted, err := p.AddLiquidity(1_000_000_000, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), minted, "equal bootstrap deposit mints its own size")

	snap := p.Snapshot(now())
	assert.Equal(t, uint64(1_000_000_000), snap.YesReserve)
	assert.Equal(t, uint64(1_000_000_000), snap.NoReserve)
	assert.Equal(t, uint64(1_000_000_000), snap.TotalLPTokens)
}

func TestAddLiquidityRatioEnforcement(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(1_000, 4_000)
	require.NoError(t, err)

	// A deposit off the 1:4 ratio is rejected.
	_, err = p.AddLiquidity(1_000, 3_999)
	assert.ErrorIs(t, err, domain.ErrRatioMismatch)

	// A proportional deposit mints proportionally to the LP supply.
	before := p.Snapshot(now()).TotalLPTokens
	minted, err := p.AddLiquidity(500, 2_000)
	require.NoError(t, err)
	assert.Equal(t, before/2, minted)

	snap := p.Snapshot(now())
	assert.Equal(t, uint64(1_500), snap.YesReserve)
	assert.Equal(t, uint64(6_000), snap.NoReserve)
}

func TestAddLiquidityRejectsZeroSides(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(0, 1_000)
	assert.ErrorIs(t, err, domain.ErrAmountTooSmall)
	_, err = p.AddLiquidity(1_000, 0)
	assert.ErrorIs(t, err, domain.ErrAmountTooSmall)
	assert.True(t, p.Empty())
}

func TestSoleProviderRoundTripIsExact(t *testing.T) {
	const deposit = 123_456_789
	p := New("mkt-1", 0, now())

	minted, err := p.AddLiquidity(deposit, deposit)
	require.NoError(t, err)

	yesOut, noOut, err := p.RemoveLiquidity(minted)
	require.NoError(t, err)
	assert.Equal(t, uint64(deposit), yesOut)
	assert.Equal(t, uint64(deposit), noOut)

	snap := p.Snapshot(now())
	assert.Zero(t, snap.YesReserve)
	assert.Zero(t, snap.NoReserve)
	assert.Zero(t, snap.TotalLPTokens)
	assert.True(t, p.Empty())
}

func TestRemoveLiquidityProRata(t *testing.T) {
	p := New("mkt-1", 0, now())
	minted, err := p.AddLiquidity(1_000, 4_000)
	require.NoError(t, err)
	require.Equal(t, uint64(2_500), minted)

	yesOut, noOut, err := p.RemoveLiquidity(1_250)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), yesOut)
	assert.Equal(t, uint64(2_000), noOut)

	snap := p.Snapshot(now())
	assert.Equal(t, uint64(500), snap.YesReserve)
	assert.Equal(t, uint64(2_000), snap.NoReserve)
	assert.Equal(t, uint64(1_250), snap.TotalLPTokens)

	_, _, err = p.RemoveLiquidity(99_999)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
	_, _, err = p.RemoveLiquidity(0)
	assert.ErrorIs(t, err, domain.ErrAmountTooSmall)
}

func TestQuoteMatchesConstantProduct(t *testing.T) {
	tests := []struct {
		name               string
		yesRes, noRes      uint64
		input              uint64
	}{
		{"balanced", 10_000_000_000, 10_000_000_000, 1_000_000_000},
		{"skewed", 2_000_000_000, 8_000_000_000, 500_000_000},
		{"large reserves", math.MaxUint64 / 4, math.MaxUint64 / 8, 1 << 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Restore(domain.Pool{
				MarketID:      "mkt-1",
				YesReserve:    tt.yesRes,
				NoReserve:     tt.noRes,
				TotalLPTokens: 1, // non-empty
				FeeBps:        domain.DefaultAMMFeeBps,
				IsActive:      true,
			})

			q, err := p.QuoteYesForNo(tt.input)
			require.NoError(t, err)

			wantOut, wantFee := expectedOutput(tt.yesRes, tt.noRes, tt.input, domain.DefaultAMMFeeBps)
			assert.Equal(t, wantFee, q.FeeAmount)
			assert.Equal(t, wantOut, q.OutputAmount)
			assert.Less(t, q.OutputAmount, tt.noRes)

			// Quoting does not mutate the pool.
			snap := p.Snapshot(now())
			assert.Equal(t, tt.yesRes, snap.YesReserve)
			assert.Equal(t, tt.noRes, snap.NoReserve)
		})
	}
}

func TestSwapPreservesConstantProduct(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(10_000_000_000, 10_000_000_000)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		before := kProduct(p)
		q, err := p.SwapYesForNo(250_000_000, 0)
		require.NoError(t, err)
		assert.Positive(t, q.OutputAmount)
		after := kProduct(p)
		assert.True(t, after.Cmp(before) >= 0, "k must not decrease: before=%s after=%s", before, after)

		before = after
		_, err = p.SwapNoForYes(100_000_000, 0)
		require.NoError(t, err)
		after = kProduct(p)
		assert.True(t, after.Cmp(before) >= 0)
	}

	assert.Positive(t, p.Snapshot(now()).TotalFeesCollected)
}

func TestSwapZeroFeeInputKeepsProduct(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(1_000, 1_000)
	require.NoError(t, err)

	// 30 bps of 100 rounds to zero; the product still may not decrease.
	before := kProduct(p)
	q, err := p.SwapYesForNo(100, 0)
	require.NoError(t, err)
	assert.Zero(t, q.FeeAmount)
	assert.Positive(t, q.OutputAmount)
	after := kProduct(p)
	assert.True(t, after.Cmp(before) >= 0, "k must not decrease: before=%s after=%s", before, after)
}

func TestSwapCannotDrainReserve(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(10, 10)
	require.NoError(t, err)

	// An input dwarfing the reserves takes all but the last unit of the out
	// reserve; the product grows with the swollen in reserve.
	before := kProduct(p)
	q, err := p.SwapYesForNo(1_000_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), q.OutputAmount)

	snap := p.Snapshot(now())
	assert.Positive(t, snap.NoReserve)
	after := kProduct(p)
	assert.True(t, after.Cmp(before) >= 0, "k must not decrease: before=%s after=%s", before, after)
}

func TestSwapInputTooSmallForOutput(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(10_000_000_000, 10_000_000_000)
	require.NoError(t, err)

	// A one-unit input against deep reserves buys nothing; the pool rejects
	// it rather than keeping the input for a zero output.
	_, err = p.SwapYesForNo(1, 0)
	assert.ErrorIs(t, err, domain.ErrAmountTooSmall)

	snap := p.Snapshot(now())
	assert.Equal(t, uint64(10_000_000_000), snap.YesReserve)
	assert.Equal(t, uint64(10_000_000_000), snap.NoReserve)
}

func TestSwapSlippageProtection(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(10, 10)
	require.NoError(t, err)

	// A tiny pool cannot come close to the demanded minimum output.
	_, err = p.SwapYesForNo(1_000_000_000, 10_000_000_000)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// The failed swap left the reserves untouched.
	snap := p.Snapshot(now())
	assert.Equal(t, uint64(10), snap.YesReserve)
	assert.Equal(t, uint64(10), snap.NoReserve)
	assert.Zero(t, snap.TotalFeesCollected)
}

func TestSwapAgainstEmptyOrInactivePool(t *testing.T) {
	p := New("mkt-1", 0, now())

	_, err := p.QuoteYesForNo(1_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
	_, err = p.SwapNoForYes(1_000, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

	_, err = p.AddLiquidity(1_000_000, 1_000_000)
	require.NoError(t, err)

	p.Deactivate()
	assert.False(t, p.IsActive())

	_, err = p.QuoteYesForNo(1_000)
	assert.ErrorIs(t, err, domain.ErrPoolInactive)
	_, err = p.SwapYesForNo(1_000, 0)
	assert.ErrorIs(t, err, domain.ErrPoolInactive)
	_, err = p.AddLiquidity(1_000, 1_000)
	assert.ErrorIs(t, err, domain.ErrPoolInactive)

	// Deactivation does not alter reserves, and providers can still exit.
	snap := p.Snapshot(now())
	assert.Equal(t, uint64(1_000_000), snap.YesReserve)
	assert.Equal(t, uint64(1_000_000), snap.NoReserve)

	yesOut, noOut, err := p.RemoveLiquidity(snap.TotalLPTokens)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), yesOut)
	assert.Equal(t, uint64(1_000_000), noOut)
}

func TestPoolPrices(t *testing.T) {
	p := New("mkt-1", 0, now())

	// Bootstrap clamp: an empty pool quotes 50/50.
	assert.Equal(t, int64(5000), p.YesPrice())
	assert.Equal(t, int64(5000), p.NoPrice())

	_, err := p.AddLiquidity(10_000_000_000, 10_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), p.YesPrice())
	assert.Equal(t, int64(5000), p.NoPrice())

	// Skew the pool: more NO in reserve means YES is more likely.
	_, err = p.SwapNoForYes(5_000_000_000, 0)
	require.NoError(t, err)
	assert.Greater(t, p.YesPrice(), int64(5000))
	assert.Equal(t, int64(10000), p.YesPrice()+p.NoPrice(), "prices always sum to the full scale")

	prices := p.Prices(now())
	assert.Equal(t, prices.YesBps, p.YesPrice())
	assert.Equal(t, int64(10000), prices.YesBps+prices.NoBps)
}

func TestPricesSumAcrossSkews(t *testing.T) {
	reserves := []struct{ yes, no uint64 }{
		{1, 9_999},
		{3, 7},
		{123_456_789, 987_654_321},
		{math.MaxUint64 / 2, math.MaxUint64 / 2},
		{math.MaxUint64, 1},
	}
	for _, r := range reserves {
		p := Restore(domain.Pool{
			MarketID: "mkt-1", YesReserve: r.yes, NoReserve: r.no,
			TotalLPTokens: 1, IsActive: true,
		})
		sum := p.YesPrice() + p.NoPrice()
		assert.Equal(t, int64(10000), sum, "reserves %d/%d", r.yes, r.no)
	}
}

func TestOverflowGuards(t *testing.T) {
	p := New("mkt-1", 0, now())
	_, err := p.AddLiquidity(math.MaxUint64, math.MaxUint64)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	p = Restore(domain.Pool{
		MarketID:   "mkt-1",
		YesReserve: math.MaxUint64 - 10, NoReserve: math.MaxUint64 - 10,
		TotalLPTokens: math.MaxUint64 - 10, IsActive: true,
		FeeBps: domain.DefaultAMMFeeBps,
	})
	_, err = p.SwapYesForNo(1 << 32, 0)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestRestoreDefaultsFee(t *testing.T) {
	p := Restore(domain.Pool{MarketID: "mkt-1", IsActive: true})
	assert.Equal(t, domain.DefaultAMMFeeBps, p.Snapshot(now()).FeeBps)
}
