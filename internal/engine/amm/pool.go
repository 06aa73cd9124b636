// Package amm implements the constant-product market maker for binary
// outcome tokens: a YES/NO reserve pair whose product never decreases across
// swaps (the swap fee is retained in the reserves) and is unchanged by
// proportional liquidity adds and removes. All reserve products are computed
// with 128-bit intermediates.
package amm

import (
	"time"

	"github.com/outcomelab/predengine/internal/domain"
)

// Pool is one market's AMM aggregate. It is not safe for concurrent use; the
// engine registry serializes access per market. Like the order book, the
// pool is pure bookkeeping: token custody is the caller's concern.
type Pool struct {
	marketID           string
	yesReserve         uint64
	noReserve          uint64
	totalLPTokens      uint64
	totalFeesCollected uint64
	feeBps             uint64
	active             bool
	createdAt          time.Time
}

// New creates an empty, active pool. feeBps of zero selects the 30 bps
// default.
func New(marketID string, feeBps uint64, now time.Time) *Pool {
	if feeBps == 0 {
		feeBps = domain.DefaultAMMFeeBps
	}
	return &Pool{
		marketID:  marketID,
		feeBps:    feeBps,
		active:    true,
		createdAt: now,
	}
}

// Restore rebuilds a pool aggregate from persisted state.
func Restore(p domain.Pool) *Pool {
	feeBps := p.FeeBps
	if feeBps == 0 {
		feeBps = domain.DefaultAMMFeeBps
	}
	return &Pool{
		marketID:           p.MarketID,
		yesReserve:         p.YesReserve,
		noReserve:          p.NoReserve,
		totalLPTokens:      p.TotalLPTokens,
		totalFeesCollected: p.TotalFeesCollected,
		feeBps:             feeBps,
		active:             p.IsActive,
		createdAt:          p.CreatedAt,
	}
}

// MarketID returns the market this pool belongs to.
func (p *Pool) MarketID() string {
	return p.marketID
}

// IsActive reports whether the pool accepts liquidity changes and swaps.
func (p *Pool) IsActive() bool {
	return p.active
}

// Empty reports whether the pool holds no liquidity.
func (p *Pool) Empty() bool {
	return p.totalLPTokens == 0
}

// AddLiquidity deposits outcome tokens and mints LP tokens. On an empty pool
// the deposit ratio is unconstrained and the mint equals the mean of the two
// deposits (so an equal X/X deposit mints exactly X). On a funded pool the
// deposit must preserve the current reserve ratio exactly, and the mint is
// proportional to the existing LP supply.
func (p *Pool) AddLiquidity(yesIn, noIn uint64) (uint64, error) {
	if !p.active {
		return 0, domain.ErrPoolInactive
	}
	if yesIn == 0 || noIn == 0 {
		return 0, domain.ErrAmountTooSmall
	}

	var minted uint64
	if p.totalLPTokens == 0 {
		sum, err := addChecked(yesIn, noIn)
		if err != nil {
			return 0, err
		}
		minted = sum / 2
	} else {
		if mulCmp(yesIn, p.noReserve, noIn, p.yesReserve) != 0 {
			return 0, domain.ErrRatioMismatch
		}
		var err error
		minted, err = mulDiv(p.totalLPTokens, yesIn, p.yesReserve)
		if err != nil {
			return 0, err
		}
	}
	if minted == 0 {
		return 0, domain.ErrAmountTooSmall
	}

	newYes, err := addChecked(p.yesReserve, yesIn)
	if err != nil {
		return 0, err
	}
	newNo, err := addChecked(p.noReserve, noIn)
	if err != nil {
		return 0, err
	}
	newTotal, err := addChecked(p.totalLPTokens, minted)
	if err != nil {
		return 0, err
	}

	p.yesReserve = newYes
	p.noReserve = newNo
	p.totalLPTokens = newTotal
	return minted, nil
}

// RemoveLiquidity burns lpAmount LP tokens and returns the pro-rata share of
// each reserve. Burning the entire supply returns the reserves exactly, so a
// sole provider's add/remove round trip with no intervening swap is lossless.
func (p *Pool) RemoveLiquidity(lpAmount uint64) (yesOut, noOut uint64, err error) {
	if lpAmount == 0 {
		return 0, 0, domain.ErrAmountTooSmall
	}
	if p.totalLPTokens == 0 || lpAmount > p.totalLPTokens {
		return 0, 0, domain.ErrInsufficientLiquidity
	}

	if lpAmount == p.totalLPTokens {
		yesOut, noOut = p.yesReserve, p.noReserve
	} else {
		yesOut, err = mulDiv(p.yesReserve, lpAmount, p.totalLPTokens)
		if err != nil {
			return 0, 0, err
		}
		noOut, err = mulDiv(p.noReserve, lpAmount, p.totalLPTokens)
		if err != nil {
			return 0, 0, err
		}
	}

	p.yesReserve -= yesOut
	p.noReserve -= noOut
	p.totalLPTokens -= lpAmount
	return yesOut, noOut, nil
}

// QuoteYesForNo prices a swap of YES tokens into NO tokens without mutating
// the pool. The fee is charged on the input and stays in the YES reserve.
func (p *Pool) QuoteYesForNo(input uint64) (domain.SwapQuote, error) {
	output, fee, err := p.quote(input, p.yesReserve, p.noReserve)
	if err != nil {
		return domain.SwapQuote{}, err
	}
	return domain.SwapQuote{
		Direction:    domain.SwapYesForNo,
		InputAmount:  input,
		OutputAmount: output,
		FeeAmount:    fee,
	}, nil
}

// QuoteNoForYes prices the opposite direction.
func (p *Pool) QuoteNoForYes(input uint64) (domain.SwapQuote, error) {
	output, fee, err := p.quote(input, p.noReserve, p.yesReserve)
	if err != nil {
		return domain.SwapQuote{}, err
	}
	return domain.SwapQuote{
		Direction:    domain.SwapNoForYes,
		InputAmount:  input,
		OutputAmount: output,
		FeeAmount:    fee,
	}, nil
}

// quote applies the constant-product relation to an input against
// (reserveIn, reserveOut):
// output = reserveOut - ceil(k/(reserveIn + effective)).
func (p *Pool) quote(input, reserveIn, reserveOut uint64) (output, fee uint64, err error) {
	if !p.active {
		return 0, 0, domain.ErrPoolInactive
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, domain.ErrInsufficientLiquidity
	}
	if input == 0 {
		return 0, 0, domain.ErrAmountTooSmall
	}

	fee, err = mulDiv(input, p.feeBps, uint64(domain.PriceScaleBps))
	if err != nil {
		return 0, 0, err
	}
	effective := input - fee
	if effective == 0 {
		return 0, 0, domain.ErrAmountTooSmall
	}

	newReserveIn, err := addChecked(reserveIn, effective)
	if err != nil {
		return 0, 0, err
	}
	// The kept reserve rounds up: the product cannot shrink and the out
	// reserve cannot be fully drained. Rounding never exceeds reserveOut
	// because newReserveIn > reserveIn.
	kept, err := mulDivCeil(reserveIn, reserveOut, newReserveIn)
	if err != nil {
		return 0, 0, err
	}
	output = reserveOut - kept
	if output == 0 {
		return 0, 0, domain.ErrAmountTooSmall
	}
	return output, fee, nil
}

// SwapYesForNo executes a YES-in, NO-out swap, failing with
// domain.ErrSlippageExceeded when the output falls below minOutput.
func (p *Pool) SwapYesForNo(input, minOutput uint64) (domain.SwapQuote, error) {
	q, err := p.QuoteYesForNo(input)
	if err != nil {
		return domain.SwapQuote{}, err
	}
	if q.OutputAmount < minOutput {
		return domain.SwapQuote{}, domain.ErrSlippageExceeded
	}

	newYes, err := addChecked(p.yesReserve, input)
	if err != nil {
		return domain.SwapQuote{}, err
	}
	p.yesReserve = newYes
	p.noReserve -= q.OutputAmount
	p.totalFeesCollected += q.FeeAmount
	return q, nil
}

// SwapNoForYes executes the opposite direction.
func (p *Pool) SwapNoForYes(input, minOutput uint64) (domain.SwapQuote, error) {
	q, err := p.QuoteNoForYes(input)
	if err != nil {
		return domain.SwapQuote{}, err
	}
	if q.OutputAmount < minOutput {
		return domain.SwapQuote{}, domain.ErrSlippageExceeded
	}

	newNo, err := addChecked(p.noReserve, input)
	if err != nil {
		return domain.SwapQuote{}, err
	}
	p.noReserve = newNo
	p.yesReserve -= q.OutputAmount
	p.totalFeesCollected += q.FeeAmount
	return q, nil
}

// YesPrice returns the pool-implied YES probability in basis points:
// noReserve * 10000 / (yesReserve + noReserve), clamped to 5000 while either
// reserve is empty (bootstrap case).
func (p *Pool) YesPrice() int64 {
	yes, no := p.yesReserve, p.noReserve
	if yes == 0 || no == 0 {
		return 5000
	}
	// Halve both reserves on carry; the ratio is preserved.
	sum, carry := addOverflowing(yes, no)
	for carry {
		yes >>= 1
		no >>= 1
		sum, carry = addOverflowing(yes, no)
	}
	price, err := mulDiv(no, uint64(domain.PriceScaleBps), sum)
	if err != nil {
		return 5000
	}
	return int64(price)
}

// NoPrice returns 10000 - YesPrice, so the two always sum to exactly 10000.
func (p *Pool) NoPrice() int64 {
	return domain.PriceScaleBps - p.YesPrice()
}

func addOverflowing(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}

// Deactivate stops further liquidity changes and swaps without touching the
// reserves, for example once the underlying market stops trading.
func (p *Pool) Deactivate() {
	p.active = false
}

// K returns the 128-bit constant product split into high and low words.
func (p *Pool) K() (hi, lo uint64) {
	return mul128(p.yesReserve, p.noReserve)
}

// Snapshot returns the pool's persistable state.
func (p *Pool) Snapshot(now time.Time) domain.Pool {
	return domain.Pool{
		MarketID:           p.marketID,
		YesReserve:         p.yesReserve,
		NoReserve:          p.noReserve,
		TotalLPTokens:      p.totalLPTokens,
		TotalFeesCollected: p.totalFeesCollected,
		FeeBps:             p.feeBps,
		IsActive:           p.active,
		CreatedAt:          p.createdAt,
		UpdatedAt:          now,
	}
}

// Prices returns both spot prices.
func (p *Pool) Prices(now time.Time) domain.PoolPrices {
	return domain.PoolPrices{
		MarketID: p.marketID,
		YesBps:   p.YesPrice(),
		NoBps:    p.NoPrice(),
		AsOf:     now,
	}
}
