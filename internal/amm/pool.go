package amm

import (
	"math/big"
	"sync"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// DefaultFeeRate is 0.3%, taken from the input amount before the
// constant-product formula is applied.
var DefaultFeeRate = decimal.NewFromFloat(0.003)

// DefaultMaxOutFraction caps a single swap at 30% of the output reserve.
var DefaultMaxOutFraction = decimal.NewFromFloat(0.3)

// Pool is a constant-product liquidity pool for one trading pair.
// Reserves are held in smallest asset units. The invariant
// reserveBase * reserveQuote only grows across swaps (fees accrue to the
// reserves) and changes freely on add/remove liquidity.
type Pool struct {
	mu sync.Mutex

	id             uuid.UUID
	pair           string
	reserveBase    decimal.Decimal
	reserveQuote   decimal.Decimal
	totalLiquidity decimal.Decimal
	feeRate        decimal.Decimal
	maxOutFraction decimal.Decimal

	volumeBase    decimal.Decimal
	volumeQuote   decimal.Decimal
	feesCollected decimal.Decimal
	swapCount     int64
	lastSwapAt    time.Time
}

type SwapResult struct {
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	Fee       decimal.Decimal
	NewPrice  decimal.Decimal
}

// PoolInfo is the public snapshot served over the API.
type PoolInfo struct {
	ID             uuid.UUID       `json:"poolId"`
	Pair           string          `json:"pair"`
	ReserveBase    decimal.Decimal `json:"reserveBase"`
	ReserveQuote   decimal.Decimal `json:"reserveQuote"`
	TotalLiquidity decimal.Decimal `json:"totalLiquidity"`
	FeeRate        decimal.Decimal `json:"feeRate"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	VolumeBase     decimal.Decimal `json:"volumeBase"`
	VolumeQuote    decimal.Decimal `json:"volumeQuote"`
	FeesCollected  decimal.Decimal `json:"feesCollected"`
	SwapCount      int64           `json:"swapCount"`
	TVL            decimal.Decimal `json:"tvl"`
}

func NewPool(pair string, initialBase, initialQuote decimal.Decimal) *Pool {
	p := &Pool{
		id:             uuid.New(),
		pair:           pair,
		reserveBase:    initialBase,
		reserveQuote:   initialQuote,
		feeRate:        DefaultFeeRate,
		maxOutFraction: DefaultMaxOutFraction,
	}
	// first provision mints sqrt(base*quote) LP tokens
	p.totalLiquidity = sqrt(initialBase.Mul(initialQuote))
	return p
}

func (p *Pool) ID() uuid.UUID { return p.id }
func (p *Pool) Pair() string  { return p.pair }

// FromUnits converts engine integer units to pool decimals.
func FromUnits(q uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(q), 0)
}

// Quote computes the output amount for amountIn without mutating reserves.
// out = in*(1-fee)*Rout / (Rin + in*(1-fee))
func (p *Pool) Quote(amountIn decimal.Decimal, inIsBase bool) (out, fee decimal.Decimal, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteLocked(amountIn, inIsBase)
}

func (p *Pool) quoteLocked(amountIn decimal.Decimal, inIsBase bool) (decimal.Decimal, decimal.Decimal, error) {
	rin, rout := p.reserveQuote, p.reserveBase
	if inIsBase {
		rin, rout = p.reserveBase, p.reserveQuote
	}
	if !amountIn.IsPositive() || !rin.IsPositive() || !rout.IsPositive() {
		return decimal.Zero, decimal.Zero, model.ErrInsufficientLiquidity
	}

	fee := amountIn.Mul(p.feeRate)
	inAfterFee := amountIn.Sub(fee)
	out := inAfterFee.Mul(rout).Div(rin.Add(inAfterFee))

	if out.GreaterThan(rout.Mul(p.maxOutFraction)) {
		return decimal.Zero, decimal.Zero, model.ErrInsufficientLiquidity
	}
	return out, fee, nil
}

// QuoteExactOut computes the input required to withdraw exactly amountOut.
// in = Rin*out / ((Rout-out)*(1-fee))
func (p *Pool) QuoteExactOut(amountOut decimal.Decimal, outIsBase bool) (in decimal.Decimal, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteExactOutLocked(amountOut, outIsBase)
}

func (p *Pool) quoteExactOutLocked(amountOut decimal.Decimal, outIsBase bool) (decimal.Decimal, error) {
	rin, rout := p.reserveBase, p.reserveQuote
	if outIsBase {
		rin, rout = p.reserveQuote, p.reserveBase
	}
	if !amountOut.IsPositive() || !rin.IsPositive() || !rout.IsPositive() {
		return decimal.Zero, model.ErrInsufficientLiquidity
	}
	if amountOut.GreaterThan(rout.Mul(p.maxOutFraction)) {
		return decimal.Zero, model.ErrInsufficientLiquidity
	}
	denom := rout.Sub(amountOut).Mul(one.Sub(p.feeRate))
	if !denom.IsPositive() {
		return decimal.Zero, model.ErrInsufficientLiquidity
	}
	return rin.Mul(amountOut).Div(denom), nil
}

// Swap re-reads reserves, recomputes the quote and applies it in one
// critical section. The caller (the engine, holding the pair section)
// turns the result into a pool-marker Trade before releasing the section,
// so reserve update and Trade emission are observed together.
func (p *Pool) Swap(amountIn decimal.Decimal, inIsBase bool) (SwapResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, fee, err := p.quoteLocked(amountIn, inIsBase)
	if err != nil {
		return SwapResult{}, err
	}
	p.applySwapLocked(amountIn, out, fee, inIsBase)
	return SwapResult{AmountIn: amountIn, AmountOut: out, Fee: fee, NewPrice: p.currentPriceLocked()}, nil
}

// SwapExactOut swaps for an exact output amount, used when a market-order
// remainder must be filled in base units.
func (p *Pool) SwapExactOut(amountOut decimal.Decimal, outIsBase bool) (SwapResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	in, err := p.quoteExactOutLocked(amountOut, outIsBase)
	if err != nil {
		return SwapResult{}, err
	}
	fee := in.Mul(p.feeRate)
	p.applySwapLocked(in, amountOut, fee, !outIsBase)
	return SwapResult{AmountIn: in, AmountOut: amountOut, Fee: fee, NewPrice: p.currentPriceLocked()}, nil
}

func (p *Pool) applySwapLocked(in, out, fee decimal.Decimal, inIsBase bool) {
	if inIsBase {
		p.reserveBase = p.reserveBase.Add(in)
		p.reserveQuote = p.reserveQuote.Sub(out)
		p.volumeBase = p.volumeBase.Add(in)
	} else {
		p.reserveQuote = p.reserveQuote.Add(in)
		p.reserveBase = p.reserveBase.Sub(out)
		p.volumeQuote = p.volumeQuote.Add(in)
	}
	p.feesCollected = p.feesCollected.Add(fee)
	p.swapCount++
	p.lastSwapAt = time.Now()
}

// CurrentPrice is the marginal quote/base price implied by the reserves.
func (p *Pool) CurrentPrice() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPriceLocked()
}

func (p *Pool) currentPriceLocked() decimal.Decimal {
	if p.reserveBase.IsPositive() && p.reserveQuote.IsPositive() {
		return p.reserveQuote.Div(p.reserveBase)
	}
	return decimal.Zero
}

// PriceImpact returns the relative price move of a hypothetical swap, in percent.
func (p *Pool) PriceImpact(amountIn decimal.Decimal, inIsBase bool) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.currentPriceLocked()
	if current.IsZero() {
		return decimal.Zero
	}
	out, _, err := p.quoteLocked(amountIn, inIsBase)
	if err != nil || out.IsZero() {
		return decimal.Zero
	}
	var effective decimal.Decimal
	if inIsBase {
		effective = out.Div(amountIn)
	} else {
		effective = amountIn.Div(out)
	}
	return effective.Sub(current).Abs().Div(current).Mul(decimal.NewFromInt(100))
}

// AddLiquidity deposits both assets and mints LP tokens pro rata to the
// smaller of the two deposit ratios.
func (p *Pool) AddLiquidity(amountBase, amountQuote decimal.Decimal) (decimal.Decimal, error) {
	if !amountBase.IsPositive() || !amountQuote.IsPositive() {
		return decimal.Zero, model.ErrInvalidOrderParams
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var minted decimal.Decimal
	if p.totalLiquidity.IsZero() {
		minted = sqrt(amountBase.Mul(amountQuote))
	} else {
		byBase := amountBase.Div(p.reserveBase).Mul(p.totalLiquidity)
		byQuote := amountQuote.Div(p.reserveQuote).Mul(p.totalLiquidity)
		minted = decimal.Min(byBase, byQuote)
	}
	p.reserveBase = p.reserveBase.Add(amountBase)
	p.reserveQuote = p.reserveQuote.Add(amountQuote)
	p.totalLiquidity = p.totalLiquidity.Add(minted)
	return minted, nil
}

// RemoveLiquidity burns LP tokens and withdraws the proportional share of
// both reserves.
func (p *Pool) RemoveLiquidity(tokens decimal.Decimal) (amountBase, amountQuote decimal.Decimal, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !tokens.IsPositive() || tokens.GreaterThan(p.totalLiquidity) {
		return decimal.Zero, decimal.Zero, model.ErrInsufficientPoolTokens
	}
	share := tokens.Div(p.totalLiquidity)
	amountBase = p.reserveBase.Mul(share)
	amountQuote = p.reserveQuote.Mul(share)
	p.reserveBase = p.reserveBase.Sub(amountBase)
	p.reserveQuote = p.reserveQuote.Sub(amountQuote)
	p.totalLiquidity = p.totalLiquidity.Sub(tokens)
	return amountBase, amountQuote, nil
}

func (p *Pool) Info() PoolInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolInfo{
		ID:             p.id,
		Pair:           p.pair,
		ReserveBase:    p.reserveBase,
		ReserveQuote:   p.reserveQuote,
		TotalLiquidity: p.totalLiquidity,
		FeeRate:        p.feeRate,
		CurrentPrice:   p.currentPriceLocked(),
		VolumeBase:     p.volumeBase,
		VolumeQuote:    p.volumeQuote,
		FeesCollected:  p.feesCollected,
		SwapCount:      p.swapCount,
		TVL:            p.reserveQuote.Mul(two),
	}
}

// Reserves returns the current reserve pair, for tests and monitoring.
func (p *Pool) Reserves() (base, quote decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveBase, p.reserveQuote
}

// sqrt is a Newton iteration on decimals, good far beyond the precision
// LP token math needs.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	guess := d.Div(two)
	if guess.IsZero() {
		guess = d
	}
	for i := 0; i < 64; i++ {
		next := guess.Add(d.Div(guess)).Div(two)
		if next.Sub(guess).Abs().LessThan(decimal.New(1, -12)) {
			return next
		}
		guess = next
	}
	return guess
}
