package amm

import (
	"testing"

	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuoteConstantProduct(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("1000"))

	// in=100, fee=0.3%: out = 99.7*1000/(1000+99.7) = 90.66...
	out, fee, err := pool.Quote(dec("100"), true)
	require.NoError(t, err)
	assert.True(t, fee.Equal(dec("0.3")), "fee was %s", fee)
	assert.True(t, out.GreaterThan(dec("90.66")) && out.LessThan(dec("90.67")),
		"out was %s", out)
}

func TestSwapKeepsProductNonDecreasing(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("1000"))
	base0, quote0 := pool.Reserves()
	k0 := base0.Mul(quote0)

	res, err := pool.Swap(dec("100"), true)
	require.NoError(t, err)
	assert.True(t, res.AmountOut.IsPositive())

	base1, quote1 := pool.Reserves()
	k1 := base1.Mul(quote1)
	assert.True(t, k1.GreaterThanOrEqual(k0), "k shrank from %s to %s", k0, k1)
}

func TestQuoteExactOutInvertsQuote(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("100000"))

	out := dec("50")
	in, err := pool.QuoteExactOut(out, true)
	require.NoError(t, err)

	// feeding the computed input back must produce at least the target
	got, _, err := pool.Quote(in, false)
	require.NoError(t, err)
	diff := got.Sub(out).Abs()
	assert.True(t, diff.LessThan(dec("0.000001")), "round trip drifted by %s", diff)
}

func TestSlippageGuard(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("1000"))

	// an input large enough to pull out more than 30% of the outgoing
	// reserve is rejected outright
	_, _, err := pool.Quote(dec("5000"), true)
	assert.ErrorIs(t, err, model.ErrInsufficientLiquidity)

	_, err = pool.QuoteExactOut(dec("301"), true)
	assert.ErrorIs(t, err, model.ErrInsufficientLiquidity)

	_, err = pool.QuoteExactOut(dec("299"), true)
	assert.NoError(t, err)
}

func TestQuoteRejectsNonPositiveInput(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("1000"))
	_, _, err := pool.Quote(decimal.Zero, true)
	assert.ErrorIs(t, err, model.ErrInsufficientLiquidity)
	_, _, err = pool.Quote(dec("-1"), true)
	assert.ErrorIs(t, err, model.ErrInsufficientLiquidity)
}

func TestInitialLiquidityMintsSqrtProduct(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("400"), dec("900"))
	info := pool.Info()
	// sqrt(400*900) = 600
	assert.True(t, info.TotalLiquidity.Sub(dec("600")).Abs().LessThan(dec("0.000001")),
		"minted %s", info.TotalLiquidity)
}

func TestAddLiquidityMintsMinShare(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("1000"))
	before := pool.Info().TotalLiquidity

	// unbalanced deposit mints by the smaller ratio (10%)
	minted, err := pool.AddLiquidity(dec("100"), dec("500"))
	require.NoError(t, err)
	expected := before.Mul(dec("0.1"))
	assert.True(t, minted.Sub(expected).Abs().LessThan(dec("0.000001")),
		"minted %s, expected %s", minted, expected)

	base, quote := pool.Reserves()
	assert.True(t, base.Equal(dec("1100")))
	assert.True(t, quote.Equal(dec("1500")))
}

func TestRemoveLiquidityProportional(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("4000"))
	total := pool.Info().TotalLiquidity

	base, quote, err := pool.RemoveLiquidity(total.Div(dec("4")))
	require.NoError(t, err)
	assert.True(t, base.Sub(dec("250")).Abs().LessThan(dec("0.000001")), "base %s", base)
	assert.True(t, quote.Sub(dec("1000")).Abs().LessThan(dec("0.000001")), "quote %s", quote)

	_, _, err = pool.RemoveLiquidity(total)
	assert.ErrorIs(t, err, model.ErrInsufficientPoolTokens, "burning more than outstanding")
}

func TestFeeAccrualBenefitsHolders(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("1000"))
	total := pool.Info().TotalLiquidity

	for i := 0; i < 5; i++ {
		_, err := pool.Swap(dec("50"), i%2 == 0)
		require.NoError(t, err)
	}

	// LP token supply unchanged, but the product backing it grew
	info := pool.Info()
	assert.True(t, info.TotalLiquidity.Equal(total))
	base, quote := pool.Reserves()
	assert.True(t, base.Mul(quote).GreaterThan(dec("1000000")))
	assert.Equal(t, int64(5), info.SwapCount)
	assert.True(t, info.FeesCollected.IsPositive())
}

func TestCurrentPriceAndImpact(t *testing.T) {
	pool := NewPool("BTC-USDC", dec("1000"), dec("100000"))
	assert.True(t, pool.CurrentPrice().Equal(dec("100")))

	small := pool.PriceImpact(dec("1"), true)
	large := pool.PriceImpact(dec("200"), true)
	assert.True(t, large.GreaterThan(small), "impact must grow with size")
}
