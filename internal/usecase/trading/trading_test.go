package trading

import (
	"testing"

	"github.com/Yusufzhafir/go-dex/backend/internal/amm"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeEngine serves the read-side calls the orchestration helpers need.
type fakeEngine struct {
	pairs []model.TradingPair
	pool  *amm.Pool
	tob   *model.TopOfBook
}

func (f *fakeEngine) RegisterPair(pair model.TradingPair) error { return nil }
func (f *fakeEngine) SetPairStatus(symbol string, status model.PairStatus) error {
	return nil
}
func (f *fakeEngine) AttachPool(symbol string, pool *amm.Pool) error { return nil }
func (f *fakeEngine) Pool(symbol string) (*amm.Pool, error) {
	if f.pool == nil {
		return nil, model.ErrInsufficientLiquidity
	}
	return f.pool, nil
}
func (f *fakeEngine) Pairs() []model.TradingPair { return f.pairs }
func (f *fakeEngine) Submit(order model.Order) (model.OrderId, []model.Trade, []model.BookDelta, error) {
	return 0, nil, nil, nil
}
func (f *fakeEngine) Cancel(symbol string, orderID model.OrderId, sessionID string) (model.BookDelta, error) {
	return model.BookDelta{}, model.ErrOrderNotFound
}
func (f *fakeEngine) Swap(symbol, sessionID string, amountIn decimal.Decimal, inIsBase bool) (model.Trade, amm.SwapResult, error) {
	return model.Trade{}, amm.SwapResult{}, model.ErrInsufficientLiquidity
}
func (f *fakeEngine) Depth(symbol string, levels int) (*model.MarketDepth, error) {
	return nil, model.ErrPairNotFound
}
func (f *fakeEngine) TopOfBook(symbol string) (*model.TopOfBook, error) {
	if f.tob == nil {
		return nil, model.ErrPairNotFound
	}
	return f.tob, nil
}
func (f *fakeEngine) OrderSize(symbol string) int { return 0 }

func newTestUseCase(t *testing.T, eng *fakeEngine) *tradingUseCaseImpl {
	t.Helper()
	return &tradingUseCaseImpl{
		engine:       eng,
		logger:       zaptest.NewLogger(t),
		poolSessions: make(map[string]string),
	}
}

func TestPairForUnknownSymbol(t *testing.T) {
	tu := newTestUseCase(t, &fakeEngine{
		pairs: []model.TradingPair{{Symbol: "BTC-USDC", Base: "BTC", Quote: "USDC"}},
	})

	pair, err := tu.pairFor("BTC-USDC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", pair.Base)

	_, err = tu.pairFor("DOGE-USDC")
	assert.ErrorIs(t, err, model.ErrPairNotFound)
}

func TestMarketEstimatePrefersBookOverPool(t *testing.T) {
	pool := amm.NewPool("BTC-USDC", decimal.NewFromInt(1000), decimal.NewFromInt(200000))

	tu := newTestUseCase(t, &fakeEngine{
		pool: pool,
		tob: &model.TopOfBook{
			BestAsk: &model.MarketDepthLevel{Price: 150, Volume: 10},
		},
	})
	est, err := tu.marketEstimate("BTC-USDC")
	require.NoError(t, err)
	assert.True(t, est.Equal(decimal.NewFromInt(150)), "estimate was %s", est)
}

func TestMarketEstimateFallsBackToPool(t *testing.T) {
	pool := amm.NewPool("BTC-USDC", decimal.NewFromInt(1000), decimal.NewFromInt(200000))

	tu := newTestUseCase(t, &fakeEngine{pool: pool, tob: &model.TopOfBook{}})
	est, err := tu.marketEstimate("BTC-USDC")
	require.NoError(t, err)
	assert.True(t, est.Equal(decimal.NewFromInt(200)), "estimate was %s", est)
}

func TestMarketEstimateNoLiquidity(t *testing.T) {
	tu := newTestUseCase(t, &fakeEngine{tob: &model.TopOfBook{}})
	_, err := tu.marketEstimate("BTC-USDC")
	assert.ErrorIs(t, err, model.ErrInsufficientLiquidity)
}

func TestOrderStatusLabel(t *testing.T) {
	assert.Equal(t, "FILLED", orderStatusLabel(model.ORDER_LIMIT, 10, 0))
	assert.Equal(t, "PARTIALLY_FILLED", orderStatusLabel(model.ORDER_LIMIT, 4, 6))
	assert.Equal(t, "OPEN", orderStatusLabel(model.ORDER_LIMIT, 0, 10))
	assert.Equal(t, "FILLED", orderStatusLabel(model.ORDER_MARKET, 10, 0))
	assert.Equal(t, "PARTIALLY_FILLED", orderStatusLabel(model.ORDER_MARKET, 4, 6))
	assert.Equal(t, "CANCELLED", orderStatusLabel(model.ORDER_MARKET, 0, 10))
}

func TestPoolSessionRegistry(t *testing.T) {
	tu := newTestUseCase(t, &fakeEngine{})

	_, ok := tu.poolSession("BTC-USDC")
	assert.False(t, ok)

	tu.RegisterPoolSession("BTC-USDC", "pool-acct")
	got, ok := tu.poolSession("BTC-USDC")
	assert.True(t, ok)
	assert.Equal(t, "pool-acct", got)
}
