package engine

import (
	"testing"

	"github.com/Yusufzhafir/go-dex/backend/internal/amm"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testPair = "BTC-USDC"

func newTestEngine(t *testing.T) OrderBookEngine {
	t.Helper()
	eng := NewOrderBookEngine(zaptest.NewLogger(t))
	require.NoError(t, eng.RegisterPair(model.TradingPair{
		Symbol:   testPair,
		Base:     "BTC",
		Quote:    "USDC",
		TickSize: 1,
		LotSize:  1,
		Status:   model.PAIR_ACTIVE,
	}))
	return eng
}

func limit(session string, side model.Side, price model.Price, qty model.Quantity) model.Order {
	return model.NewOrder(0, session, testPair, side, price, qty, model.ORDER_LIMIT)
}

func marketOrder(session string, side model.Side, qty model.Quantity) model.Order {
	return model.NewOrder(0, session, testPair, side, 0, qty, model.ORDER_MARKET)
}

func TestLimitCrossExecutesAtMakerPrice(t *testing.T) {
	eng := newTestEngine(t)

	makerID, trades, deltas, err := eng.Submit(limit("maker", model.ASK, 100, 10))
	require.NoError(t, err)
	require.Empty(t, trades)
	require.Len(t, deltas, 1)
	assert.Equal(t, model.DELTA_ADD, deltas[0].Kind)

	_, trades, deltas, err = eng.Submit(limit("taker", model.BID, 105, 10))
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, model.Price(100), tr.Price, "fill must execute at the resting price")
	assert.Equal(t, model.Quantity(10), tr.Quantity)
	assert.Equal(t, makerID, tr.MakerID)
	assert.Equal(t, model.BID, tr.TakerSide)
	assert.Equal(t, "taker", tr.TakerSession)
	assert.Equal(t, "maker", tr.MakerSession)
	assert.False(t, tr.PoolFill)

	require.Len(t, deltas, 1)
	assert.Equal(t, model.DELTA_REMOVE, deltas[0].Kind)

	depth, err := eng.Depth(testPair, 10)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
}

func TestPriceTimePriority(t *testing.T) {
	eng := newTestEngine(t)

	firstID, _, _, err := eng.Submit(limit("a", model.ASK, 100, 5))
	require.NoError(t, err)
	secondID, _, _, err := eng.Submit(limit("b", model.ASK, 100, 5))
	require.NoError(t, err)
	cheaperID, _, _, err := eng.Submit(limit("c", model.ASK, 99, 5))
	require.NoError(t, err)

	_, trades, _, err := eng.Submit(limit("taker", model.BID, 100, 15))
	require.NoError(t, err)
	require.Len(t, trades, 3)

	// best price first, then arrival order within a level
	assert.Equal(t, cheaperID, trades[0].MakerID)
	assert.Equal(t, model.Price(99), trades[0].Price)
	assert.Equal(t, firstID, trades[1].MakerID)
	assert.Equal(t, secondID, trades[2].MakerID)

	// sequences are strictly increasing
	assert.Less(t, trades[0].Sequence, trades[1].Sequence)
	assert.Less(t, trades[1].Sequence, trades[2].Sequence)
}

func TestPartialFillRestsRemainder(t *testing.T) {
	eng := newTestEngine(t)

	bidID, _, _, err := eng.Submit(limit("buyer", model.BID, 100, 10))
	require.NoError(t, err)

	_, trades, _, err := eng.Submit(limit("seller", model.ASK, 100, 4))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, model.Quantity(4), trades[0].Quantity)
	assert.Equal(t, bidID, trades[0].MakerID)

	tob, err := eng.TopOfBook(testPair)
	require.NoError(t, err)
	require.NotNil(t, tob.BestBid)
	assert.Equal(t, model.Quantity(6), tob.BestBid.Volume)
	assert.Nil(t, tob.BestAsk)
}

func TestCancelRestingOrder(t *testing.T) {
	eng := newTestEngine(t)

	orderID, _, _, err := eng.Submit(limit("owner", model.BID, 100, 10))
	require.NoError(t, err)

	_, err = eng.Cancel(testPair, orderID, "intruder")
	assert.ErrorIs(t, err, model.ErrNotOwner)

	delta, err := eng.Cancel(testPair, orderID, "owner")
	require.NoError(t, err)
	assert.Equal(t, model.DELTA_REMOVE, delta.Kind)
	assert.Equal(t, model.Quantity(10), delta.Quantity)
	assert.Equal(t, model.Price(100), delta.Price)

	_, err = eng.Cancel(testPair, orderID, "owner")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)

	depth, err := eng.Depth(testPair, 10)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
}

func TestCancelOneOfManyAtLevelReduces(t *testing.T) {
	eng := newTestEngine(t)

	firstID, _, _, err := eng.Submit(limit("alice", model.BID, 100, 3))
	require.NoError(t, err)
	secondID, _, _, err := eng.Submit(limit("bob", model.BID, 100, 7))
	require.NoError(t, err)

	delta, err := eng.Cancel(testPair, firstID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.DELTA_REDUCE, delta.Kind, "level still has bob's order")
	assert.Equal(t, model.Quantity(3), delta.Quantity)
	assert.Equal(t, model.Price(100), delta.Price)

	depth, err := eng.Depth(testPair, 10)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, model.Quantity(7), depth.Bids[0].Volume)
	assert.Equal(t, 1, depth.Bids[0].OrderCount)

	delta, err = eng.Cancel(testPair, secondID, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.DELTA_REMOVE, delta.Kind, "last order out empties the level")

	depth, err = eng.Depth(testPair, 10)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
}

func TestCancelAfterFillReportsNotFound(t *testing.T) {
	eng := newTestEngine(t)

	orderID, _, _, err := eng.Submit(limit("maker", model.ASK, 100, 5))
	require.NoError(t, err)
	_, trades, _, err := eng.Submit(limit("taker", model.BID, 100, 5))
	require.NoError(t, err)
	require.Len(t, trades, 1)

	_, err = eng.Cancel(testPair, orderID, "maker")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestMarketOrderWithoutPoolKeepsBookFills(t *testing.T) {
	eng := newTestEngine(t)

	_, _, _, err := eng.Submit(limit("maker", model.ASK, 100, 4))
	require.NoError(t, err)

	_, trades, _, err := eng.Submit(marketOrder("taker", model.BID, 10))
	assert.ErrorIs(t, err, model.ErrInsufficientLiquidity)
	require.Len(t, trades, 1, "book fills before the failing remainder must stand")
	assert.Equal(t, model.Quantity(4), trades[0].Quantity)
}

func TestMarketOrderRoutesRemainderToPool(t *testing.T) {
	eng := newTestEngine(t)
	pool := amm.NewPool(testPair, decimal.NewFromInt(1_000_000), decimal.NewFromInt(100_000_000))
	require.NoError(t, eng.AttachPool(testPair, pool))

	_, _, _, err := eng.Submit(limit("maker", model.ASK, 99, 4))
	require.NoError(t, err)

	_, trades, _, err := eng.Submit(marketOrder("taker", model.BID, 10))
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.False(t, trades[0].PoolFill)
	assert.Equal(t, model.Quantity(4), trades[0].Quantity)

	poolTrade := trades[1]
	assert.True(t, poolTrade.PoolFill)
	assert.Equal(t, model.OrderId(0), poolTrade.MakerID)
	assert.Equal(t, model.Quantity(6), poolTrade.Quantity)
	// pool quotes around reserve ratio (100), fee pushes it slightly up
	assert.GreaterOrEqual(t, poolTrade.Price, model.Price(100))
	assert.Less(t, poolTrade.Price, model.Price(102))

	// market orders never rest
	depth, err := eng.Depth(testPair, 10)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
}

func TestMarketSellRoutesToPool(t *testing.T) {
	eng := newTestEngine(t)
	pool := amm.NewPool(testPair, decimal.NewFromInt(1_000_000), decimal.NewFromInt(100_000_000))
	require.NoError(t, eng.AttachPool(testPair, pool))

	_, trades, _, err := eng.Submit(marketOrder("taker", model.ASK, 10))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].PoolFill)
	assert.Equal(t, model.ASK, trades[0].TakerSide)
	// sells receive slightly under the spot ratio after the fee
	assert.LessOrEqual(t, trades[0].Price, model.Price(100))
	assert.Greater(t, trades[0].Price, model.Price(98))
}

func TestHaltedPairRejectsOrders(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.SetPairStatus(testPair, model.PAIR_HALTED))

	_, _, _, err := eng.Submit(limit("s", model.BID, 100, 1))
	assert.ErrorIs(t, err, model.ErrPairHalted)
}

func TestTickAndLotValidation(t *testing.T) {
	eng := NewOrderBookEngine(zaptest.NewLogger(t))
	require.NoError(t, eng.RegisterPair(model.TradingPair{
		Symbol:   testPair,
		Base:     "BTC",
		Quote:    "USDC",
		TickSize: 5,
		LotSize:  10,
		Status:   model.PAIR_ACTIVE,
	}))

	_, _, _, err := eng.Submit(limit("s", model.BID, 102, 10))
	assert.ErrorIs(t, err, model.ErrInvalidOrderParams, "off-tick price")

	_, _, _, err = eng.Submit(limit("s", model.BID, 100, 13))
	assert.ErrorIs(t, err, model.ErrInvalidOrderParams, "off-lot quantity")

	// market orders skip the tick check but not the lot check
	_, _, _, err = eng.Submit(marketOrder("s", model.ASK, 13))
	assert.ErrorIs(t, err, model.ErrInvalidOrderParams)
}

func TestUnknownPair(t *testing.T) {
	eng := NewOrderBookEngine(zaptest.NewLogger(t))
	_, _, _, err := eng.Submit(limit("s", model.BID, 100, 1))
	assert.ErrorIs(t, err, model.ErrPairNotFound)
	_, err = eng.Depth("NOPE", 10)
	assert.ErrorIs(t, err, model.ErrPairNotFound)
}

func TestDeterministicReplay(t *testing.T) {
	type submission struct {
		session string
		side    model.Side
		price   model.Price
		qty     model.Quantity
	}
	script := []submission{
		{"a", model.ASK, 101, 5},
		{"b", model.ASK, 100, 3},
		{"c", model.BID, 100, 2},
		{"d", model.BID, 101, 8},
		{"e", model.ASK, 99, 4},
		{"f", model.BID, 102, 6},
	}

	run := func() []model.Trade {
		eng := newTestEngine(t)
		var all []model.Trade
		for _, s := range script {
			_, trades, _, err := eng.Submit(limit(s.session, s.side, s.price, s.qty))
			require.NoError(t, err)
			all = append(all, trades...)
		}
		return all
	}

	first, second := run(), run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Price, second[i].Price, "trade %d", i)
		assert.Equal(t, first[i].Quantity, second[i].Quantity, "trade %d", i)
		assert.Equal(t, first[i].Sequence, second[i].Sequence, "trade %d", i)
		assert.Equal(t, first[i].TakerID, second[i].TakerID, "trade %d", i)
		assert.Equal(t, first[i].MakerID, second[i].MakerID, "trade %d", i)
	}
}

func TestStandaloneSwap(t *testing.T) {
	eng := newTestEngine(t)
	pool := amm.NewPool(testPair, decimal.NewFromInt(1_000_000), decimal.NewFromInt(100_000_000))
	require.NoError(t, eng.AttachPool(testPair, pool))

	trade, res, err := eng.Swap(testPair, "swapper", decimal.NewFromInt(1000), true)
	require.NoError(t, err)
	assert.True(t, trade.PoolFill)
	assert.Equal(t, model.ASK, trade.TakerSide)
	assert.Equal(t, "swapper", trade.TakerSession)
	assert.True(t, res.AmountOut.IsPositive())
	assert.True(t, res.Fee.IsPositive())

	_, _, err = eng.Swap(testPair, "swapper", decimal.NewFromInt(-5), true)
	assert.Error(t, err)
}
