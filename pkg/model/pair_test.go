package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOrder(t *testing.T) {
	pair := TradingPair{
		Symbol:   "BTC-USDC",
		Base:     "BTC",
		Quote:    "USDC",
		TickSize: 5,
		LotSize:  10,
		Status:   PAIR_ACTIVE,
	}

	assert.NoError(t, pair.ValidateOrder(ORDER_LIMIT, 100, 20))
	assert.ErrorIs(t, pair.ValidateOrder(ORDER_LIMIT, 102, 20), ErrInvalidOrderParams)
	assert.ErrorIs(t, pair.ValidateOrder(ORDER_LIMIT, 100, 15), ErrInvalidOrderParams)
	assert.ErrorIs(t, pair.ValidateOrder(ORDER_LIMIT, 0, 20), ErrInvalidOrderParams)

	// market orders carry no price, only the lot check applies
	assert.NoError(t, pair.ValidateOrder(ORDER_MARKET, 0, 20))
	assert.ErrorIs(t, pair.ValidateOrder(ORDER_MARKET, 0, 15), ErrInvalidOrderParams)
	assert.ErrorIs(t, pair.ValidateOrder(ORDER_MARKET, 0, 0), ErrInvalidOrderParams)
}

func TestOrderFillTransitions(t *testing.T) {
	order := NewOrder(1, "sess", "BTC-USDC", BID, 100, 10, ORDER_LIMIT)
	assert.Equal(t, ORDER_OPEN, order.GetStatus())

	require.NoError(t, order.Fill(4))
	assert.Equal(t, ORDER_PARTIALLY_FILLED, order.GetStatus())
	assert.Equal(t, Quantity(6), order.GetRemainingQuantity())
	assert.Equal(t, Quantity(4), order.GetFilledQuantity())

	assert.Error(t, order.Fill(7), "overfill must be rejected")

	require.NoError(t, order.Fill(6))
	assert.Equal(t, ORDER_FILLED, order.GetStatus())
	assert.True(t, order.IsFilled())
}

func TestTradeSerializationHidesIdentities(t *testing.T) {
	tr := Trade{
		ID:           uuid.New(),
		Pair:         "BTC-USDC",
		TakerID:      7,
		MakerID:      8,
		TakerSide:    BID,
		Price:        100,
		Quantity:     3,
		TakerSession: "secret-taker",
		MakerSession: "secret-maker",
		Settlement:   SETTLEMENT_PENDING,
	}
	raw, err := json.Marshal(&tr)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "secret-taker")
	assert.NotContains(t, string(raw), "secret-maker")
	assert.NotContains(t, string(raw), "Session")
}

func TestNotional(t *testing.T) {
	tr := Trade{Price: 250, Quantity: 4}
	assert.True(t, tr.Notional().Equal(decimal.NewFromInt(1000)))

	// price*quantity past 2^64 must not wrap
	wide := Trade{Price: 1 << 33, Quantity: 1 << 32}
	want, err := decimal.NewFromString("36893488147419103232") // 2^65
	require.NoError(t, err)
	assert.True(t, wide.Notional().Equal(want))
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, ASK, BID.Opposite())
	assert.Equal(t, BID, ASK.Opposite())
	assert.Equal(t, "BUY", BID.String())
	assert.Equal(t, "SELL", ASK.String())
}
