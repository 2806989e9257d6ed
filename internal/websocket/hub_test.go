package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func recvPublish(t *testing.T, h *Hub) publishMsg {
	t.Helper()
	select {
	case msg := <-h.publish:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message published")
		return publishMsg{}
	}
}

func TestPublishTradeRedactsIdentities(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))

	tr := &model.Trade{
		ID:           uuid.New(),
		Pair:         "BTC-USDC",
		TakerID:      7,
		MakerID:      8,
		TakerSide:    model.BID,
		Price:        100,
		Quantity:     5,
		TakerSession: "taker-session-secret",
		MakerSession: "maker-session-secret",
		Sequence:     1,
		ExecutedAt:   time.Now(),
	}
	h.PublishTrade(tr)

	msg := recvPublish(t, h)
	assert.Equal(t, "BTC-USDC", msg.Topic)

	payload := string(msg.Data)
	assert.NotContains(t, payload, "taker-session-secret")
	assert.NotContains(t, payload, "maker-session-secret")
	assert.NotContains(t, payload, "Side")
	assert.NotContains(t, payload, "takerOrderId")

	var ev struct {
		Type  string     `json:"type"`
		Trade TradeEvent `json:"trade"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "trade", ev.Type)
	assert.Equal(t, tr.ID.String(), ev.Trade.TradeID)
	assert.Equal(t, model.Price(100), ev.Trade.Price)
	assert.Equal(t, model.Quantity(5), ev.Trade.Quantity)
}

func TestPublishBookDeltaTargetsPairTopic(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))

	h.PublishBookDelta(model.BookDelta{
		Pair:     "ETH-USDC",
		Kind:     model.DELTA_ADD,
		Side:     model.ASK,
		Price:    250,
		Quantity: 40,
	})

	msg := recvPublish(t, h)
	assert.Equal(t, "ETH-USDC", msg.Topic)
	assert.True(t, strings.Contains(string(msg.Data), `"book_delta"`))
}

func TestPublishSettlementCarriesStatus(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))

	tr := &model.Trade{
		ID:         uuid.New(),
		Pair:       "BTC-USDC",
		Settlement: model.SETTLEMENT_PENDING,
	}
	h.PublishSettlement(tr)
	msg := recvPublish(t, h)

	var ev struct {
		Type  string          `json:"type"`
		Event SettlementEvent `json:"settlement"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "settlement", ev.Type)
	assert.Equal(t, "pending", ev.Event.Status)

	tr.Settlement = model.SETTLEMENT_SETTLED
	h.PublishSettlement(tr)
	msg = recvPublish(t, h)
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "settled", ev.Event.Status)
}

func TestStatsTracksClientCount(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &Client{hub: h, send: make(chan []byte, 1), subscribed: make(map[string]struct{})}
	h.register <- c
	require.Eventually(t, func() bool {
		n, _ := h.Stats()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	h.unregister <- c
	require.Eventually(t, func() bool {
		n, _ := h.Stats()
		return n == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEventSequencePerPair(t *testing.T) {
	pair := "SEQ-TEST-" + uuid.NewString()
	first := nextSeq(pair)
	second := nextSeq(pair)
	third := nextSeq(pair)
	assert.Equal(t, first+1, second)
	assert.Equal(t, second+1, third)

	other := "SEQ-OTHER-" + uuid.NewString()
	assert.Equal(t, uint64(1), nextSeq(other))
}
