package engine

import (
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/amm"
	orderbookModel "github.com/Yusufzhafir/go-dex/backend/internal/engine/model"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/btree"
	"github.com/google/uuid"
)

// book holds the resting orders of a single trading pair. All access is
// serialized by the engine through the pair's mutex: matching never blocks
// on I/O, so the critical section is pure computation.
type book struct {
	pair model.TradingPair

	bids, asks *btree.BTree                   // price-level trees
	orders     map[model.OrderId]*model.Order // resting orders by id
	pool       *amm.Pool                      // optional market-order fallback

	nextSeq model.Sequence
}

func newBook(pair model.TradingPair) *book {
	return &book{
		pair:   pair,
		bids:   btree.New(32),
		asks:   btree.New(32),
		orders: make(map[model.OrderId]*model.Order),
	}
}

func (b *book) sequence() model.Sequence {
	b.nextSeq++
	return b.nextSeq
}

func crosses(taker *model.Order, restingPrice model.Price) bool {
	if taker.GetType() == model.ORDER_MARKET {
		return true
	}
	if taker.GetSide() == model.BID {
		return restingPrice <= taker.GetPrice()
	}
	return restingPrice >= taker.GetPrice()
}

// match sweeps the opposite side while the taker crosses it. Fills execute
// at the resting order's price; a partially filled maker keeps its original
// sequence number and its place at the head of the level queue.
func (b *book) match(taker *model.Order) ([]model.Trade, []model.BookDelta) {
	var trades []model.Trade
	var deltas []model.BookDelta

	for taker.GetRemainingQuantity() > 0 {
		if taker.GetSide() == model.BID {
			if b.asks.Len() == 0 {
				break
			}
			level := b.asks.Min().(*orderbookModel.AskPriceLevel)
			if !crosses(taker, level.Price) {
				break
			}
			b.fillAtLevel(taker, level.Orders[0], level.Price, &level.Orders, &level.TotalVolume, &trades, &deltas)
			if len(level.Orders) == 0 {
				b.asks.Delete(level)
			}
		} else {
			if b.bids.Len() == 0 {
				break
			}
			level := b.bids.Min().(*orderbookModel.BidPriceLevel)
			if !crosses(taker, level.Price) {
				break
			}
			b.fillAtLevel(taker, level.Orders[0], level.Price, &level.Orders, &level.TotalVolume, &trades, &deltas)
			if len(level.Orders) == 0 {
				b.bids.Delete(level)
			}
		}
	}
	return trades, deltas
}

func (b *book) fillAtLevel(taker, maker *model.Order, price model.Price,
	queue *[]*model.Order, volume *model.Quantity,
	trades *[]model.Trade, deltas *[]model.BookDelta) {

	qty := min(taker.GetRemainingQuantity(), maker.GetRemainingQuantity())
	_ = maker.Fill(qty)
	_ = taker.Fill(qty)
	*volume -= qty

	*trades = append(*trades, model.Trade{
		ID:           uuid.New(),
		Pair:         b.pair.Symbol,
		TakerID:      taker.GetId(),
		MakerID:      maker.GetId(),
		TakerSide:    taker.GetSide(),
		Price:        price,
		Quantity:     qty,
		TakerSession: taker.GetSessionID(),
		MakerSession: maker.GetSessionID(),
		Sequence:     b.sequence(),
		ExecutedAt:   time.Now(),
	})

	kind := model.DELTA_REDUCE
	if maker.IsFilled() {
		delete(b.orders, maker.GetId())
		*queue = (*queue)[1:]
		if len(*queue) == 0 {
			kind = model.DELTA_REMOVE
		}
	}
	*deltas = append(*deltas, model.BookDelta{
		Pair:     b.pair.Symbol,
		Kind:     kind,
		Side:     maker.GetSide(),
		Price:    price,
		Quantity: qty,
	})
}

// rest inserts a limit remainder into its side of the book.
func (b *book) rest(order *model.Order) model.BookDelta {
	b.orders[order.GetId()] = order

	switch order.GetSide() {
	case model.ASK:
		probe := &orderbookModel.AskPriceLevel{Price: order.GetPrice()}
		if !b.asks.Has(probe) {
			b.asks.ReplaceOrInsert(probe)
		}
		level := b.asks.Get(probe).(*orderbookModel.AskPriceLevel)
		level.Orders = append(level.Orders, order)
		level.TotalVolume += order.GetRemainingQuantity()
	case model.BID:
		probe := &orderbookModel.BidPriceLevel{Price: order.GetPrice()}
		if !b.bids.Has(probe) {
			b.bids.ReplaceOrInsert(probe)
		}
		level := b.bids.Get(probe).(*orderbookModel.BidPriceLevel)
		level.Orders = append(level.Orders, order)
		level.TotalVolume += order.GetRemainingQuantity()
	}

	return model.BookDelta{
		Pair:     b.pair.Symbol,
		Kind:     model.DELTA_ADD,
		Side:     order.GetSide(),
		Price:    order.GetPrice(),
		Quantity: order.GetRemainingQuantity(),
	}
}

// cancel removes a resting order. A cancel that arrives after the order was
// fully filled finds nothing in the map and reports ErrOrderNotFound; a
// Trade's maker is therefore always an order that was still resting when
// the match ran.
func (b *book) cancel(orderID model.OrderId, sessionID string) (model.BookDelta, error) {
	order, exists := b.orders[orderID]
	if !exists {
		return model.BookDelta{}, model.ErrOrderNotFound
	}
	if order.GetSessionID() != sessionID {
		return model.BookDelta{}, model.ErrNotOwner
	}

	// REMOVE only when this was the last order at the level; other resting
	// orders keep the level alive and subscribers see a REDUCE.
	remaining := order.GetRemainingQuantity()
	kind := model.DELTA_REMOVE
	if order.GetSide() == model.ASK {
		probe := &orderbookModel.AskPriceLevel{Price: order.GetPrice()}
		if item := b.asks.Get(probe); item != nil {
			level := item.(*orderbookModel.AskPriceLevel)
			level.RemoveOrderByID(orderID)
			if len(level.Orders) == 0 {
				b.asks.Delete(level)
			} else {
				kind = model.DELTA_REDUCE
			}
		}
	} else {
		probe := &orderbookModel.BidPriceLevel{Price: order.GetPrice()}
		if item := b.bids.Get(probe); item != nil {
			level := item.(*orderbookModel.BidPriceLevel)
			level.RemoveOrderByID(orderID)
			if len(level.Orders) == 0 {
				b.bids.Delete(level)
			} else {
				kind = model.DELTA_REDUCE
			}
		}
	}

	delete(b.orders, orderID)
	order.Cancel()

	return model.BookDelta{
		Pair:     b.pair.Symbol,
		Kind:     kind,
		Side:     order.GetSide(),
		Price:    order.GetPrice(),
		Quantity: remaining,
	}, nil
}

func (b *book) marketDepth(levels int) *model.MarketDepth {
	depth := &model.MarketDepth{
		Pair:      b.pair.Symbol,
		Bids:      make([]model.MarketDepthLevel, 0, levels),
		Asks:      make([]model.MarketDepthLevel, 0, levels),
		Timestamp: time.Now().UnixMilli(),
	}

	count := 0
	b.bids.Ascend(func(item btree.Item) bool {
		if count >= levels {
			return false
		}
		level := item.(*orderbookModel.BidPriceLevel)
		depth.Bids = append(depth.Bids, model.MarketDepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		})
		count++
		return true
	})

	count = 0
	b.asks.Ascend(func(item btree.Item) bool {
		if count >= levels {
			return false
		}
		level := item.(*orderbookModel.AskPriceLevel)
		depth.Asks = append(depth.Asks, model.MarketDepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		})
		count++
		return true
	})

	return depth
}

func (b *book) topOfBook() *model.TopOfBook {
	tob := &model.TopOfBook{}
	if b.bids.Len() > 0 {
		level := b.bids.Min().(*orderbookModel.BidPriceLevel)
		tob.BestBid = &model.MarketDepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		}
	}
	if b.asks.Len() > 0 {
		level := b.asks.Min().(*orderbookModel.AskPriceLevel)
		tob.BestAsk = &model.MarketDepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		}
	}
	if tob.BestBid != nil && tob.BestAsk != nil {
		tob.Spread = tob.BestAsk.Price - tob.BestBid.Price
	}
	return tob
}
