package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/amm"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderBookEngine owns every pair's order book and liquidity pool. All
// submit/cancel/swap calls against one pair are serialized on that pair's
// mutex; different pairs run fully in parallel.
type OrderBookEngine interface {
	RegisterPair(pair model.TradingPair) error
	SetPairStatus(symbol string, status model.PairStatus) error
	AttachPool(symbol string, pool *amm.Pool) error
	Pool(symbol string) (*amm.Pool, error)
	Pairs() []model.TradingPair

	// Submit assigns the order id and sequence number, matches, and rests
	// or routes the remainder. Trades already executed are returned even
	// when the remainder fails with ErrInsufficientLiquidity.
	Submit(order model.Order) (model.OrderId, []model.Trade, []model.BookDelta, error)
	Cancel(symbol string, orderID model.OrderId, sessionID string) (model.BookDelta, error)

	// Swap executes a standalone pool swap under the pair's section and
	// returns the pool-marker trade together with the swap amounts.
	Swap(symbol, sessionID string, amountIn decimal.Decimal, inIsBase bool) (model.Trade, amm.SwapResult, error)

	Depth(symbol string, levels int) (*model.MarketDepth, error)
	TopOfBook(symbol string) (*model.TopOfBook, error)
	OrderSize(symbol string) int
}

type pairBook struct {
	mu   sync.Mutex
	book *book
}

type orderBookEngineImpl struct {
	mu    sync.RWMutex
	books map[string]*pairBook

	nextOrderID atomic.Uint64
	logger      *zap.Logger
}

func NewOrderBookEngine(logger *zap.Logger) OrderBookEngine {
	return &orderBookEngineImpl{
		books:  make(map[string]*pairBook),
		logger: logger,
	}
}

func (e *orderBookEngineImpl) RegisterPair(pair model.TradingPair) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[pair.Symbol]; ok {
		return nil
	}
	e.books[pair.Symbol] = &pairBook{book: newBook(pair)}
	e.logger.Info("pair registered",
		zap.String("pair", pair.Symbol),
		zap.Uint64("tickSize", uint64(pair.TickSize)),
		zap.Uint64("lotSize", uint64(pair.LotSize)))
	return nil
}

func (e *orderBookEngineImpl) pairBook(symbol string) (*pairBook, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pb, ok := e.books[symbol]
	if !ok {
		return nil, model.ErrPairNotFound
	}
	return pb, nil
}

func (e *orderBookEngineImpl) SetPairStatus(symbol string, status model.PairStatus) error {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return err
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.book.pair.Status = status
	e.logger.Info("pair status changed", zap.String("pair", symbol), zap.String("status", status.String()))
	return nil
}

func (e *orderBookEngineImpl) AttachPool(symbol string, pool *amm.Pool) error {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return err
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.book.pool != nil {
		return model.ErrPoolExists
	}
	pb.book.pool = pool
	return nil
}

func (e *orderBookEngineImpl) Pool(symbol string) (*amm.Pool, error) {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return nil, err
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.book.pool == nil {
		return nil, model.ErrInsufficientLiquidity
	}
	return pb.book.pool, nil
}

func (e *orderBookEngineImpl) Pairs() []model.TradingPair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pairs := make([]model.TradingPair, 0, len(e.books))
	for _, pb := range e.books {
		pairs = append(pairs, pb.book.pair)
	}
	return pairs
}

func (e *orderBookEngineImpl) Submit(order model.Order) (model.OrderId, []model.Trade, []model.BookDelta, error) {
	pb, err := e.pairBook(order.GetPair())
	if err != nil {
		return 0, nil, nil, err
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()

	pair := pb.book.pair
	if pair.Status != model.PAIR_ACTIVE {
		return 0, nil, nil, model.ErrPairHalted
	}
	if err := pair.ValidateOrder(order.GetType(), order.GetPrice(), order.GetInitialQuantity()); err != nil {
		return 0, nil, nil, err
	}

	order.AssignId(model.OrderId(e.nextOrderID.Add(1)))
	order.AssignSequence(pb.book.sequence())

	trades, deltas := pb.book.match(&order)

	if order.GetRemainingQuantity() > 0 {
		switch order.GetType() {
		case model.ORDER_LIMIT:
			deltas = append(deltas, pb.book.rest(&order))
		case model.ORDER_MARKET:
			trade, err := e.poolFill(pb.book, &order)
			if err != nil {
				// partial fills against the book stand; only the
				// unfillable remainder is discarded
				return order.GetId(), trades, deltas, err
			}
			trades = append(trades, trade)
		}
	}
	return order.GetId(), trades, deltas, nil
}

// poolFill routes a market-order remainder to the pair's liquidity pool.
// Buys swap for an exact base output, sells swap the base remainder in.
func (e *orderBookEngineImpl) poolFill(b *book, taker *model.Order) (model.Trade, error) {
	if b.pool == nil {
		return model.Trade{}, model.ErrInsufficientLiquidity
	}
	remainder := taker.GetRemainingQuantity()
	base := amm.FromUnits(uint64(remainder))

	var price model.Price
	if taker.GetSide() == model.BID {
		res, err := b.pool.SwapExactOut(base, true)
		if err != nil {
			return model.Trade{}, err
		}
		price = model.Price(res.AmountIn.Div(base).Round(0).BigInt().Uint64())
	} else {
		res, err := b.pool.Swap(base, true)
		if err != nil {
			return model.Trade{}, err
		}
		price = model.Price(res.AmountOut.Div(base).Round(0).BigInt().Uint64())
	}
	_ = taker.Fill(remainder)

	return model.Trade{
		ID:           uuid.New(),
		Pair:         b.pair.Symbol,
		TakerID:      taker.GetId(),
		PoolFill:     true,
		TakerSide:    taker.GetSide(),
		Price:        price,
		Quantity:     remainder,
		TakerSession: taker.GetSessionID(),
		Sequence:     b.sequence(),
		ExecutedAt:   time.Now(),
	}, nil
}

func (e *orderBookEngineImpl) Cancel(symbol string, orderID model.OrderId, sessionID string) (model.BookDelta, error) {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return model.BookDelta{}, err
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.cancel(orderID, sessionID)
}

func (e *orderBookEngineImpl) Swap(symbol, sessionID string, amountIn decimal.Decimal, inIsBase bool) (model.Trade, amm.SwapResult, error) {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return model.Trade{}, amm.SwapResult{}, err
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.book.pair.Status != model.PAIR_ACTIVE {
		return model.Trade{}, amm.SwapResult{}, model.ErrPairHalted
	}
	if pb.book.pool == nil {
		return model.Trade{}, amm.SwapResult{}, model.ErrInsufficientLiquidity
	}

	res, err := pb.book.pool.Swap(amountIn, inIsBase)
	if err != nil {
		return model.Trade{}, amm.SwapResult{}, err
	}

	var side model.Side
	var qty model.Quantity
	var price model.Price
	if inIsBase {
		side = model.ASK
		qty = model.Quantity(amountIn.Floor().BigInt().Uint64())
		price = model.Price(res.AmountOut.Div(amountIn).Round(0).BigInt().Uint64())
	} else {
		side = model.BID
		qty = model.Quantity(res.AmountOut.Floor().BigInt().Uint64())
		if res.AmountOut.IsPositive() {
			price = model.Price(amountIn.Div(res.AmountOut).Round(0).BigInt().Uint64())
		}
	}

	trade := model.Trade{
		ID:           uuid.New(),
		Pair:         symbol,
		PoolFill:     true,
		TakerSide:    side,
		Price:        price,
		Quantity:     qty,
		TakerSession: sessionID,
		Sequence:     pb.book.sequence(),
		ExecutedAt:   time.Now(),
	}
	return trade, res, nil
}

func (e *orderBookEngineImpl) Depth(symbol string, levels int) (*model.MarketDepth, error) {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return nil, err
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.marketDepth(levels), nil
}

func (e *orderBookEngineImpl) TopOfBook(symbol string) (*model.TopOfBook, error) {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return nil, err
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.book.topOfBook(), nil
}

func (e *orderBookEngineImpl) OrderSize(symbol string) int {
	pb, err := e.pairBook(symbol)
	if err != nil {
		return 0
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return len(pb.book.orders)
}
