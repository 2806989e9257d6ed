package trading

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/engine"
	ledgerRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/ledger"
	orderRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/order"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventPublisher is the fan-out surface trades and book changes are
// pushed through. The websocket hub implements it.
type EventPublisher interface {
	PublishTrade(trade *model.Trade)
	PublishBookDelta(delta model.BookDelta)
	PublishSettlement(trade *model.Trade)
}

type PlaceOrderResult struct {
	OrderID   model.OrderId  `json:"orderId"`
	Status    string         `json:"status"`
	Remaining model.Quantity `json:"remaining"`
	Trades    []model.Trade  `json:"trades"`
}

type TradingUseCase interface {
	PlaceOrder(ctx context.Context, sessionID, symbol string, side model.Side, orderType model.OrderType, price model.Price, quantity model.Quantity) (*PlaceOrderResult, error)
	CancelOrder(ctx context.Context, sessionID, symbol string, orderID model.OrderId) error
	Swap(ctx context.Context, sessionID, symbol string, amountIn decimal.Decimal, inIsBase bool) (*model.Trade, error)
	ListOrders(ctx context.Context, sessionID string, onlyActive bool) ([]orderRepository.OrderRecord, error)

	// RegisterPoolSession binds a pair's pool to the ledger account set
	// its reserves settle against.
	RegisterPoolSession(symbol, sessionID string)

	// RetrySettlements re-submits transfers for trades still pending.
	// Transfer ids are deterministic, so a trade that actually settled
	// is recognized and just marked settled.
	RetrySettlements(ctx context.Context) error
}

type tradingUseCaseImpl struct {
	engine    engine.OrderBookEngine
	balances  ledgerRepository.BalanceLedger
	orderRepo orderRepository.OrderRepository
	publisher EventPublisher
	db        *sqlx.DB
	logger    *zap.Logger

	poolMu       sync.RWMutex
	poolSessions map[string]string
}

type TradingUseCaseOpts struct {
	Engine    engine.OrderBookEngine
	Balances  ledgerRepository.BalanceLedger
	OrderRepo orderRepository.OrderRepository
	Publisher EventPublisher
	Db        *sqlx.DB
	Logger    *zap.Logger
}

func NewTradingUseCase(opts TradingUseCaseOpts) TradingUseCase {
	return &tradingUseCaseImpl{
		engine:       opts.Engine,
		balances:     opts.Balances,
		orderRepo:    opts.OrderRepo,
		publisher:    opts.Publisher,
		db:           opts.Db,
		logger:       opts.Logger,
		poolSessions: make(map[string]string),
	}
}

func (tu *tradingUseCaseImpl) RegisterPoolSession(symbol, sessionID string) {
	tu.poolMu.Lock()
	defer tu.poolMu.Unlock()
	tu.poolSessions[symbol] = sessionID
}

func (tu *tradingUseCaseImpl) poolSession(symbol string) (string, bool) {
	tu.poolMu.RLock()
	defer tu.poolMu.RUnlock()
	s, ok := tu.poolSessions[symbol]
	return s, ok
}

func (tu *tradingUseCaseImpl) pairFor(symbol string) (model.TradingPair, error) {
	for _, p := range tu.engine.Pairs() {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return model.TradingPair{}, model.ErrPairNotFound
}

func toDec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// marketEstimate picks a reference price for the pre-trade funds check
// on market buys: best resting ask first, pool price as fallback.
func (tu *tradingUseCaseImpl) marketEstimate(symbol string) (decimal.Decimal, error) {
	if tob, err := tu.engine.TopOfBook(symbol); err == nil && tob != nil && tob.BestAsk != nil {
		return toDec(uint64(tob.BestAsk.Price)), nil
	}
	if pool, err := tu.engine.Pool(symbol); err == nil && pool != nil {
		return pool.CurrentPrice(), nil
	}
	return decimal.Zero, model.ErrInsufficientLiquidity
}

func (tu *tradingUseCaseImpl) PlaceOrder(ctx context.Context, sessionID, symbol string, side model.Side, orderType model.OrderType, price model.Price, quantity model.Quantity) (*PlaceOrderResult, error) {
	pair, err := tu.pairFor(symbol)
	if err != nil {
		return nil, err
	}

	reserved := decimal.Zero
	reservedAsset := ""
	switch orderType {
	case model.ORDER_LIMIT:
		if side == model.BID {
			reservedAsset = pair.Quote
			reserved = toDec(uint64(price)).Mul(toDec(uint64(quantity)))
		} else {
			reservedAsset = pair.Base
			reserved = toDec(uint64(quantity))
		}
		if err := tu.balances.CheckAvailable(ctx, sessionID, reservedAsset, reserved); err != nil {
			return nil, err
		}
		if err := tu.balances.Reserve(ctx, sessionID, reservedAsset, reserved); err != nil {
			return nil, err
		}
	case model.ORDER_MARKET:
		if side == model.BID {
			est, err := tu.marketEstimate(symbol)
			if err != nil {
				return nil, err
			}
			if err := tu.balances.CheckAvailable(ctx, sessionID, pair.Quote, est.Mul(toDec(uint64(quantity)))); err != nil {
				return nil, err
			}
		} else {
			if err := tu.balances.CheckAvailable(ctx, sessionID, pair.Base, toDec(uint64(quantity))); err != nil {
				return nil, err
			}
		}
	}

	order := model.NewOrder(0, sessionID, symbol, side, price, quantity, orderType)
	orderID, trades, deltas, submitErr := tu.engine.Submit(order)
	if submitErr != nil && len(trades) == 0 {
		if !reserved.IsZero() {
			if relErr := tu.balances.Release(ctx, sessionID, reservedAsset, reserved); relErr != nil {
				tu.logger.Error("reservation release failed",
					zap.Uint64("orderId", uint64(orderID)),
					zap.Error(relErr))
			}
		}
		return nil, submitErr
	}

	var filled model.Quantity
	for _, tr := range trades {
		filled += tr.Quantity
	}
	remaining := quantity - filled
	resting := orderType == model.ORDER_LIMIT && remaining > 0

	tx, err := tu.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec := orderRepository.OrderRecord{
		ID:                uint64(orderID),
		SessionID:         sessionID,
		Pair:              symbol,
		Side:              int8(side),
		Type:              uint8(orderType),
		Quantity:          uint64(quantity),
		RemainingQuantity: uint64(remaining),
		Price:             uint64(price),
		IsActive:          resting,
	}
	if err := tu.orderRepo.CreateOrder(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("inserting order: %w", err)
	}
	if !resting {
		if err := tu.orderRepo.CloseOrder(ctx, tx, uint64(orderID), time.Now()); err != nil {
			return nil, fmt.Errorf("closing order: %w", err)
		}
	}

	// Market fills against the book were not escrowed up front: move the
	// exact executed amounts now so settlement can pay out of escrow.
	// Pool fills bypass escrow entirely.
	if orderType == model.ORDER_MARKET {
		bookQuote, bookBase := decimal.Zero, decimal.Zero
		for _, tr := range trades {
			if tr.PoolFill {
				continue
			}
			bookQuote = bookQuote.Add(tr.Notional())
			bookBase = bookBase.Add(toDec(uint64(tr.Quantity)))
		}
		if side == model.BID && !bookQuote.IsZero() {
			if err := tu.balances.Reserve(ctx, sessionID, pair.Quote, bookQuote); err != nil {
				return nil, err
			}
		}
		if side == model.ASK && !bookBase.IsZero() {
			if err := tu.balances.Reserve(ctx, sessionID, pair.Base, bookBase); err != nil {
				return nil, err
			}
		}
	}

	// A buy that crossed below its limit spends less than it escrowed.
	// Return the price improvement right away; the escrow left behind is
	// exactly limit price times the resting remainder.
	if orderType == model.ORDER_LIMIT && side == model.BID {
		improvement := decimal.Zero
		for _, tr := range trades {
			if tr.Price < price {
				improvement = improvement.Add(toDec(uint64(price - tr.Price)).Mul(toDec(uint64(tr.Quantity))))
			}
		}
		if !improvement.IsZero() {
			if err := tu.balances.Release(ctx, sessionID, pair.Quote, improvement); err != nil {
				tu.logger.Error("price improvement release failed",
					zap.Uint64("orderId", uint64(orderID)),
					zap.Error(err))
			}
		}
	}

	for i := range trades {
		if err := tu.processTrade(ctx, tx, &trades[i], pair); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, d := range deltas {
		tu.publisher.PublishBookDelta(d)
	}
	for i := range trades {
		tu.publisher.PublishTrade(&trades[i])
		// pending here means settlement was deferred; the retry loop
		// publishes again once the transfers land
		tu.publisher.PublishSettlement(&trades[i])
	}

	result := &PlaceOrderResult{
		OrderID:   orderID,
		Status:    orderStatusLabel(orderType, filled, remaining),
		Remaining: remaining,
		Trades:    trades,
	}
	return result, submitErr
}

func orderStatusLabel(orderType model.OrderType, filled, remaining model.Quantity) string {
	switch {
	case remaining == 0:
		return model.ORDER_FILLED.String()
	case filled > 0 && orderType == model.ORDER_LIMIT:
		return model.ORDER_PARTIALLY_FILLED.String()
	case orderType == model.ORDER_LIMIT:
		return model.ORDER_OPEN.String()
	case filled > 0:
		return model.ORDER_PARTIALLY_FILLED.String()
	default:
		return model.ORDER_CANCELLED.String()
	}
}

// processTrade records the trade, runs its settlement transfers, and
// keeps the maker's order row in step with the fill.
func (tu *tradingUseCaseImpl) processTrade(ctx context.Context, tx *sqlx.Tx, tr *model.Trade, pair model.TradingPair) error {
	if tr.PoolFill {
		poolSess, ok := tu.poolSession(pair.Symbol)
		if !ok {
			return fmt.Errorf("%w: no pool account for %s", model.ErrSettlementFailed, pair.Symbol)
		}
		tr.MakerSession = poolSess
	}

	rec := orderRepository.TradeRecord{
		ID:               tr.ID.String(),
		Pair:             tr.Pair,
		OrderTakerID:     uint64(tr.TakerID),
		OrderMakerID:     uint64(tr.MakerID),
		PoolFill:         tr.PoolFill,
		TakerSide:        int8(tr.TakerSide),
		Quantity:         uint64(tr.Quantity),
		Price:            uint64(tr.Price),
		Sequence:         uint64(tr.Sequence),
		SettlementStatus: int8(model.SETTLEMENT_PENDING),
		TradedAt:         tr.ExecutedAt,
	}
	if err := tu.orderRepo.CreateTrade(ctx, tx, rec); err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}

	if !tr.PoolFill {
		makerRec, err := tu.orderRepo.GetOrderByID(ctx, tx, uint64(tr.MakerID))
		if err == nil && makerRec.IsActive {
			newRemaining := makerRec.RemainingQuantity - uint64(tr.Quantity)
			if newRemaining == 0 {
				if err := tu.orderRepo.CloseOrder(ctx, tx, makerRec.ID, time.Now()); err != nil {
					return err
				}
			} else {
				if err := tu.orderRepo.UpdateRemaining(ctx, tx, makerRec.ID, newRemaining); err != nil {
					return err
				}
			}
		}
	}

	var settleErr error
	if tr.PoolFill {
		settleErr = tu.balances.ApplySwap(ctx, tr, pair, tr.MakerSession)
	} else {
		settleErr = tu.balances.ApplySettlement(ctx, tr, pair)
	}
	if settleErr != nil {
		// the trade stands; settlement retries until the transfers land
		tu.logger.Warn("settlement deferred",
			zap.String("tradeId", tr.ID.String()),
			zap.Error(settleErr))
		return nil
	}
	tr.Settlement = model.SETTLEMENT_SETTLED
	return tu.orderRepo.UpdateTradeSettlement(ctx, tx, tr.ID.String(), int8(model.SETTLEMENT_SETTLED))
}

func (tu *tradingUseCaseImpl) CancelOrder(ctx context.Context, sessionID, symbol string, orderID model.OrderId) error {
	pair, err := tu.pairFor(symbol)
	if err != nil {
		return err
	}
	delta, err := tu.engine.Cancel(symbol, orderID, sessionID)
	if err != nil {
		return err
	}

	asset := pair.Base
	amount := toDec(uint64(delta.Quantity))
	if delta.Side == model.BID {
		asset = pair.Quote
		amount = toDec(uint64(delta.Price)).Mul(toDec(uint64(delta.Quantity)))
	}
	if err := tu.balances.Release(ctx, sessionID, asset, amount); err != nil {
		tu.logger.Error("cancel escrow release failed",
			zap.Uint64("orderId", uint64(orderID)),
			zap.Error(err))
	}

	tx, err := tu.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := tu.orderRepo.CloseOrder(ctx, tx, uint64(orderID), time.Now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	tu.publisher.PublishBookDelta(delta)
	return nil
}

func (tu *tradingUseCaseImpl) Swap(ctx context.Context, sessionID, symbol string, amountIn decimal.Decimal, inIsBase bool) (*model.Trade, error) {
	pair, err := tu.pairFor(symbol)
	if err != nil {
		return nil, err
	}
	inAsset := pair.Quote
	if inIsBase {
		inAsset = pair.Base
	}
	if err := tu.balances.CheckAvailable(ctx, sessionID, inAsset, amountIn); err != nil {
		return nil, err
	}

	trade, _, err := tu.engine.Swap(symbol, sessionID, amountIn, inIsBase)
	if err != nil {
		return nil, err
	}

	tx, err := tu.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := tu.processTrade(ctx, tx, &trade, pair); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	tu.publisher.PublishTrade(&trade)
	tu.publisher.PublishSettlement(&trade)
	return &trade, nil
}

func (tu *tradingUseCaseImpl) ListOrders(ctx context.Context, sessionID string, onlyActive bool) ([]orderRepository.OrderRecord, error) {
	tx, err := tu.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return tu.orderRepo.ListOrdersBySession(ctx, tx, sessionID, onlyActive)
}

func (tu *tradingUseCaseImpl) RetrySettlements(ctx context.Context) error {
	tx, err := tu.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pending, err := tu.orderRepo.ListUnsettledTrades(ctx, tx, 100)
	if err != nil {
		return err
	}

	var firstErr error
	for _, rec := range pending {
		tr, pair, err := tu.rebuildTrade(ctx, tx, rec)
		if err != nil {
			tu.logger.Error("cannot rebuild pending trade",
				zap.String("tradeId", rec.ID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		var settleErr error
		if tr.PoolFill {
			settleErr = tu.balances.ApplySwap(ctx, tr, pair, tr.MakerSession)
		} else {
			settleErr = tu.balances.ApplySettlement(ctx, tr, pair)
		}
		if settleErr != nil {
			if firstErr == nil {
				firstErr = settleErr
			}
			continue
		}
		tr.Settlement = model.SETTLEMENT_SETTLED
		if err := tu.orderRepo.UpdateTradeSettlement(ctx, tx, rec.ID, int8(model.SETTLEMENT_SETTLED)); err != nil {
			return err
		}
		tu.publisher.PublishSettlement(tr)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return firstErr
}

// rebuildTrade reconstitutes a persisted trade with the session ids its
// settlement needs, pulled from the originating order rows.
func (tu *tradingUseCaseImpl) rebuildTrade(ctx context.Context, tx *sqlx.Tx, rec orderRepository.TradeRecord) (*model.Trade, model.TradingPair, error) {
	pair, err := tu.pairFor(rec.Pair)
	if err != nil {
		return nil, model.TradingPair{}, err
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, model.TradingPair{}, err
	}

	takerRec, err := tu.orderRepo.GetOrderByID(ctx, tx, rec.OrderTakerID)
	if err != nil {
		return nil, model.TradingPair{}, err
	}

	tr := &model.Trade{
		ID:           id,
		Pair:         rec.Pair,
		TakerID:      model.OrderId(rec.OrderTakerID),
		MakerID:      model.OrderId(rec.OrderMakerID),
		PoolFill:     rec.PoolFill,
		TakerSide:    model.Side(rec.TakerSide),
		Price:        model.Price(rec.Price),
		Quantity:     model.Quantity(rec.Quantity),
		TakerSession: takerRec.SessionID,
		Sequence:     model.Sequence(rec.Sequence),
		ExecutedAt:   rec.TradedAt,
		Settlement:   model.SETTLEMENT_PENDING,
	}
	if rec.PoolFill {
		poolSess, ok := tu.poolSession(rec.Pair)
		if !ok {
			return nil, model.TradingPair{}, errors.New("no pool account registered")
		}
		tr.MakerSession = poolSess
	} else {
		makerRec, err := tu.orderRepo.GetOrderByID(ctx, tx, rec.OrderMakerID)
		if err != nil {
			return nil, model.TradingPair{}, err
		}
		tr.MakerSession = makerRec.SessionID
	}
	return tr, pair, nil
}
