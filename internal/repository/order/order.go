package order

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// --- Models corresponding to DB tables ---
type OrderRecord struct {
	ID                uint64     `db:"id"`
	SessionID         string     `db:"session_id"`
	Pair              string     `db:"pair"`
	Side              int8       `db:"side"` // 0 = BID, 1 = ASK
	Type              uint8      `db:"type"` // 0 = LIMIT, 1 = MARKET
	Quantity          uint64     `db:"quantity"`
	RemainingQuantity uint64     `db:"remaining_quantity"`
	Price             uint64     `db:"price"`
	IsActive          bool       `db:"is_active"`
	CreatedAt         time.Time  `db:"created_at"`
	ClosedAt          *time.Time `db:"closed_at"`
}

type TradeRecord struct {
	ID               string    `db:"id"`
	Pair             string    `db:"pair"`
	OrderTakerID     uint64    `db:"order_taker_id"`
	OrderMakerID     uint64    `db:"order_maker_id"`
	PoolFill         bool      `db:"pool_fill"`
	TakerSide        int8      `db:"taker_side"`
	Quantity         uint64    `db:"quantity"`
	Price            uint64    `db:"price"`
	Sequence         uint64    `db:"sequence"`
	SettlementStatus int8      `db:"settlement_status"` // 0 = PENDING, 1 = SETTLED, 2 = FAILED
	TradedAt         time.Time `db:"traded_at"`
}

// --- Repository Interface ---
type OrderRepository interface {
	CreateOrder(ctx context.Context, tx *sqlx.Tx, order OrderRecord) error
	UpdateRemaining(ctx context.Context, tx *sqlx.Tx, orderID uint64, remaining uint64) error
	CloseOrder(ctx context.Context, tx *sqlx.Tx, orderID uint64, closedAt time.Time) error
	GetOrderByID(ctx context.Context, tx *sqlx.Tx, orderID uint64) (*OrderRecord, error)
	ListOrdersBySession(ctx context.Context, tx *sqlx.Tx, sessionID string, onlyActive bool) ([]OrderRecord, error)
	CreateTrade(ctx context.Context, tx *sqlx.Tx, trade TradeRecord) error
	UpdateTradeSettlement(ctx context.Context, tx *sqlx.Tx, tradeID string, status int8) error
	ListTradesByPair(ctx context.Context, tx *sqlx.Tx, pair string, limit int) ([]TradeRecord, error)
	ListTradesByPairSince(ctx context.Context, tx *sqlx.Tx, pair string, since time.Time) ([]TradeRecord, error)
	ListUnsettledTrades(ctx context.Context, tx *sqlx.Tx, limit int) ([]TradeRecord, error)
}

// --- Implementation ---
type orderRepositoryImpl struct{}

func NewOrderRepository(db *sqlx.DB) OrderRepository {
	return &orderRepositoryImpl{}
}

func (r *orderRepositoryImpl) CreateOrder(ctx context.Context, tx *sqlx.Tx, order OrderRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, session_id, pair, side, type, quantity, remaining_quantity, price, is_active)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		order.ID, order.SessionID, order.Pair, order.Side, order.Type,
		order.Quantity, order.RemainingQuantity, order.Price, order.IsActive)
	return err
}

func (r *orderRepositoryImpl) UpdateRemaining(ctx context.Context, tx *sqlx.Tx, orderID uint64, remaining uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET remaining_quantity=$1 WHERE id=$2`,
		remaining, orderID)
	return err
}

func (r *orderRepositoryImpl) CloseOrder(ctx context.Context, tx *sqlx.Tx, orderID uint64, closedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET is_active=false, closed_at=$1 WHERE id=$2`,
		closedAt, orderID)
	return err
}

func (r *orderRepositoryImpl) GetOrderByID(ctx context.Context, tx *sqlx.Tx, orderID uint64) (*OrderRecord, error) {
	var ord OrderRecord
	err := tx.GetContext(ctx, &ord,
		`SELECT id, session_id, pair, side, type, quantity, remaining_quantity, price, is_active, created_at, closed_at
         FROM orders WHERE id=$1`,
		orderID)
	if err != nil {
		return nil, err
	}
	return &ord, nil
}

func (r *orderRepositoryImpl) ListOrdersBySession(ctx context.Context, tx *sqlx.Tx, sessionID string, onlyActive bool) ([]OrderRecord, error) {
	var orders []OrderRecord
	var err error
	if onlyActive {
		err = tx.SelectContext(ctx, &orders,
			`SELECT id, session_id, pair, side, type, quantity, remaining_quantity, price, is_active, created_at, closed_at
             FROM orders WHERE session_id=$1 AND is_active=true ORDER BY created_at DESC`, sessionID)
	} else {
		err = tx.SelectContext(ctx, &orders,
			`SELECT id, session_id, pair, side, type, quantity, remaining_quantity, price, is_active, created_at, closed_at
             FROM orders WHERE session_id=$1 ORDER BY created_at DESC`, sessionID)
	}
	return orders, err
}

func (r *orderRepositoryImpl) CreateTrade(ctx context.Context, tx *sqlx.Tx, trade TradeRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, pair, order_taker_id, order_maker_id, pool_fill,
                             taker_side, quantity, price, sequence, settlement_status, traded_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		trade.ID, trade.Pair, trade.OrderTakerID, trade.OrderMakerID, trade.PoolFill,
		trade.TakerSide, trade.Quantity, trade.Price, trade.Sequence,
		trade.SettlementStatus, trade.TradedAt)
	return err
}

func (r *orderRepositoryImpl) UpdateTradeSettlement(ctx context.Context, tx *sqlx.Tx, tradeID string, status int8) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE trades SET settlement_status=$1 WHERE id=$2`,
		status, tradeID)
	return err
}

func (r *orderRepositoryImpl) ListTradesByPair(ctx context.Context, tx *sqlx.Tx, pair string, limit int) ([]TradeRecord, error) {
	var trades []TradeRecord
	err := tx.SelectContext(ctx, &trades,
		`SELECT id, pair, order_taker_id, order_maker_id, pool_fill, taker_side, quantity, price, sequence, settlement_status, traded_at
         FROM trades WHERE pair=$1 ORDER BY traded_at DESC LIMIT $2`, pair, limit)
	return trades, err
}

func (r *orderRepositoryImpl) ListTradesByPairSince(ctx context.Context, tx *sqlx.Tx, pair string, since time.Time) ([]TradeRecord, error) {
	var trades []TradeRecord
	err := tx.SelectContext(ctx, &trades,
		`SELECT id, pair, order_taker_id, order_maker_id, pool_fill, taker_side, quantity, price, sequence, settlement_status, traded_at
         FROM trades WHERE pair=$1 AND traded_at >= $2 ORDER BY traded_at ASC`, pair, since)
	return trades, err
}

func (r *orderRepositoryImpl) ListUnsettledTrades(ctx context.Context, tx *sqlx.Tx, limit int) ([]TradeRecord, error) {
	var trades []TradeRecord
	err := tx.SelectContext(ctx, &trades,
		`SELECT id, pair, order_taker_id, order_maker_id, pool_fill, taker_side, quantity, price, sequence, settlement_status, traded_at
         FROM trades WHERE settlement_status=0 ORDER BY traded_at ASC LIMIT $1`, limit)
	return trades, err
}
