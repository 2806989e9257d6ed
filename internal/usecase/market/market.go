package market

import (
	"context"
	"sort"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/engine"
	orderRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/order"
	pairRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/pair"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PublicTrade is the redacted trade view served to everyone: no order
// ids, no sides, no sessions.
type PublicTrade struct {
	ID       string         `json:"id"`
	Pair     string         `json:"pair"`
	Price    model.Price    `json:"price"`
	Quantity model.Quantity `json:"quantity"`
	TradedAt time.Time      `json:"tradedAt"`
}

type PairStats struct {
	Pair        string          `json:"pair"`
	LastPrice   model.Price     `json:"lastPrice"`
	High24h     model.Price     `json:"high24h"`
	Low24h      model.Price     `json:"low24h"`
	VolumeBase  decimal.Decimal `json:"volumeBase"`
	VolumeQuote decimal.Decimal `json:"volumeQuote"`
	TradeCount  int             `json:"tradeCount"`
}

type Candle struct {
	OpenTime time.Time      `json:"openTime"`
	Open     model.Price    `json:"open"`
	High     model.Price    `json:"high"`
	Low      model.Price    `json:"low"`
	Close    model.Price    `json:"close"`
	Volume   model.Quantity `json:"volume"`
}

type MarketUseCase interface {
	Pairs(ctx context.Context) []model.TradingPair
	Depth(ctx context.Context, symbol string, levels int) (*model.MarketDepth, error)
	TopOfBook(ctx context.Context, symbol string) (*model.TopOfBook, error)
	RecentTrades(ctx context.Context, symbol string, limit int) ([]PublicTrade, error)
	Stats(ctx context.Context, symbol string) (*PairStats, error)
	Candles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]Candle, error)

	// SetPairStatus halts or resumes trading on a pair, in the engine and
	// in the pair registry together.
	SetPairStatus(ctx context.Context, symbol string, status model.PairStatus) error
}

type marketUseCaseImpl struct {
	engine    engine.OrderBookEngine
	orderRepo orderRepository.OrderRepository
	pairRepo  pairRepository.PairRepository
	db        *sqlx.DB
	logger    *zap.Logger
}

type MarketUseCaseOpts struct {
	Engine    engine.OrderBookEngine
	OrderRepo orderRepository.OrderRepository
	PairRepo  pairRepository.PairRepository
	Db        *sqlx.DB
	Logger    *zap.Logger
}

func NewMarketUseCase(opts MarketUseCaseOpts) MarketUseCase {
	return &marketUseCaseImpl{
		engine:    opts.Engine,
		orderRepo: opts.OrderRepo,
		pairRepo:  opts.PairRepo,
		db:        opts.Db,
		logger:    opts.Logger,
	}
}

func (mu *marketUseCaseImpl) Pairs(ctx context.Context) []model.TradingPair {
	return mu.engine.Pairs()
}

func (mu *marketUseCaseImpl) SetPairStatus(ctx context.Context, symbol string, status model.PairStatus) error {
	if err := mu.engine.SetPairStatus(symbol, status); err != nil {
		return err
	}
	tx, err := mu.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := mu.pairRepo.UpdatePairStatus(ctx, tx, symbol, int8(status)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	mu.logger.Info("pair status updated",
		zap.String("pair", symbol),
		zap.String("status", status.String()))
	return nil
}

func (mu *marketUseCaseImpl) Depth(ctx context.Context, symbol string, levels int) (*model.MarketDepth, error) {
	return mu.engine.Depth(symbol, levels)
}

func (mu *marketUseCaseImpl) TopOfBook(ctx context.Context, symbol string) (*model.TopOfBook, error) {
	return mu.engine.TopOfBook(symbol)
}

func (mu *marketUseCaseImpl) RecentTrades(ctx context.Context, symbol string, limit int) ([]PublicTrade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	tx, err := mu.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	records, err := mu.orderRepo.ListTradesByPair(ctx, tx, symbol, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PublicTrade, 0, len(records))
	for _, rec := range records {
		out = append(out, PublicTrade{
			ID:       rec.ID,
			Pair:     rec.Pair,
			Price:    model.Price(rec.Price),
			Quantity: model.Quantity(rec.Quantity),
			TradedAt: rec.TradedAt,
		})
	}
	return out, nil
}

func (mu *marketUseCaseImpl) Stats(ctx context.Context, symbol string) (*PairStats, error) {
	tx, err := mu.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	since := time.Now().Add(-24 * time.Hour)
	records, err := mu.orderRepo.ListTradesByPairSince(ctx, tx, symbol, since)
	if err != nil {
		return nil, err
	}

	stats := &PairStats{Pair: symbol, VolumeBase: decimal.Zero, VolumeQuote: decimal.Zero}
	for _, rec := range records {
		price := model.Price(rec.Price)
		if stats.TradeCount == 0 {
			stats.High24h, stats.Low24h = price, price
		}
		if price > stats.High24h {
			stats.High24h = price
		}
		if price < stats.Low24h {
			stats.Low24h = price
		}
		stats.LastPrice = price
		stats.VolumeBase = stats.VolumeBase.Add(decimal.NewFromUint64(rec.Quantity))
		stats.VolumeQuote = stats.VolumeQuote.Add(decimal.NewFromUint64(rec.Quantity).Mul(decimal.NewFromUint64(rec.Price)))
		stats.TradeCount++
	}
	return stats, nil
}

func (mu *marketUseCaseImpl) Candles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]Candle, error) {
	if interval < time.Minute {
		interval = time.Minute
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	tx, err := mu.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	since := time.Now().Add(-time.Duration(limit) * interval)
	records, err := mu.orderRepo.ListTradesByPairSince(ctx, tx, symbol, since)
	if err != nil {
		return nil, err
	}

	buckets := make(map[int64]*Candle)
	for _, rec := range records {
		key := rec.TradedAt.Truncate(interval).Unix()
		price := model.Price(rec.Price)
		c, ok := buckets[key]
		if !ok {
			buckets[key] = &Candle{
				OpenTime: rec.TradedAt.Truncate(interval),
				Open:     price,
				High:     price,
				Low:      price,
				Close:    price,
				Volume:   model.Quantity(rec.Quantity),
			}
			continue
		}
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.Volume += model.Quantity(rec.Quantity)
	}

	out := make([]Candle, 0, len(buckets))
	for _, c := range buckets {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
