package liquidity

import (
	"context"
	"sync"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/amm"
	"github.com/Yusufzhafir/go-dex/backend/internal/engine"
	ledgerRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/ledger"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/trading"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LiquidityPosition tracks one session's share of a pool.
type LiquidityPosition struct {
	Pair      string          `json:"pair"`
	Tokens    decimal.Decimal `json:"tokens"`
	Share     decimal.Decimal `json:"share"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type LiquidityUseCase interface {
	CreatePool(ctx context.Context, sessionID, symbol string, amountBase, amountQuote decimal.Decimal) (*amm.PoolInfo, error)
	AddLiquidity(ctx context.Context, sessionID, symbol string, amountBase, amountQuote decimal.Decimal) (*LiquidityPosition, error)
	RemoveLiquidity(ctx context.Context, sessionID, symbol string, tokens decimal.Decimal) (base, quote decimal.Decimal, err error)
	Positions(ctx context.Context, sessionID string) []LiquidityPosition
	PoolInfo(ctx context.Context, symbol string) (*amm.PoolInfo, error)
}

type liquidityUseCaseImpl struct {
	engine   engine.OrderBookEngine
	balances ledgerRepository.BalanceLedger
	trading  trading.TradingUseCase
	logger   *zap.Logger

	mu           sync.Mutex
	poolSessions map[string]string
	positions    map[string]map[string]decimal.Decimal // symbol -> session -> tokens
}

type LiquidityUseCaseOpts struct {
	Engine   engine.OrderBookEngine
	Balances ledgerRepository.BalanceLedger
	Trading  trading.TradingUseCase
	Logger   *zap.Logger
}

func NewLiquidityUseCase(opts LiquidityUseCaseOpts) LiquidityUseCase {
	return &liquidityUseCaseImpl{
		engine:       opts.Engine,
		balances:     opts.Balances,
		trading:      opts.Trading,
		logger:       opts.Logger,
		poolSessions: make(map[string]string),
		positions:    make(map[string]map[string]decimal.Decimal),
	}
}

func (lu *liquidityUseCaseImpl) pairFor(symbol string) (model.TradingPair, error) {
	for _, p := range lu.engine.Pairs() {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return model.TradingPair{}, model.ErrPairNotFound
}

func (lu *liquidityUseCaseImpl) CreatePool(ctx context.Context, sessionID, symbol string, amountBase, amountQuote decimal.Decimal) (*amm.PoolInfo, error) {
	pair, err := lu.pairFor(symbol)
	if err != nil {
		return nil, err
	}
	if pool, _ := lu.engine.Pool(symbol); pool != nil {
		return nil, model.ErrPoolExists
	}
	if err := lu.balances.CheckAvailable(ctx, sessionID, pair.Base, amountBase); err != nil {
		return nil, err
	}
	if err := lu.balances.CheckAvailable(ctx, sessionID, pair.Quote, amountQuote); err != nil {
		return nil, err
	}

	// The pool holds its reserves in its own ledger account set, funded
	// by the creator's initial deposit.
	poolSessionID := uuid.NewString()
	if err := lu.balances.EnsureSessionAccounts(ctx, poolSessionID); err != nil {
		return nil, err
	}
	if err := lu.balances.Transfer(ctx, sessionID, poolSessionID, pair.Base, amountBase); err != nil {
		return nil, err
	}
	if err := lu.balances.Transfer(ctx, sessionID, poolSessionID, pair.Quote, amountQuote); err != nil {
		return nil, err
	}

	pool := amm.NewPool(symbol, amountBase, amountQuote)
	if err := lu.engine.AttachPool(symbol, pool); err != nil {
		return nil, err
	}
	lu.trading.RegisterPoolSession(symbol, poolSessionID)

	info := pool.Info()
	lu.mu.Lock()
	lu.poolSessions[symbol] = poolSessionID
	lu.positions[symbol] = map[string]decimal.Decimal{sessionID: info.TotalLiquidity}
	lu.mu.Unlock()

	lu.logger.Info("pool created",
		zap.String("pair", symbol),
		zap.String("poolId", info.ID.String()))
	return &info, nil
}

func (lu *liquidityUseCaseImpl) AddLiquidity(ctx context.Context, sessionID, symbol string, amountBase, amountQuote decimal.Decimal) (*LiquidityPosition, error) {
	pair, err := lu.pairFor(symbol)
	if err != nil {
		return nil, err
	}
	pool, err := lu.engine.Pool(symbol)
	if err != nil {
		return nil, err
	}
	if err := lu.balances.CheckAvailable(ctx, sessionID, pair.Base, amountBase); err != nil {
		return nil, err
	}
	if err := lu.balances.CheckAvailable(ctx, sessionID, pair.Quote, amountQuote); err != nil {
		return nil, err
	}

	lu.mu.Lock()
	poolSessionID := lu.poolSessions[symbol]
	lu.mu.Unlock()

	if err := lu.balances.Transfer(ctx, sessionID, poolSessionID, pair.Base, amountBase); err != nil {
		return nil, err
	}
	if err := lu.balances.Transfer(ctx, sessionID, poolSessionID, pair.Quote, amountQuote); err != nil {
		return nil, err
	}

	minted, err := pool.AddLiquidity(amountBase, amountQuote)
	if err != nil {
		// deposit moved but the mint was rejected, give it back
		if rb := lu.balances.Transfer(ctx, poolSessionID, sessionID, pair.Base, amountBase); rb != nil {
			lu.logger.Error("deposit rollback failed", zap.String("pair", symbol), zap.Error(rb))
		}
		if rb := lu.balances.Transfer(ctx, poolSessionID, sessionID, pair.Quote, amountQuote); rb != nil {
			lu.logger.Error("deposit rollback failed", zap.String("pair", symbol), zap.Error(rb))
		}
		return nil, err
	}

	lu.mu.Lock()
	if lu.positions[symbol] == nil {
		lu.positions[symbol] = make(map[string]decimal.Decimal)
	}
	lu.positions[symbol][sessionID] = lu.positions[symbol][sessionID].Add(minted)
	tokens := lu.positions[symbol][sessionID]
	lu.mu.Unlock()

	info := pool.Info()
	return &LiquidityPosition{
		Pair:      symbol,
		Tokens:    tokens,
		Share:     shareOf(tokens, info.TotalLiquidity),
		UpdatedAt: time.Now(),
	}, nil
}

func (lu *liquidityUseCaseImpl) RemoveLiquidity(ctx context.Context, sessionID, symbol string, tokens decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	pair, err := lu.pairFor(symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	pool, err := lu.engine.Pool(symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	lu.mu.Lock()
	held := lu.positions[symbol][sessionID]
	poolSessionID := lu.poolSessions[symbol]
	lu.mu.Unlock()
	if held.LessThan(tokens) || !tokens.IsPositive() {
		return decimal.Zero, decimal.Zero, model.ErrInsufficientPoolTokens
	}

	base, quote, err := pool.RemoveLiquidity(tokens)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if err := lu.balances.Transfer(ctx, poolSessionID, sessionID, pair.Base, base); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if err := lu.balances.Transfer(ctx, poolSessionID, sessionID, pair.Quote, quote); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	lu.mu.Lock()
	lu.positions[symbol][sessionID] = held.Sub(tokens)
	lu.mu.Unlock()

	return base, quote, nil
}

func (lu *liquidityUseCaseImpl) Positions(ctx context.Context, sessionID string) []LiquidityPosition {
	lu.mu.Lock()
	defer lu.mu.Unlock()

	out := make([]LiquidityPosition, 0)
	for symbol, holders := range lu.positions {
		tokens, ok := holders[sessionID]
		if !ok || !tokens.IsPositive() {
			continue
		}
		total := decimal.Zero
		if pool, err := lu.engine.Pool(symbol); err == nil && pool != nil {
			total = pool.Info().TotalLiquidity
		}
		out = append(out, LiquidityPosition{
			Pair:      symbol,
			Tokens:    tokens,
			Share:     shareOf(tokens, total),
			UpdatedAt: time.Now(),
		})
	}
	return out
}

func (lu *liquidityUseCaseImpl) PoolInfo(ctx context.Context, symbol string) (*amm.PoolInfo, error) {
	pool, err := lu.engine.Pool(symbol)
	if err != nil {
		return nil, err
	}
	info := pool.Info()
	return &info, nil
}

func shareOf(tokens, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return tokens.Div(total)
}
