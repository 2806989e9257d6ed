package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/engine"
	ledgerRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/ledger"
	orderRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/order"
	pairRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/pair"
	"github.com/Yusufzhafir/go-dex/backend/internal/router"
	"github.com/Yusufzhafir/go-dex/backend/internal/router/middleware"
	"github.com/Yusufzhafir/go-dex/backend/internal/session"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/liquidity"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/market"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/trading"
	"github.com/Yusufzhafir/go-dex/backend/internal/websocket"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

func loadPairs(ctx context.Context, db *sqlx.DB, repo pairRepository.PairRepository, eng engine.OrderBookEngine) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pairs, err := repo.ListPairs(ctx, tx)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		err := eng.RegisterPair(model.TradingPair{
			Symbol:   p.Symbol,
			Base:     p.Base,
			Quote:    p.Quote,
			TickSize: model.Price(p.TickSize),
			LotSize:  model.Quantity(p.LotSize),
			Status:   model.PairStatus(p.Status),
		})
		if err != nil {
			return fmt.Errorf("registering %s: %w", p.Symbol, err)
		}
	}
	return nil
}

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Fatal("error loading .env file", zap.Error(err))
	}

	tbAddress := os.Getenv("TB_ADDRESS")
	if tbAddress == "" {
		tbAddress = "3001"
	}
	tbClusterID, err := strconv.ParseUint(os.Getenv("TB_CLUSTER_ID"), 0, 64)
	if err != nil {
		tbClusterID = 1
	}
	tbClient, err := tb.NewClient(tbTypes.ToUint128(tbClusterID), []string{tbAddress})
	if err != nil {
		logger.Fatal("tigerbeetle client init", zap.Error(err))
	}

	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	jwtSecret := os.Getenv("JWT_SECRET")
	hashSalt := os.Getenv("SESSION_HASH_SALT")

	pgInfo := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		dbUser, dbPass, dbHost, dbPort, dbName,
	)
	db, err := sqlx.Connect("postgres", pgInfo)
	if err != nil {
		logger.Fatal("error connecting postgres", zap.Error(err))
	}

	hub := websocket.NewHub(logger)
	go hub.Run(rootCtx)

	orderBookEngine := engine.NewOrderBookEngine(logger)
	sessions := session.NewRegistry(hashSalt, logger)

	orderRepo := orderRepository.NewOrderRepository(db)
	pairRepo := pairRepository.NewPairRepository(db)
	ledgerRepo := ledgerRepository.NewLedgerRepository(db)
	balances := ledgerRepository.NewBalanceLedger(ledgerRepository.BalanceLedgerOpts{
		TbClient: &tbClient,
		Repo:     ledgerRepo,
		Db:       db,
		Logger:   logger,
	})

	if err := loadPairs(rootCtx, db, pairRepo, orderBookEngine); err != nil {
		logger.Fatal("loading trading pairs", zap.Error(err))
	}

	tradingUseCase := trading.NewTradingUseCase(trading.TradingUseCaseOpts{
		Engine:    orderBookEngine,
		Balances:  balances,
		OrderRepo: orderRepo,
		Publisher: hub,
		Db:        db,
		Logger:    logger,
	})
	liquidityUseCase := liquidity.NewLiquidityUseCase(liquidity.LiquidityUseCaseOpts{
		Engine:   orderBookEngine,
		Balances: balances,
		Trading:  tradingUseCase,
		Logger:   logger,
	})
	marketUseCase := market.NewMarketUseCase(market.MarketUseCaseOpts{
		Engine:    orderBookEngine,
		OrderRepo: orderRepo,
		PairRepo:  pairRepo,
		Db:        db,
		Logger:    logger,
	})
	tokenMaker := middleware.NewJWTMaker(jwtSecret)

	serveMux := http.NewServeMux()
	router.BindRouter(router.BindRouterOpts{
		ServerRouter: serveMux,
		Engine:       orderBookEngine,
		Trading:      tradingUseCase,
		Liquidity:    liquidityUseCase,
		Market:       marketUseCase,
		Sessions:     sessions,
		Balances:     balances,
		TokenMaker:   tokenMaker,
		Hub:          hub,
		Logger:       logger,
	})
	logger.Info("finished binding router")

	// expired-session sweep and settlement retry loops
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if n := sessions.CleanupExpired(); n > 0 {
					logger.Info("expired sessions dropped", zap.Int("count", n))
				}
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if err := tradingUseCase.RetrySettlements(rootCtx); err != nil {
					logger.Warn("settlement retry pass", zap.Error(err))
				}
			}
		}
	}()

	server := http.Server{
		Addr:    ":8080",
		Handler: router.Cors(serveMux),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed, forcing close", zap.Error(err))
		_ = server.Close()
	}

	logger.Info("server stopped")
}
