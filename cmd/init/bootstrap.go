package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	ledgerRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/ledger"
	pairRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/pair"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

type assetInit struct {
	Symbol   string
	LedgerID int64
}

type pairInit struct {
	Symbol   string
	Base     string
	Quote    string
	TickSize uint64
	LotSize  uint64
}

// Seeds the asset registry, one escrow account per asset on the
// transfer ledger, and the tradable pairs. Run once against a fresh
// database and TigerBeetle cluster.
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

	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	pgInfo := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		dbUser, dbPass, dbHost, dbPort, dbName,
	)
	db, err := sqlx.Connect("postgres", pgInfo)
	if err != nil {
		logger.Fatal("error connecting postgres", zap.Error(err))
	}

	tbAddress := os.Getenv("TB_ADDRESS")
	if tbAddress == "" {
		tbAddress = "3001"
	}
	tbClusterID, err := strconv.ParseUint(os.Getenv("TB_CLUSTER_ID"), 0, 64)
	if err != nil {
		tbClusterID = 1
	}
	client, err := tb.NewClient(tbTypes.ToUint128(tbClusterID), []string{tbAddress})
	if err != nil {
		logger.Fatal("error connecting tigerbeetle", zap.Error(err))
	}

	assets := []assetInit{
		{Symbol: "USDC", LedgerID: 10},
		{Symbol: "BTC", LedgerID: 20},
		{Symbol: "ETH", LedgerID: 30},
	}
	pairs := []pairInit{
		{Symbol: "BTC-USDC", Base: "BTC", Quote: "USDC", TickSize: 100, LotSize: 10},
		{Symbol: "ETH-USDC", Base: "ETH", Quote: "USDC", TickSize: 10, LotSize: 100},
	}

	ledgerRepo := ledgerRepository.NewLedgerRepository(db)
	pairRepo := pairRepository.NewPairRepository(db)
	rootTx := db.MustBeginTx(rootCtx, nil)
	defer rootTx.Rollback()

	escrowAccounts := make([]tbTypes.Account, 0, len(assets))
	for i, asset := range assets {
		escrowAccountID := tbTypes.ID()
		accountID := escrowAccountID.BigInt()
		_, err := ledgerRepo.CreateAsset(rootCtx, rootTx, asset.Symbol, asset.LedgerID, accountID.String())
		if err != nil {
			logger.Fatal("error creating asset", zap.String("symbol", asset.Symbol), zap.Error(err))
		}
		escrowAccounts = append(escrowAccounts, tbTypes.Account{
			ID:     escrowAccountID,
			Code:   1001,
			Ledger: uint32(asset.LedgerID),
			Flags: tbTypes.AccountFlags{
				Linked:                     i < len(assets)-1,
				CreditsMustNotExceedDebits: true,
				History:                    true,
			}.ToUint16(),
		})
	}

	results, err := client.CreateAccounts(escrowAccounts)
	if err != nil {
		logger.Fatal("error creating escrow accounts", zap.Error(err))
	}
	for _, res := range results {
		if res.Result != tbTypes.AccountExists {
			logger.Fatal("escrow account rejected",
				zap.Uint32("index", res.Index),
				zap.String("result", res.Result.String()))
		}
	}

	for _, p := range pairs {
		_, err := pairRepo.CreatePair(rootCtx, rootTx, pairRepository.PairRecord{
			Symbol:   p.Symbol,
			Base:     p.Base,
			Quote:    p.Quote,
			TickSize: p.TickSize,
			LotSize:  p.LotSize,
			Status:   0,
		})
		if err != nil {
			logger.Fatal("error creating pair", zap.String("symbol", p.Symbol), zap.Error(err))
		}
	}

	if err := rootTx.Commit(); err != nil {
		logger.Fatal("commit failed", zap.Error(err))
	}
	logger.Info("bootstrap complete",
		zap.Int("assets", len(assets)),
		zap.Int("pairs", len(pairs)))
}
