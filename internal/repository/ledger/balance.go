package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/Yusufzhafir/go-dex/backend/pkg/util"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
	"go.uber.org/zap"
)

// Transfer codes recorded on the TigerBeetle ledger.
const (
	codeReserve uint16 = 1001
	codeRelease uint16 = 2001
	codeSettle  uint16 = 3001
	codeDeposit uint16 = 1005
)

// BalanceLedger is the balance collaborator the matching core calls out
// to: availability checks before accepting an order, escrow reservation,
// release on cancel, and per-trade settlement transfers. Every operation
// may fail and is safe to retry; settlement is idempotent per trade id.
type BalanceLedger interface {
	EnsureSessionAccounts(ctx context.Context, sessionID string) error
	Available(ctx context.Context, sessionID, asset string) (decimal.Decimal, error)
	CheckAvailable(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error
	Reserve(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error
	Release(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error
	Deposit(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error
	Transfer(ctx context.Context, fromSessionID, toSessionID, asset string, amount decimal.Decimal) error

	// ApplySettlement posts the double-entry transfers for one trade:
	// escrowed quote to the seller, escrowed base to the buyer, linked so
	// both land or neither does. Transfer ids derive from the trade id,
	// so a retried settlement is accepted exactly once.
	ApplySettlement(ctx context.Context, trade *model.Trade, pair model.TradingPair) error

	// ApplySwap settles a pool fill without escrow: the taker's input
	// asset moves to the pool account and the pool's output asset moves
	// to the taker, as one linked batch. Same deterministic-id scheme as
	// ApplySettlement.
	ApplySwap(ctx context.Context, trade *model.Trade, pair model.TradingPair, poolSessionID string) error
}

type balanceLedgerImpl struct {
	tbClient *tb.Client
	repo     LedgerRepository
	db       *sqlx.DB
	logger   *zap.Logger
}

type BalanceLedgerOpts struct {
	TbClient *tb.Client
	Repo     LedgerRepository
	Db       *sqlx.DB
	Logger   *zap.Logger
}

func NewBalanceLedger(opts BalanceLedgerOpts) BalanceLedger {
	return &balanceLedgerImpl{
		tbClient: opts.TbClient,
		repo:     opts.Repo,
		db:       opts.Db,
		logger:   opts.Logger,
	}
}

func (bl *balanceLedgerImpl) EnsureSessionAccounts(ctx context.Context, sessionID string) error {
	tx, err := bl.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	assets, err := bl.repo.ListAssets(ctx, tx)
	if err != nil {
		return err
	}

	tbAccounts := make([]tbTypes.Account, 0, len(assets))
	for _, asset := range assets {
		if _, err := bl.repo.GetSessionAccount(ctx, tx, sessionID, asset.ID); err == nil {
			continue
		}
		accountID := tbTypes.ID()
		accountBigInt := accountID.BigInt()
		tbAccounts = append(tbAccounts, tbTypes.Account{
			ID:     accountID,
			Ledger: uint32(asset.TBLedgerID),
			Code:   1,
			Flags:  tbTypes.AccountFlags{DebitsMustNotExceedCredits: true, History: true}.ToUint16(),
		})
		if _, err := bl.repo.CreateSessionAccount(ctx, tx, sessionID, asset.ID, &accountBigInt); err != nil {
			return err
		}
	}
	if len(tbAccounts) == 0 {
		return tx.Commit()
	}

	results, err := (*bl.tbClient).CreateAccounts(tbAccounts)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Result != tbTypes.AccountExists {
			return fmt.Errorf("account create failed at %d: %s", res.Index, res.Result)
		}
	}
	return tx.Commit()
}

func (bl *balanceLedgerImpl) accounts(ctx context.Context, tx *sqlx.Tx, sessionID, asset string) (session tbTypes.Uint128, escrow tbTypes.Uint128, ledgerID uint32, err error) {
	assetRec, err := bl.repo.GetAssetBySymbol(ctx, tx, asset)
	if err != nil {
		return session, escrow, 0, err
	}
	acct, err := bl.repo.GetSessionAccount(ctx, tx, sessionID, assetRec.ID)
	if err != nil {
		return session, escrow, 0, err
	}
	session, err = util.StringToUint128(acct.TBAccountID)
	if err != nil {
		return session, escrow, 0, err
	}
	escrow, err = util.StringToUint128(assetRec.EscrowAccountID)
	if err != nil {
		return session, escrow, 0, err
	}
	return session, escrow, uint32(assetRec.TBLedgerID), nil
}

func (bl *balanceLedgerImpl) Available(ctx context.Context, sessionID, asset string) (decimal.Decimal, error) {
	tx, err := bl.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	acctID, _, _, err := bl.accounts(ctx, tx, sessionID, asset)
	if err != nil {
		return decimal.Zero, err
	}
	tbAccounts, err := (*bl.tbClient).LookupAccounts([]tbTypes.Uint128{acctID})
	if err != nil {
		return decimal.Zero, err
	}
	if len(tbAccounts) == 0 {
		return decimal.Zero, model.ErrInsufficientBalance
	}
	credits := tbAccounts[0].CreditsPosted.BigInt()
	debits := tbAccounts[0].DebitsPosted.BigInt()
	available := new(big.Int).Sub(&credits, &debits)
	return decimal.NewFromBigInt(available, 0), nil
}

func (bl *balanceLedgerImpl) CheckAvailable(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error {
	available, err := bl.Available(ctx, sessionID, asset)
	if err != nil {
		return err
	}
	if available.LessThan(amount) {
		return model.ErrInsufficientBalance
	}
	return nil
}

func (bl *balanceLedgerImpl) transfer(id tbTypes.Uint128, debit, credit tbTypes.Uint128, amount decimal.Decimal, ledger uint32, code uint16, linked bool) tbTypes.Transfer {
	flags := tbTypes.TransferFlags{Linked: linked}.ToUint16()
	return tbTypes.Transfer{
		ID:              id,
		DebitAccountID:  debit,
		CreditAccountID: credit,
		Amount:          tbTypes.BigIntToUint128(*amount.BigInt()),
		Ledger:          ledger,
		Code:            code,
		Flags:           flags,
	}
}

func (bl *balanceLedgerImpl) submit(transfers []tbTypes.Transfer) error {
	results, err := (*bl.tbClient).CreateTransfers(transfers)
	if err != nil {
		return err
	}
	for _, res := range results {
		// a retried settlement resubmits the same deterministic ids
		if res.Result == tbTypes.TransferExists {
			continue
		}
		return fmt.Errorf("transfer failed at %d: %s", res.Index, res.Result)
	}
	return nil
}

func (bl *balanceLedgerImpl) move(ctx context.Context, sessionID, asset string, amount decimal.Decimal, code uint16, toEscrow bool) error {
	tx, err := bl.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	acct, escrow, ledgerID, err := bl.accounts(ctx, tx, sessionID, asset)
	if err != nil {
		return err
	}
	debit, credit := acct, escrow
	if !toEscrow {
		debit, credit = escrow, acct
	}
	return bl.submit([]tbTypes.Transfer{
		bl.transfer(tbTypes.ID(), debit, credit, amount, ledgerID, code, false),
	})
}

func (bl *balanceLedgerImpl) Reserve(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error {
	return bl.move(ctx, sessionID, asset, amount, codeReserve, true)
}

func (bl *balanceLedgerImpl) Release(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error {
	return bl.move(ctx, sessionID, asset, amount, codeRelease, false)
}

func (bl *balanceLedgerImpl) Deposit(ctx context.Context, sessionID, asset string, amount decimal.Decimal) error {
	return bl.move(ctx, sessionID, asset, amount, codeDeposit, false)
}

func (bl *balanceLedgerImpl) Transfer(ctx context.Context, fromSessionID, toSessionID, asset string, amount decimal.Decimal) error {
	tx, err := bl.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	from, _, ledgerID, err := bl.accounts(ctx, tx, fromSessionID, asset)
	if err != nil {
		return err
	}
	to, _, _, err := bl.accounts(ctx, tx, toSessionID, asset)
	if err != nil {
		return err
	}
	return bl.submit([]tbTypes.Transfer{
		bl.transfer(tbTypes.ID(), from, to, amount, ledgerID, codeDeposit, false),
	})
}

// settlementTransferIDs derives the two transfer ids from the trade id.
// Deterministic ids make retries idempotent: TigerBeetle rejects the
// duplicate with TransferExists, which submit treats as success.
func settlementTransferIDs(tradeID uuid.UUID) (tbTypes.Uint128, tbTypes.Uint128) {
	first := new(big.Int).SetBytes(tradeID[:])
	second := tradeID
	second[15] ^= 1
	return tbTypes.BigIntToUint128(*first), tbTypes.BigIntToUint128(*new(big.Int).SetBytes(second[:]))
}

func (bl *balanceLedgerImpl) ApplySettlement(ctx context.Context, trade *model.Trade, pair model.TradingPair) error {
	tx, err := bl.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	buyerSession, sellerSession := trade.TakerSession, trade.MakerSession
	if trade.TakerSide == model.ASK {
		buyerSession, sellerSession = trade.MakerSession, trade.TakerSession
	}

	buyerBase, baseEscrow, baseLedger, err := bl.accounts(ctx, tx, buyerSession, pair.Base)
	if err != nil {
		return fmt.Errorf("%w: buyer base account: %v", model.ErrSettlementFailed, err)
	}
	sellerQuote, quoteEscrow, quoteLedger, err := bl.accounts(ctx, tx, sellerSession, pair.Quote)
	if err != nil {
		return fmt.Errorf("%w: seller quote account: %v", model.ErrSettlementFailed, err)
	}

	baseAmount := decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(trade.Quantity)), 0)
	quoteAmount := trade.Notional()

	id1, id2 := settlementTransferIDs(trade.ID)
	transfers := []tbTypes.Transfer{
		bl.transfer(id1, quoteEscrow, sellerQuote, quoteAmount, quoteLedger, codeSettle, true),
		bl.transfer(id2, baseEscrow, buyerBase, baseAmount, baseLedger, codeSettle, false),
	}
	if err := bl.submit(transfers); err != nil {
		bl.logger.Error("settlement transfers failed",
			zap.String("tradeId", trade.ID.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", model.ErrSettlementFailed, err)
	}
	return nil
}

func (bl *balanceLedgerImpl) ApplySwap(ctx context.Context, trade *model.Trade, pair model.TradingPair, poolSessionID string) error {
	tx, err := bl.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	takerBase, _, baseLedger, err := bl.accounts(ctx, tx, trade.TakerSession, pair.Base)
	if err != nil {
		return fmt.Errorf("%w: taker base account: %v", model.ErrSettlementFailed, err)
	}
	takerQuote, _, quoteLedger, err := bl.accounts(ctx, tx, trade.TakerSession, pair.Quote)
	if err != nil {
		return fmt.Errorf("%w: taker quote account: %v", model.ErrSettlementFailed, err)
	}
	poolBase, _, _, err := bl.accounts(ctx, tx, poolSessionID, pair.Base)
	if err != nil {
		return fmt.Errorf("%w: pool base account: %v", model.ErrSettlementFailed, err)
	}
	poolQuote, _, _, err := bl.accounts(ctx, tx, poolSessionID, pair.Quote)
	if err != nil {
		return fmt.Errorf("%w: pool quote account: %v", model.ErrSettlementFailed, err)
	}

	baseAmount := decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(trade.Quantity)), 0)
	quoteAmount := trade.Notional()

	id1, id2 := settlementTransferIDs(trade.ID)
	var transfers []tbTypes.Transfer
	if trade.TakerSide == model.BID {
		transfers = []tbTypes.Transfer{
			bl.transfer(id1, takerQuote, poolQuote, quoteAmount, quoteLedger, codeSettle, true),
			bl.transfer(id2, poolBase, takerBase, baseAmount, baseLedger, codeSettle, false),
		}
	} else {
		transfers = []tbTypes.Transfer{
			bl.transfer(id1, takerBase, poolBase, baseAmount, baseLedger, codeSettle, true),
			bl.transfer(id2, poolQuote, takerQuote, quoteAmount, quoteLedger, codeSettle, false),
		}
	}
	if err := bl.submit(transfers); err != nil {
		bl.logger.Error("swap settlement failed",
			zap.String("tradeId", trade.ID.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", model.ErrSettlementFailed, err)
	}
	return nil
}
