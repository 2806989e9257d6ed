package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
)

// Asset maps one traded asset symbol to its TigerBeetle ledger and the
// escrow account holding reserved funds for open orders.
type Asset struct {
	ID              int64     `db:"id"`
	Symbol          string    `db:"symbol"`
	TBLedgerID      int64     `db:"tb_ledger_id"`
	EscrowAccountID string    `db:"escrow_account_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// SessionAccount maps a pseudonymous session to its TigerBeetle account
// for one asset. No wallet or user linkage is stored here.
type SessionAccount struct {
	ID          int64     `db:"id"`
	SessionID   string    `db:"session_id"`
	AssetID     int64     `db:"asset_id"`
	TBAccountID string    `db:"tb_account_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type LedgerRepository interface {
	CreateAsset(ctx context.Context, tx *sqlx.Tx, symbol string, tbLedgerID int64, escrowAccountID string) (int64, error)
	GetAssetByID(ctx context.Context, tx *sqlx.Tx, id int64) (*Asset, error)
	GetAssetBySymbol(ctx context.Context, tx *sqlx.Tx, symbol string) (*Asset, error)
	ListAssets(ctx context.Context, tx *sqlx.Tx) ([]Asset, error)

	CreateSessionAccount(ctx context.Context, tx *sqlx.Tx, sessionID string, assetID int64, tbAccountID *big.Int) (int64, error)
	GetSessionAccount(ctx context.Context, tx *sqlx.Tx, sessionID string, assetID int64) (*SessionAccount, error)
	ListSessionAccounts(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]SessionAccount, error)
}

type ledgerRepositoryImpl struct{}

func NewLedgerRepository(db *sqlx.DB) LedgerRepository {
	return &ledgerRepositoryImpl{}
}

func (r *ledgerRepositoryImpl) CreateAsset(ctx context.Context, tx *sqlx.Tx, symbol string, tbLedgerID int64, escrowAccountID string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO assets (symbol, tb_ledger_id, escrow_account_id) VALUES ($1, $2, $3) RETURNING id`,
		symbol, tbLedgerID, escrowAccountID,
	).Scan(&id)
	return id, err
}

func (r *ledgerRepositoryImpl) GetAssetByID(ctx context.Context, tx *sqlx.Tx, id int64) (*Asset, error) {
	var a Asset
	err := tx.GetContext(ctx, &a,
		`SELECT id, symbol, tb_ledger_id, escrow_account_id, created_at FROM assets WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ledgerRepositoryImpl) GetAssetBySymbol(ctx context.Context, tx *sqlx.Tx, symbol string) (*Asset, error) {
	var a Asset
	err := tx.GetContext(ctx, &a,
		`SELECT id, symbol, tb_ledger_id, escrow_account_id, created_at FROM assets WHERE symbol=$1`, symbol)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ledgerRepositoryImpl) ListAssets(ctx context.Context, tx *sqlx.Tx) ([]Asset, error) {
	var list []Asset
	err := tx.SelectContext(ctx, &list,
		`SELECT id, symbol, tb_ledger_id, escrow_account_id, created_at FROM assets ORDER BY id`)
	return list, err
}

func (r *ledgerRepositoryImpl) CreateSessionAccount(ctx context.Context, tx *sqlx.Tx, sessionID string, assetID int64, tbAccountID *big.Int) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO session_accounts (session_id, asset_id, tb_account_id)
         VALUES ($1, $2, $3) RETURNING id`,
		sessionID, assetID, tbAccountID.String(),
	).Scan(&id)
	return id, err
}

func (r *ledgerRepositoryImpl) GetSessionAccount(ctx context.Context, tx *sqlx.Tx, sessionID string, assetID int64) (*SessionAccount, error) {
	var sa SessionAccount
	err := tx.GetContext(ctx, &sa,
		`SELECT id, session_id, asset_id, tb_account_id, created_at
         FROM session_accounts
         WHERE session_id=$1 AND asset_id=$2`,
		sessionID, assetID)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

func (r *ledgerRepositoryImpl) ListSessionAccounts(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]SessionAccount, error) {
	var list []SessionAccount
	err := tx.SelectContext(ctx, &list,
		`SELECT id, session_id, asset_id, tb_account_id, created_at
         FROM session_accounts
         WHERE session_id=$1
         ORDER BY asset_id`,
		sessionID)
	return list, err
}
