package pair

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type PairRecord struct {
	ID        int64     `db:"id"`
	Symbol    string    `db:"symbol"`
	Base      string    `db:"base"`
	Quote     string    `db:"quote"`
	TickSize  uint64    `db:"tick_size"`
	LotSize   uint64    `db:"lot_size"`
	Status    int8      `db:"status"` // 0 = ACTIVE, 1 = HALTED
	CreatedAt time.Time `db:"created_at"`
}

type PairRepository interface {
	CreatePair(ctx context.Context, tx *sqlx.Tx, rec PairRecord) (int64, error)
	GetPairBySymbol(ctx context.Context, tx *sqlx.Tx, symbol string) (*PairRecord, error)
	ListPairs(ctx context.Context, tx *sqlx.Tx) ([]PairRecord, error)
	UpdatePairStatus(ctx context.Context, tx *sqlx.Tx, symbol string, status int8) error
}

type pairRepositoryImpl struct{}

func NewPairRepository(db *sqlx.DB) PairRepository {
	return &pairRepositoryImpl{}
}

func (r *pairRepositoryImpl) CreatePair(ctx context.Context, tx *sqlx.Tx, rec PairRecord) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO trading_pairs (symbol, base, quote, tick_size, lot_size, status)
         VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		rec.Symbol, rec.Base, rec.Quote, rec.TickSize, rec.LotSize, rec.Status).Scan(&id)
	return id, err
}

func (r *pairRepositoryImpl) GetPairBySymbol(ctx context.Context, tx *sqlx.Tx, symbol string) (*PairRecord, error) {
	var p PairRecord
	err := tx.GetContext(ctx, &p,
		`SELECT id, symbol, base, quote, tick_size, lot_size, status, created_at
         FROM trading_pairs WHERE symbol=$1`, symbol)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pairRepositoryImpl) ListPairs(ctx context.Context, tx *sqlx.Tx) ([]PairRecord, error) {
	var list []PairRecord
	err := tx.SelectContext(ctx, &list,
		`SELECT id, symbol, base, quote, tick_size, lot_size, status, created_at
         FROM trading_pairs ORDER BY symbol ASC`)
	return list, err
}

func (r *pairRepositoryImpl) UpdatePairStatus(ctx context.Context, tx *sqlx.Tx, symbol string, status int8) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE trading_pairs SET status=$1 WHERE symbol=$2`,
		status, symbol)
	return err
}
