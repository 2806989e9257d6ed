package model

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementStatus uint8

const (
	SETTLEMENT_PENDING SettlementStatus = iota
	SETTLEMENT_SETTLED
	SETTLEMENT_FAILED
)

func (s SettlementStatus) String() string {
	switch s {
	case SETTLEMENT_PENDING:
		return "pending"
	case SETTLEMENT_SETTLED:
		return "settled"
	case SETTLEMENT_FAILED:
		return "failed"
	}
	return "unknown"
}

// Trade is an immutable execution record. MakerID is zero and PoolFill true
// when the taker was filled against the liquidity pool instead of a resting
// order. TakerSession/MakerSession are settlement-only and must never be
// serialized into public events.
type Trade struct {
	ID           uuid.UUID `json:"id"`
	Pair         string    `json:"pair"`
	TakerID      OrderId   `json:"takerOrderId"`
	MakerID      OrderId   `json:"makerOrderId"`
	PoolFill     bool      `json:"poolFill"`
	TakerSide    Side      `json:"takerSide"`
	Price        Price     `json:"price"`
	Quantity     Quantity  `json:"quantity"`
	TakerSession string    `json:"-"`
	MakerSession string    `json:"-"`
	Sequence     Sequence  `json:"sequence"`
	ExecutedAt   time.Time `json:"executedAt"`

	Settlement SettlementStatus `json:"-"`
}

// Notional is the quote value of the trade in smallest quote units.
// The product is taken in arbitrary precision so large price*quantity
// pairs do not wrap a uint64.
func (t *Trade) Notional() decimal.Decimal {
	p := new(big.Int).SetUint64(uint64(t.Price))
	q := new(big.Int).SetUint64(uint64(t.Quantity))
	return decimal.NewFromBigInt(p.Mul(p, q), 0)
}
