package model

type PairStatus uint8

const (
	PAIR_ACTIVE PairStatus = iota
	PAIR_HALTED
)

func (s PairStatus) String() string {
	if s == PAIR_HALTED {
		return "HALTED"
	}
	return "ACTIVE"
}

// TradingPair is immutable once created except for Status.
// TickSize and LotSize are expressed in the same smallest units as
// Price and Quantity; every accepted order must be a positive multiple
// of both.
type TradingPair struct {
	Symbol   string     `json:"symbol"` // e.g. "BTC-USDC"
	Base     string     `json:"base"`
	Quote    string     `json:"quote"`
	TickSize Price      `json:"tickSize"`
	LotSize  Quantity   `json:"lotSize"`
	Status   PairStatus `json:"status"`
}

// ValidateOrder checks tick/lot conformance for an incoming order.
// MARKET orders carry no price, so only the lot constraint applies.
func (p *TradingPair) ValidateOrder(orderType OrderType, price Price, quantity Quantity) error {
	if quantity == 0 || p.LotSize == 0 || quantity%p.LotSize != 0 {
		return ErrInvalidOrderParams
	}
	if orderType == ORDER_LIMIT {
		if price == 0 || p.TickSize == 0 || price%p.TickSize != 0 {
			return ErrInvalidOrderParams
		}
	}
	return nil
}
