package model

type MarketDepthLevel struct {
	Price      Price    `json:"price"`
	Volume     Quantity `json:"volume"`
	OrderCount int      `json:"orderCount"`
}

// MarketDepth is the aggregated public view of one side of the book.
// Only price levels and volumes are exposed, never order identities.
type MarketDepth struct {
	Pair      string             `json:"pair"`
	Bids      []MarketDepthLevel `json:"bids"` // highest to lowest price
	Asks      []MarketDepthLevel `json:"asks"` // lowest to highest price
	Timestamp int64              `json:"timestamp"`
}

// TopOfBook represents best bid/ask
type TopOfBook struct {
	BestBid *MarketDepthLevel `json:"bestBid"`
	BestAsk *MarketDepthLevel `json:"bestAsk"`
	Spread  Price             `json:"spread"`
}

type BookDeltaKind uint8

const (
	DELTA_ADD BookDeltaKind = iota
	DELTA_REDUCE
	DELTA_REMOVE
)

func (k BookDeltaKind) String() string {
	switch k {
	case DELTA_ADD:
		return "add"
	case DELTA_REDUCE:
		return "reduce"
	case DELTA_REMOVE:
		return "remove"
	}
	return "unknown"
}

// BookDelta is an incremental depth change emitted after every book
// mutation. Quantity is the resting volume change at the level.
type BookDelta struct {
	Pair     string        `json:"pair"`
	Kind     BookDeltaKind `json:"kind"`
	Side     Side          `json:"side"`
	Price    Price         `json:"price"`
	Quantity Quantity      `json:"quantity"`
}
