package model

import (
	"fmt"
	"time"
)

type Price uint64
type Quantity uint64
type OrderId uint64
type Sequence uint64

type Side uint8

const (
	BID Side = iota // buy
	ASK             // sell
)

func (s Side) String() string {
	if s == BID {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the side a taker matches against.
func (s Side) Opposite() Side {
	if s == BID {
		return ASK
	}
	return BID
}

type OrderType uint8

const (
	ORDER_LIMIT OrderType = iota
	ORDER_MARKET
)

type OrderStatus uint8

const (
	ORDER_OPEN OrderStatus = iota
	ORDER_PARTIALLY_FILLED
	ORDER_FILLED
	ORDER_CANCELLED
)

func (st OrderStatus) String() string {
	switch st {
	case ORDER_OPEN:
		return "OPEN"
	case ORDER_PARTIALLY_FILLED:
		return "PARTIALLY_FILLED"
	case ORDER_FILLED:
		return "FILLED"
	case ORDER_CANCELLED:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

type Order struct {
	id                OrderId
	sessionID         string // pseudonymous owner, never broadcast
	pair              string
	side              Side
	price             Price // zero for MARKET orders
	initialQuantity   Quantity
	remainingQuantity Quantity
	orderType         OrderType
	status            OrderStatus
	sequence          Sequence
	createdAt         time.Time
}

func NewOrder(id OrderId, sessionID, pair string, side Side, price Price, quantity Quantity, orderType OrderType) Order {
	return Order{
		id:                id,
		sessionID:         sessionID,
		pair:              pair,
		side:              side,
		price:             price,
		initialQuantity:   quantity,
		remainingQuantity: quantity,
		orderType:         orderType,
		status:            ORDER_OPEN,
		createdAt:         time.Now(),
	}
}

// Fill reduces the remaining quantity. Only the matching engine calls this.
func (o *Order) Fill(quantity Quantity) error {
	if quantity > o.remainingQuantity {
		return fmt.Errorf("order %d cannot fill %d with %d remaining", o.id, quantity, o.remainingQuantity)
	}
	o.remainingQuantity -= quantity
	if o.remainingQuantity == 0 {
		o.status = ORDER_FILLED
	} else {
		o.status = ORDER_PARTIALLY_FILLED
	}
	return nil
}

func (o *Order) IsFilled() bool {
	return o.remainingQuantity == 0
}

func (o *Order) Cancel() {
	o.status = ORDER_CANCELLED
}

// AssignId is called once by the engine when the order is accepted.
func (o *Order) AssignId(id OrderId) {
	o.id = id
}

// AssignSequence is called once by the engine when the order is accepted.
// The sequence is the order's time-priority tie-break within its pair.
func (o *Order) AssignSequence(seq Sequence) {
	o.sequence = seq
}

func (o *Order) GetId() OrderId               { return o.id }
func (o *Order) GetSessionID() string         { return o.sessionID }
func (o *Order) GetPair() string              { return o.pair }
func (o *Order) GetSide() Side                { return o.side }
func (o *Order) GetPrice() Price              { return o.price }
func (o *Order) GetInitialQuantity() Quantity { return o.initialQuantity }

func (o *Order) GetRemainingQuantity() Quantity {
	return o.remainingQuantity
}

func (o *Order) GetFilledQuantity() Quantity {
	return o.initialQuantity - o.remainingQuantity
}

func (o *Order) GetType() OrderType      { return o.orderType }
func (o *Order) GetStatus() OrderStatus  { return o.status }
func (o *Order) GetSequence() Sequence   { return o.sequence }
func (o *Order) GetCreatedAt() time.Time { return o.createdAt }
