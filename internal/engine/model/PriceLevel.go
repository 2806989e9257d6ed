package model

import (
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/btree"
)

// AskPriceLevel ascending. Orders are FIFO: sequence numbers are assigned
// monotonically at acceptance and orders are appended at the tail, so slice
// order is sequence order.
type AskPriceLevel struct {
	Price       model.Price
	Orders      []*model.Order
	TotalVolume model.Quantity
}

func (pl *AskPriceLevel) Less(than btree.Item) bool {
	other := than.(*AskPriceLevel)
	return pl.Price < other.Price
}

func (pl *AskPriceLevel) RemoveOrderByID(orderID model.OrderId) bool {
	for i, order := range pl.Orders {
		if order.GetId() == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			pl.TotalVolume -= order.GetRemainingQuantity()
			return true
		}
	}
	return false
}

// BidPriceLevel descending
type BidPriceLevel struct {
	Price       model.Price
	Orders      []*model.Order
	TotalVolume model.Quantity
}

func (pl *BidPriceLevel) Less(than btree.Item) bool {
	other := than.(*BidPriceLevel)
	return pl.Price > other.Price // reverse
}

func (pl *BidPriceLevel) RemoveOrderByID(orderID model.OrderId) bool {
	for i, order := range pl.Orders {
		if order.GetId() == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			pl.TotalVolume -= order.GetRemainingQuantity()
			return true
		}
	}
	return false
}
