package orderbook

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/app/core"
)

// Order is a resting limit order. Amount is the remaining quantity and
// is decremented in place by fills; an order leaves the book only by
// reaching zero. There is no cancel and no expiry.
type Order struct {
	ID        uint64         `json:"id"`
	Trader    common.Address `json:"trader"`
	Side      core.Side      `json:"side"`
	Symbol    string         `json:"symbol"`
	Amount    int64          `json:"amount"` // remaining, > 0 while resting
	Price     int64          `json:"price"`  // quote units per asset unit
	CreatedAt int64          `json:"createdAt"` // Unix milliseconds
}

// Book is one (symbol, side) order book: a slice sorted by price
// descending, ties broken by insertion order. Both sides sort highest
// price first — that is the observed book ordering this engine
// reproduces, including on the sell side.
//
// O(n) insert is fine at expected depth; the sort invariant holds
// after every Insert and PruneZero.
type Book struct {
	orders []*Order
}

func NewBook() *Book {
	return &Book{}
}

func (b *Book) Len() int { return len(b.orders) }

// Insert places o keeping descending-price, time-priority order: o goes
// after every resting order with price >= o.Price.
func (b *Book) Insert(o *Order) {
	i := sort.Search(len(b.orders), func(i int) bool {
		return b.orders[i].Price < o.Price
	})
	b.orders = append(b.orders, nil)
	copy(b.orders[i+1:], b.orders[i:])
	b.orders[i] = o
}

// Front returns the best-priced order, or nil on an empty book.
func (b *Book) Front() *Order {
	if len(b.orders) == 0 {
		return nil
	}
	return b.orders[0]
}

// At returns the i-th order in book order.
func (b *Book) At(i int) *Order { return b.orders[i] }

// PruneZero drops every fully filled order, preserving the relative
// order of the rest. Safe to call between fills of a market-order
// walk: nothing is skipped or duplicated.
func (b *Book) PruneZero() {
	kept := b.orders[:0]
	for _, o := range b.orders {
		if o.Amount > 0 {
			kept = append(kept, o)
		}
	}
	for i := len(kept); i < len(b.orders); i++ {
		b.orders[i] = nil
	}
	b.orders = kept
}

// Snapshot copies the book in its current internal order.
func (b *Book) Snapshot() []Order {
	out := make([]Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = *o
	}
	return out
}
