package book

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Side identifies one half of the order book.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// ParseSide maps the wire representation used by the exchange feeds
// ("bid"/"buy" and "ask"/"sell") to a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "bid", "buy", "b":
		return Bid, true
	case "ask", "sell", "a":
		return Ask, true
	}
	return 0, false
}

// PriceLevel is a single resting price point on one side of the book.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// InvalidUpdateError reports a semantically invalid depth update. The update
// is rejected without touching book state; processing of the remaining
// entries in the same batch continues.
type InvalidUpdateError struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Reason   string
}

func (e *InvalidUpdateError) Error() string {
	return fmt.Sprintf("invalid %s update price=%s quantity=%s: %s",
		e.Side, e.Price, e.Quantity, e.Reason)
}

// Book holds the resting liquidity of a single instrument. Both sides are
// kept sorted best-first: bids descending, asks ascending. A Book lives for
// the whole feed session and is mutated incrementally via Apply; it is never
// rebuilt per message.
//
// A Book is not safe for concurrent use; the owner serializes writes and
// reads (see processor).
type Book struct {
	bids []PriceLevel
	asks []PriceLevel
}

// New returns an empty order book.
func New() *Book {
	return &Book{}
}

// Apply upserts or deletes the price level at price on the given side.
// A zero quantity deletes the level if present (absence is not an error);
// a positive quantity inserts the level or replaces its quantity.
func (b *Book) Apply(side Side, price, quantity decimal.Decimal) error {
	if !price.IsPositive() {
		return &InvalidUpdateError{Side: side, Price: price, Quantity: quantity, Reason: "price must be positive"}
	}
	if quantity.IsNegative() {
		return &InvalidUpdateError{Side: side, Price: price, Quantity: quantity, Reason: "quantity must not be negative"}
	}

	levels := b.side(side)
	idx, found := b.search(side, price)

	switch {
	case quantity.IsZero():
		if found {
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		}
	case found:
		(*levels)[idx].Quantity = quantity
	default:
		*levels = append(*levels, PriceLevel{})
		copy((*levels)[idx+1:], (*levels)[idx:])
		(*levels)[idx] = PriceLevel{Price: price, Quantity: quantity}
	}
	return nil
}

// Clear drops all levels on both sides. Used when a feed delivers a full
// snapshot that replaces the current image rather than an incremental diff.
func (b *Book) Clear() {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
}

// Levels returns the price levels of one side ordered best-first. The
// returned slice is a copy and stays valid across subsequent updates.
func (b *Book) Levels(side Side) []PriceLevel {
	src := *b.side(side)
	out := make([]PriceLevel, len(src))
	copy(out, src)
	return out
}

// Best returns the best level of one side, or false when the side is empty.
func (b *Book) Best(side Side) (PriceLevel, bool) {
	levels := *b.side(side)
	if len(levels) == 0 {
		return PriceLevel{}, false
	}
	return levels[0], true
}

// Depth returns the number of levels resting on one side.
func (b *Book) Depth(side Side) int {
	return len(*b.side(side))
}

func (b *Book) side(side Side) *[]PriceLevel {
	if side == Bid {
		return &b.bids
	}
	return &b.asks
}

// search locates price within a side. It returns the index the level
// occupies or would be inserted at, preserving best-first order.
func (b *Book) search(side Side, price decimal.Decimal) (int, bool) {
	levels := *b.side(side)
	var idx int
	if side == Bid {
		idx = sort.Search(len(levels), func(i int) bool {
			return levels[i].Price.LessThanOrEqual(price)
		})
	} else {
		idx = sort.Search(len(levels), func(i int) bool {
			return levels[i].Price.GreaterThanOrEqual(price)
		})
	}
	found := idx < len(levels) && levels[idx].Price.Equal(price)
	return idx, found
}
