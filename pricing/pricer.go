package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"depthflow/book"
)

// ErrInsufficientDepth signals that one side of the book cannot fill the
// requested depth. It is an absence marker, not a failure: the side is
// empty, the depth is non-positive, or the resting quantity falls short.
var ErrInsufficientDepth = errors.New("insufficient depth")

// Quote is the result of pricing both sides of a book at one depth. When a
// side cannot fill the depth its price is zero and the matching OK flag is
// false; Spread treats such a side as zero, so callers must consult the
// flags before trusting it on a thin book.
type Quote struct {
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	BidOK  bool
	AskOK  bool
	Spread decimal.Decimal
}

// WeightedAveragePrice sweeps one side best-first and returns the
// quantity-weighted price of consuming depth units. Levels are fully
// consumed until the remainder fits inside one level, which is then
// consumed partially. Both sides share this routine; only the traversal
// order differs and the book already hands levels out best-first.
func WeightedAveragePrice(b *book.Book, side book.Side, depth decimal.Decimal) (decimal.Decimal, error) {
	if !depth.IsPositive() {
		return decimal.Decimal{}, ErrInsufficientDepth
	}

	consumed := decimal.Zero
	weighted := decimal.Zero
	for _, level := range b.Levels(side) {
		remaining := depth.Sub(consumed)
		if level.Quantity.LessThan(remaining) {
			weighted = weighted.Add(level.Price.Mul(level.Quantity))
			consumed = consumed.Add(level.Quantity)
			continue
		}
		weighted = weighted.Add(level.Price.Mul(remaining))
		consumed = consumed.Add(remaining)
		break
	}

	if consumed.LessThan(depth) {
		return decimal.Decimal{}, ErrInsufficientDepth
	}
	return weighted.Div(consumed), nil
}

// QuoteAt prices both sides of the book at the given depth and derives the
// spread as ask minus bid, with an absent side contributing zero.
func QuoteAt(b *book.Book, depth decimal.Decimal) Quote {
	q := Quote{}

	if px, err := WeightedAveragePrice(b, book.Bid, depth); err == nil {
		q.Bid = px
		q.BidOK = true
	}
	if px, err := WeightedAveragePrice(b, book.Ask, depth); err == nil {
		q.Ask = px
		q.AskOK = true
	}

	q.Spread = q.Ask.Sub(q.Bid)
	return q
}
