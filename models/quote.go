package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteMessage is the result of pricing one instrument's book after a depth
// message has been applied. Bid and Ask are depth-weighted average prices at
// Depth units; a false validity flag means that side could not fill the
// depth and the matching price is zero.
type QuoteMessage struct {
	QuoteID      string          `json:"quote_id"`
	Exchange     string          `json:"exchange"`
	Symbol       string          `json:"symbol"`
	Depth        decimal.Decimal `json:"depth"`
	BidPrice     decimal.Decimal `json:"bid_price"`
	AskPrice     decimal.Decimal `json:"ask_price"`
	Spread       decimal.Decimal `json:"spread"`
	BidValid     bool            `json:"bid_valid"`
	AskValid     bool            `json:"ask_valid"`
	BidLevels    int             `json:"bid_levels"`
	AskLevels    int             `json:"ask_levels"`
	EventTime    int64           `json:"event_time"`
	ReceivedTime int64           `json:"received_time"`
	ComputedAt   time.Time       `json:"computed_at"`
}
