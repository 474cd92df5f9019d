package models

import "time"

// DepthEntry is a single price level change as it arrives on the wire.
// Prices and quantities stay strings until the processor parses them into
// exact decimals; a quantity of "0" deletes the level.
type DepthEntry struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// RawDepthMessage wraps a raw order book depth message from any exchange.
type RawDepthMessage struct {
	Exchange  string
	Symbol    string
	Market    string
	Data      []byte
	Timestamp time.Time
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BINANCE ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BinanceDepthResp mirrors Binance's diff depth websocket event structure.
type BinanceDepthResp struct {
	Event         string       `json:"e"`
	Time          int64        `json:"E"`
	Symbol        string       `json:"s"`
	FirstUpdateID int64        `json:"U"`
	LastUpdateID  int64        `json:"u"`
	Bids          []DepthEntry `json:"b"`
	Asks          []DepthEntry `json:"a"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BYBIT /////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BybitDepthResp represents an order book update from the Bybit websocket.
// Deltas and snapshots share the shape; Type distinguishes them.
type BybitDepthResp struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol   string     `json:"s"`
		Bids     [][]string `json:"b"`
		Asks     [][]string `json:"a"`
		UpdateID int64      `json:"u"`
		Seq      int64      `json:"seq"`
	} `json:"data"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// KUCOIN ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// KucoinDepthResp represents a level2 increment from the KuCoin futures
// websocket, re-marshalled by the reader into bid/ask entry lists.
type KucoinDepthResp struct {
	Symbol    string       `json:"symbol"`
	Sequence  int64        `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
	Bids      []DepthEntry `json:"bids"`
	Asks      []DepthEntry `json:"asks"`
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// OKX //////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// OkxDepthResp represents an order book update from the OKX books channel.
// Action is "snapshot" for the initial image and "update" for deltas.
type OkxDepthResp struct {
	Symbol    string       `json:"symbol"`
	Action    string       `json:"action"`
	Timestamp int64        `json:"timestamp"`
	Bids      []DepthEntry `json:"bids"`
	Asks      []DepthEntry `json:"asks"`
}
