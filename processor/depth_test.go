package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appconfig "depthflow/config"
	"depthflow/internal/channel"
	"depthflow/models"
)

func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Processor: appconfig.ProcessorConfig{
			MaxWorkers: 1,
			Depth:      "2",
		},
	}
}

func newTestProcessor(t *testing.T, ch *channel.Channels) *DepthProcessor {
	t.Helper()
	p, err := NewDepthProcessor(minimalConfig(), ch)
	if err != nil {
		t.Fatalf("NewDepthProcessor: %v", err)
	}
	return p
}

func binanceMessage(t *testing.T, symbol string, bids, asks [][2]string) models.RawDepthMessage {
	t.Helper()
	evt := models.BinanceDepthResp{
		Event:  "depthUpdate",
		Time:   1700000000000,
		Symbol: symbol,
	}
	for _, b := range bids {
		evt.Bids = append(evt.Bids, models.DepthEntry{Price: b[0], Quantity: b[1]})
	}
	for _, a := range asks {
		evt.Asks = append(evt.Asks, models.DepthEntry{Price: a[0], Quantity: a[1]})
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return models.RawDepthMessage{
		Exchange:  "binance",
		Symbol:    symbol,
		Market:    "spot-orderbook-delta",
		Data:      data,
		Timestamp: time.Now(),
	}
}

func TestDepthProcessorStartStop(t *testing.T) {
	ch := channel.NewChannels(1, 1)
	p := newTestProcessor(t, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected error on second start")
	}
	cancel()
	p.Stop()
}

func TestDepthProcessorRejectsInvalidDepth(t *testing.T) {
	cfg := minimalConfig()
	cfg.Processor.Depth = "-3"
	if _, err := NewDepthProcessor(cfg, channel.NewChannels(1, 1)); err == nil {
		t.Fatal("expected error for negative depth")
	}
}

func TestDepthProcessorQuotesAppliedMessage(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := newTestProcessor(t, ch)
	p.ctx = context.Background()

	msg := binanceMessage(t, "BTCUSDT",
		[][2]string{{"100", "2"}, {"99", "5"}},
		[][2]string{{"101", "3"}, {"102", "4"}},
	)
	p.handleMessage(msg)

	select {
	case quote := <-ch.Quote:
		if quote.Exchange != "binance" || quote.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected routing: %+v", quote)
		}
		if !quote.BidValid || !quote.AskValid {
			t.Fatalf("expected both sides valid: %+v", quote)
		}
		if quote.BidPrice.String() != "100" {
			t.Fatalf("expected bid 100, got %s", quote.BidPrice)
		}
		if quote.AskPrice.String() != "101" {
			t.Fatalf("expected ask 101, got %s", quote.AskPrice)
		}
		if quote.Spread.String() != "1" {
			t.Fatalf("expected spread 1, got %s", quote.Spread)
		}
	default:
		t.Fatal("expected a quote message")
	}
}

func TestDepthProcessorBookPersistsAcrossMessages(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := newTestProcessor(t, ch)
	p.ctx = context.Background()

	p.handleMessage(binanceMessage(t, "BTCUSDT",
		[][2]string{{"100", "2"}, {"99", "5"}},
		[][2]string{{"101", "3"}},
	))
	<-ch.Quote

	// the second message does not touch the 99 bid level; it must survive
	p.handleMessage(binanceMessage(t, "BTCUSDT",
		[][2]string{{"100", "0"}},
		nil,
	))

	quote := <-ch.Quote
	if !quote.BidValid {
		t.Fatalf("expected bid side still valid: %+v", quote)
	}
	if quote.BidPrice.String() != "99" {
		t.Fatalf("expected bid from persisted level 99, got %s", quote.BidPrice)
	}
	if quote.BidLevels != 1 {
		t.Fatalf("expected one bid level, got %d", quote.BidLevels)
	}
}

func TestDepthProcessorSkipsInvalidEntries(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := newTestProcessor(t, ch)
	p.ctx = context.Background()

	// malformed quantity and non-positive price mixed into a valid batch
	p.handleMessage(binanceMessage(t, "BTCUSDT",
		[][2]string{{"100", "oops"}, {"0", "3"}, {"99", "5"}},
		[][2]string{{"101", "3"}},
	))

	quote := <-ch.Quote
	if !quote.BidValid {
		t.Fatalf("expected valid bid from surviving entry: %+v", quote)
	}
	if quote.BidPrice.String() != "99" {
		t.Fatalf("expected bid 99, got %s", quote.BidPrice)
	}
	if quote.BidLevels != 1 {
		t.Fatalf("invalid entries must not create levels, got %d", quote.BidLevels)
	}
}

func TestDepthProcessorInsufficientDepthQuote(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := newTestProcessor(t, ch)
	p.ctx = context.Background()

	// total bid quantity 1 cannot fill depth 2
	p.handleMessage(binanceMessage(t, "BTCUSDT",
		[][2]string{{"100", "1"}},
		[][2]string{{"101", "3"}},
	))

	quote := <-ch.Quote
	if quote.BidValid {
		t.Fatalf("expected bid absence: %+v", quote)
	}
	if !quote.BidPrice.IsZero() {
		t.Fatalf("absent side must report zero, got %s", quote.BidPrice)
	}
	if !quote.AskValid {
		t.Fatalf("expected ask side valid: %+v", quote)
	}
}

func TestDepthProcessorBybitSnapshotResetsBook(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := newTestProcessor(t, ch)
	p.ctx = context.Background()

	snapshot := func(bids [][]string) models.RawDepthMessage {
		evt := models.BybitDepthResp{Topic: "orderbook.50.BTCUSDT", Type: "snapshot", Ts: 1700000000000}
		evt.Data.Symbol = "BTCUSDT"
		evt.Data.Bids = bids
		evt.Data.Asks = [][]string{{"101", "5"}}
		data, _ := json.Marshal(evt)
		return models.RawDepthMessage{Exchange: "bybit", Symbol: "BTCUSDT", Data: data, Timestamp: time.Now()}
	}

	p.handleMessage(snapshot([][]string{{"100", "2"}, {"99", "5"}}))
	<-ch.Quote

	// a fresh snapshot replaces the whole image
	p.handleMessage(snapshot([][]string{{"98", "2"}}))
	quote := <-ch.Quote
	if quote.BidLevels != 1 {
		t.Fatalf("expected snapshot to reset book, got %d bid levels", quote.BidLevels)
	}
	if quote.BidPrice.String() != "98" {
		t.Fatalf("expected bid 98 after snapshot, got %s", quote.BidPrice)
	}
}

func TestDepthProcessorRoutesPerInstrument(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := newTestProcessor(t, ch)
	p.ctx = context.Background()

	p.handleMessage(binanceMessage(t, "BTCUSDT", [][2]string{{"100", "2"}}, [][2]string{{"101", "3"}}))
	p.handleMessage(binanceMessage(t, "ETHUSDT", [][2]string{{"50", "4"}}, [][2]string{{"51", "4"}}))

	q1 := <-ch.Quote
	q2 := <-ch.Quote
	if q1.Symbol == q2.Symbol {
		t.Fatalf("expected quotes for two instruments, got %s twice", q1.Symbol)
	}
	if q2.BidLevels != 1 {
		t.Fatalf("instruments must not share books, got %d levels", q2.BidLevels)
	}
}
