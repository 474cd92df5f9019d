package writer

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	appconfig "depthflow/config"
	"depthflow/logger"
)

func newTestConsoleWriter(out *bytes.Buffer) *ConsoleWriter {
	cfg := &appconfig.Config{}
	cfg.Writer.Console.QuotesPerSecond = 1
	cfg.Writer.Console.Burst = 1
	cfg.Writer.Console.DisplayPrecision = 2
	w := NewConsoleWriter(cfg, nil)
	w.out = out
	return w
}

func TestConsolePrintFormatsQuote(t *testing.T) {
	var out bytes.Buffer
	w := newTestConsoleWriter(&out)
	w.print(testQuote("binance", "BTCUSDT"))

	line := out.String()
	want := "[binance BTCUSDT] Best Bid: 100.50, Best Ask: 101.50, Spread: 1.00\n"
	if line != want {
		t.Errorf("unexpected output:\ngot  %q\nwant %q", line, want)
	}
}

func TestConsolePrintAbsentSide(t *testing.T) {
	var out bytes.Buffer
	w := newTestConsoleWriter(&out)
	quote := testQuote("binance", "BTCUSDT")
	quote.BidValid = false
	quote.Spread = quote.AskPrice
	w.print(quote)

	line := out.String()
	if !strings.Contains(line, "Best Bid: n/a") {
		t.Errorf("expected n/a for invalid bid, got %q", line)
	}
	if !strings.Contains(line, "Spread: 101.50") {
		t.Errorf("expected spread against zero bid, got %q", line)
	}
}

func TestConsoleLimiterPerInstrument(t *testing.T) {
	w := &ConsoleWriter{
		log:      logger.GetLogger(),
		limiters: make(map[string]*rate.Limiter),
		limit:    1,
		burst:    1,
	}
	if !w.limiter("binance|BTCUSDT").Allow() {
		t.Fatal("first quote should pass the limiter")
	}
	if w.limiter("binance|BTCUSDT").Allow() {
		t.Error("second immediate quote for the same instrument should be dropped")
	}
	if !w.limiter("binance|ETHUSDT").Allow() {
		t.Error("another instrument should have its own limiter")
	}
}

func TestConsoleDefaults(t *testing.T) {
	cfg := &appconfig.Config{}
	w := NewConsoleWriter(cfg, nil)
	if w.limit != rate.Inf {
		t.Errorf("zero quotes_per_second should disable limiting, got %v", w.limit)
	}
	if w.burst != 1 {
		t.Errorf("expected default burst 1, got %d", w.burst)
	}
	if w.precision != 2 {
		t.Errorf("expected default precision 2, got %d", w.precision)
	}
}
