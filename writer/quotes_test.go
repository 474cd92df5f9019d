package writer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	appconfig "depthflow/config"
	"depthflow/logger"
	"depthflow/models"
)

func testQuote(exchange, symbol string) models.QuoteMessage {
	return models.QuoteMessage{
		QuoteID:      "q-1",
		Exchange:     exchange,
		Symbol:       symbol,
		Depth:        decimal.NewFromInt(1),
		BidPrice:     decimal.RequireFromString("100.5"),
		AskPrice:     decimal.RequireFromString("101.5"),
		Spread:       decimal.NewFromInt(1),
		BidValid:     true,
		AskValid:     true,
		BidLevels:    3,
		AskLevels:    2,
		EventTime:    1700000000000,
		ReceivedTime: 1700000000001,
		ComputedAt:   time.UnixMilli(1700000000002),
	}
}

func TestAddQuoteAndBufferKey(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Writer.Buffer.MaxSize = 100
	w := &QuoteWriter{
		cfg:    cfg,
		log:    logger.GetLogger(),
		buffer: make(map[string][]models.QuoteMessage),
	}
	w.addQuote(testQuote("binance", "BTCUSDT"))
	key := w.bufferKey("binance", "BTCUSDT")
	quotes, ok := w.buffer[key]
	if !ok || len(quotes) != 1 {
		t.Fatalf("expected quote to be buffered, got %v", w.buffer)
	}
	if quotes[0].Symbol != "BTCUSDT" {
		t.Errorf("expected symbol BTCUSDT, got %s", quotes[0].Symbol)
	}
}

func TestCreateParquet(t *testing.T) {
	w := &QuoteWriter{log: logger.GetLogger()}
	quotes := []models.QuoteMessage{
		testQuote("binance", "BTCUSDT"),
		testQuote("bybit", "ETHUSDT"),
	}
	data, size, err := w.createParquet(quotes)
	if err != nil {
		t.Fatalf("createParquet failed: %v", err)
	}
	if size == 0 || len(data) == 0 {
		t.Fatal("expected non-empty parquet output")
	}
	// PAR1 magic bytes bracket every parquet file.
	if string(data[:4]) != "PAR1" {
		t.Errorf("expected parquet magic header, got %q", data[:4])
	}
	if string(data[len(data)-4:]) != "PAR1" {
		t.Errorf("expected parquet magic footer, got %q", data[len(data)-4:])
	}
}

func TestS3KeyLayout(t *testing.T) {
	w := &QuoteWriter{}
	ts := time.Date(2026, 8, 29, 14, 30, 5, 0, time.UTC)
	key := w.s3Key("binance", "BTCUSDT", ts)
	prefix := "quotes/exchange=binance/symbol=BTCUSDT/date=2026-08-29/143005_"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		t.Errorf("unexpected key layout: %s", key)
	}
}
