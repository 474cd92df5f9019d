package channel

import (
	"context"
	"testing"

	"depthflow/models"
)

func TestSendRaw(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()
	ctx := context.Background()

	if !c.SendRaw(ctx, models.RawDepthMessage{Exchange: "binance", Symbol: "BTCUSDT"}) {
		t.Fatal("expected send to succeed")
	}
	// buffer full: message is dropped, not blocked on
	if c.SendRaw(ctx, models.RawDepthMessage{Exchange: "binance", Symbol: "BTCUSDT"}) {
		t.Fatal("expected send to drop on full buffer")
	}

	stats := c.Stats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendQuote(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()
	ctx := context.Background()

	if !c.SendQuote(ctx, models.QuoteMessage{Symbol: "BTCUSDT"}) {
		t.Fatal("expected send to succeed")
	}
	if c.SendQuote(ctx, models.QuoteMessage{Symbol: "BTCUSDT"}) {
		t.Fatal("expected send to drop on full buffer")
	}

	stats := c.Stats()
	if stats.QuoteSent != 1 || stats.QuoteDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendCancelledContext(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()

	// fill the buffer so the send has to wait, then cancel
	ctx, cancel := context.WithCancel(context.Background())
	c.SendRaw(ctx, models.RawDepthMessage{})
	cancel()
	if c.SendRaw(ctx, models.RawDepthMessage{}) {
		t.Fatal("expected send to fail after cancel")
	}
}

func TestFanOutQuotes(t *testing.T) {
	c := NewChannels(1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subs := c.FanOutQuotes(ctx, 2)
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriber channels, got %d", len(subs))
	}

	c.SendQuote(ctx, models.QuoteMessage{Symbol: "BTCUSDT"})

	for i, sub := range subs {
		quote := <-sub
		if quote.Symbol != "BTCUSDT" {
			t.Errorf("subscriber %d got wrong quote: %+v", i, quote)
		}
	}

	// closing the source channel shuts down the subscribers too
	close(c.Quote)
	for i, sub := range subs {
		if _, ok := <-sub; ok {
			t.Errorf("subscriber %d should be closed", i)
		}
	}
}
