package okx

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appconfig "depthflow/config"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/models"
)

// minimalConfig returns a minimal configuration required for testing.
func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{Timeout: time.Second},
		Source: appconfig.SourceConfig{
			Okx: appconfig.OkxSourceConfig{
				Depth: appconfig.DepthStreamConfig{Enabled: true, URL: "wss://example.com/ws"},
			},
		},
	}
}

func TestOkxDepthNewReader(t *testing.T) {
	ch := channel.NewChannels(1, 1)
	if r := Okx_Depth_NewReader(minimalConfig(), ch, []string{"BTC-USDT"}); r == nil {
		t.Fatal("Okx_Depth_NewReader returned nil")
	}
}

func TestOkxProcessMessage(t *testing.T) {
	ch := channel.NewChannels(1, 1)
	r := &Okx_Depth_Reader{channels: ch, ctx: context.Background(), log: logger.GetLogger()}

	raw := []byte(`{"arg":{"channel":"books","instType":"SPOT","instId":"BTC-USDT"},"action":"snapshot","data":[{"bids":[["100","2","0","1"]],"asks":[["101","3","0","1"]],"ts":"1700000000000"}]}`)
	if !r.processMessage(nil, raw) {
		t.Fatal("processMessage returned false")
	}
	select {
	case msg := <-ch.Raw:
		var resp models.OkxDepthResp
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Symbol != "BTC-USDT" || resp.Action != "snapshot" {
			t.Fatalf("unexpected event: %+v", resp)
		}
		if len(resp.Bids) != 1 || resp.Bids[0].Price != "100" || resp.Bids[0].Quantity != "2" {
			t.Fatalf("unexpected bids: %+v", resp.Bids)
		}
		if resp.Timestamp != 1700000000000 {
			t.Fatalf("unexpected timestamp: %d", resp.Timestamp)
		}
	default:
		t.Fatal("expected raw message on channel")
	}
}

func TestOkxProcessMessageIgnoresEvents(t *testing.T) {
	ch := channel.NewChannels(1, 1)
	r := &Okx_Depth_Reader{channels: ch, ctx: context.Background(), log: logger.GetLogger()}

	if r.processMessage(nil, []byte(`{"event":"subscribe","arg":{"channel":"books"}}`)) {
		t.Fatal("subscription ack must not produce data")
	}
	select {
	case <-ch.Raw:
		t.Fatal("unexpected message on channel")
	default:
	}
}
