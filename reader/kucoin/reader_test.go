package kucoin

import (
	"context"
	"testing"

	appconfig "depthflow/config"
	"depthflow/internal/channel"
)

func TestParseChange(t *testing.T) {
	tests := []struct {
		change   string
		side     string
		price    string
		quantity string
	}{
		{"54207.3,buy,1219", "buy", "54207.3", "1219"},
		{"54220.1,sell,0", "sell", "54220.1", "0"},
		{"buy,100,5", "buy", "100", "5"},
		{"malformed", "", "", ""},
	}
	for _, tt := range tests {
		side, price, qty := parseChange(tt.change)
		if side != tt.side || price != tt.price || qty != tt.quantity {
			t.Errorf("parseChange(%q) = (%q,%q,%q), want (%q,%q,%q)",
				tt.change, side, price, qty, tt.side, tt.price, tt.quantity)
		}
	}
}

func TestKucoinDepthStartDisabled(t *testing.T) {
	cfg := &appconfig.Config{}
	r := Kucoin_Depth_NewReader(cfg, channel.NewChannels(1, 1), []string{"XBTUSDTM"})
	if err := r.Kucoin_Depth_Start(context.Background()); err == nil {
		t.Fatal("expected error when stream is disabled")
	}
}
