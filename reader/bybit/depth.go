package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	appconfig "depthflow/config"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/models"
)

// Bybit_Depth_Reader streams order book updates from the Bybit public
// websocket. Bybit sends a full snapshot on subscribe followed by deltas;
// both are forwarded untouched, the processor resets the book on snapshots.
type Bybit_Depth_Reader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
}

// Bybit_Depth_NewReader creates a new depth reader for Bybit.
func Bybit_Depth_NewReader(cfg *appconfig.Config, ch *channel.Channels, symbols []string) *Bybit_Depth_Reader {
	return &Bybit_Depth_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
	}
}

// Bybit_Depth_Start subscribes to order book streams for configured symbols.
func (r *Bybit_Depth_Reader) Bybit_Depth_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("bybit depth reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Bybit.Depth
	log := r.log.WithComponent("bybit_depth_reader").WithFields(logger.Fields{"operation": "start"})

	if !cfg.Enabled {
		log.Warn("bybit depth stream is disabled")
		return fmt.Errorf("bybit depth stream is disabled")
	}

	symbols := r.symbols
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	if len(symbols) == 0 {
		log.Warn("no symbols configured for bybit depth stream")
		return fmt.Errorf("no symbols configured for bybit depth stream")
	}

	log.WithFields(logger.Fields{"symbols": symbols}).Info("starting bybit depth reader")

	r.wg.Add(1)
	go r.stream(symbols, cfg.URL)

	log.Info("bybit depth reader started successfully")
	return nil
}

// Bybit_Depth_Stop terminates all websocket subscriptions.
func (r *Bybit_Depth_Reader) Bybit_Depth_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("bybit_depth_reader").Info("stopping bybit depth reader")
	r.wg.Wait()
	r.log.WithComponent("bybit_depth_reader").Info("bybit depth reader stopped")
}

func (r *Bybit_Depth_Reader) stream(symbols []string, wsURL string) {
	defer r.wg.Done()

	log := r.log.WithComponent("bybit_depth_reader").WithFields(logger.Fields{
		"symbols": strings.Join(symbols, ","),
		"worker":  "depth_stream",
	})

	args := make([]string, len(symbols))
	for i, s := range symbols {
		args[i] = fmt.Sprintf("orderbook.50.%s", s)
	}

	handler := func(message string) error {
		var base struct {
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal([]byte(message), &base); err != nil {
			return nil
		}
		if base.Topic == "" || !strings.HasPrefix(base.Topic, "orderbook.") {
			return nil
		}
		parts := strings.Split(base.Topic, ".")
		sym := ""
		if len(parts) >= 3 {
			sym = parts[2]
		}

		msg := models.RawDepthMessage{
			Exchange:  "bybit",
			Symbol:    sym,
			Market:    "spot-orderbook-delta",
			Data:      []byte(message),
			Timestamp: time.Now(),
		}

		if r.channels.SendRaw(r.ctx, msg) {
			logger.IncrementDepthRead(len(message))
		} else if r.ctx.Err() != nil {
			return r.ctx.Err()
		} else {
			log.Warn("raw depth channel full, dropping message")
		}
		return nil
	}

	ws := bybit.NewBybitPublicWebSocket(wsURL, handler)
	ws.Connect().SendSubscription(args)

	<-r.ctx.Done()
	ws.Disconnect()
	log.Info("bybit websocket disconnected")
}
