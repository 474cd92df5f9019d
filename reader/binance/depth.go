package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"

	appconfig "depthflow/config"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/models"
)

// Binance_Depth_Reader streams spot order book diff depth events from
// Binance and forwards the raw payloads to the depth channel for the
// processor to apply.
type Binance_Depth_Reader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
}

// Binance_Depth_NewReader creates a new depth reader using the binance-go
// client.
func Binance_Depth_NewReader(cfg *appconfig.Config, ch *channel.Channels, symbols []string) *Binance_Depth_Reader {
	return &Binance_Depth_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
	}
}

// Binance_Depth_Start subscribes to diff depth streams for configured symbols.
func (r *Binance_Depth_Reader) Binance_Depth_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance depth reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Binance.Depth
	log := r.log.WithComponent("binance_depth_reader").WithFields(logger.Fields{"operation": "start"})

	if !cfg.Enabled {
		log.Warn("binance depth stream is disabled")
		return fmt.Errorf("binance depth stream is disabled")
	}

	symbols := r.symbols
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	if len(symbols) == 0 {
		log.Warn("no symbols configured for binance depth stream")
		return fmt.Errorf("no symbols configured for binance depth stream")
	}

	log.WithFields(logger.Fields{"symbols": symbols}).Info("starting binance depth reader")

	for _, symbol := range symbols {
		r.wg.Add(1)
		go r.streamSymbol(symbol)
	}

	log.Info("binance depth reader started successfully")
	return nil
}

// Binance_Depth_Stop terminates all websocket subscriptions.
func (r *Binance_Depth_Reader) Binance_Depth_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_depth_reader").Info("stopping binance depth reader")
	r.wg.Wait()
	r.log.WithComponent("binance_depth_reader").Info("binance depth reader stopped")
}

func (r *Binance_Depth_Reader) streamSymbol(symbol string) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_depth_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "depth_stream",
	})

	handler := func(event *binance.WsDepthEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			log.WithError(err).Warn("failed to marshal depth event")
			return
		}

		msg := models.RawDepthMessage{
			Exchange:  "binance",
			Symbol:    event.Symbol,
			Market:    "spot-orderbook-delta",
			Data:      payload,
			Timestamp: time.Now(),
		}

		if r.channels.SendRaw(r.ctx, msg) {
			logger.IncrementDepthRead(len(payload))
		} else if r.ctx.Err() == nil {
			log.Warn("raw depth channel full, dropping message")
		}
	}

	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	for {
		doneC, stopC, err := binance.WsDepthServe100Ms(symbol, handler, errHandler)
		if err != nil {
			log.WithError(err).Error("failed to subscribe to diff depth stream")
			logger.IncrementRetryCount()
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		select {
		case <-r.ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			// stream ended, reconnect
			log.Warn("depth stream ended, reconnecting")
			logger.IncrementRetryCount()
		}
	}
}
