package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	sdkapi "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futurespublic "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/futurespublic"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"

	appconfig "depthflow/config"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/models"
)

// Kucoin_Depth_Reader streams futures level2 increments from KuCoin. Each
// increment names a single price level change; the reader re-marshals it
// into the common depth event shape before forwarding.
type Kucoin_Depth_Reader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
}

// Kucoin_Depth_NewReader creates a new depth reader.
// Symbols defines the markets this reader will subscribe to.
func Kucoin_Depth_NewReader(cfg *appconfig.Config, ch *channel.Channels, symbols []string) *Kucoin_Depth_Reader {
	return &Kucoin_Depth_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
	}
}

// Kucoin_Depth_Start subscribes to level2 streams for configured symbols.
func (r *Kucoin_Depth_Reader) Kucoin_Depth_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("kucoin depth reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Kucoin.Depth
	log := r.log.WithComponent("kucoin_depth_reader").WithFields(logger.Fields{"operation": "start"})

	if !cfg.Enabled {
		log.Warn("kucoin depth stream is disabled")
		return fmt.Errorf("kucoin depth stream is disabled")
	}

	symbols := r.symbols
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	if len(symbols) == 0 {
		log.Warn("no symbols configured for kucoin depth stream")
		return fmt.Errorf("no symbols configured for kucoin depth stream")
	}

	log.WithFields(logger.Fields{"symbols": symbols}).Info("starting kucoin depth reader")

	r.wg.Add(1)
	go r.stream(symbols, cfg.URL)

	log.Info("kucoin depth reader started successfully")
	return nil
}

// Kucoin_Depth_Stop terminates all websocket subscriptions.
func (r *Kucoin_Depth_Reader) Kucoin_Depth_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("kucoin_depth_reader").Info("stopping kucoin depth reader")
	r.wg.Wait()
	r.log.WithComponent("kucoin_depth_reader").Info("kucoin depth reader stopped")
}

// parseChange splits KuCoin's "price,side,quantity" change string. Field
// order varies between message versions, so the side token is matched by
// value.
func parseChange(change string) (side, price, quantity string) {
	parts := strings.Split(change, ",")
	if len(parts) < 3 {
		return
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch p {
		case "buy", "sell":
			side = p
		default:
			if price == "" {
				price = p
			} else if quantity == "" {
				quantity = p
			}
		}
	}
	return
}

func (r *Kucoin_Depth_Reader) stream(symbolList []string, wsURL string) {
	defer r.wg.Done()

	kucoinCfg := r.config.Source.Kucoin

	baseURL := wsURL
	if parsed, err := url.Parse(wsURL); err == nil {
		baseURL = fmt.Sprintf("https://%s", parsed.Host)
	}

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetMaxIdleConns(kucoinCfg.ConnectionPool.MaxIdleConns).
		SetMaxIdleConnsPerHost(kucoinCfg.ConnectionPool.MaxIdleConns).
		SetMaxConnsPerHost(kucoinCfg.ConnectionPool.MaxConnsPerHost).
		SetIdleConnTimeout(kucoinCfg.ConnectionPool.IdleConnTimeout).
		SetTimeout(r.config.Reader.Timeout).
		Build()

	wsOptBuilder := sdktype.NewWebSocketClientOptionBuilder()
	if kucoinCfg.ReadBufferBytes > 0 {
		wsOptBuilder = wsOptBuilder.WithReadBufferBytes(kucoinCfg.ReadBufferBytes)
	}
	if kucoinCfg.ReadMessageBuffer > 0 {
		wsOptBuilder = wsOptBuilder.WithReadMessageBuffer(kucoinCfg.ReadMessageBuffer)
	}
	wsOpt := wsOptBuilder.Build()
	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(baseURL).
		WithTransportOption(transportOpt).
		WithWebSocketClientOption(wsOpt).
		Build()

	client := sdkapi.NewClient(option)
	ws := client.WsService().NewFuturesPublicWS()

	log := r.log.WithComponent("kucoin_depth_reader").WithFields(logger.Fields{
		"worker": "depth_stream",
	})

	if err := ws.Start(); err != nil {
		log.WithError(err).Warn("failed to start websocket")
		return
	}
	defer ws.Stop()

	for _, symbol := range symbolList {
		_, err := ws.OrderbookIncrement(symbol, func(topic, subject string, data *futurespublic.OrderbookIncrementEvent) error {
			symbol := strings.TrimPrefix(topic, "/contractMarket/level2:")
			evt := models.KucoinDepthResp{
				Symbol:    symbol,
				Sequence:  data.Sequence,
				Timestamp: data.Timestamp,
			}

			side, price, quantity := parseChange(data.Change)
			entry := models.DepthEntry{Price: price, Quantity: quantity}
			switch side {
			case "buy":
				evt.Bids = []models.DepthEntry{entry}
			case "sell":
				evt.Asks = []models.DepthEntry{entry}
			default:
				log.WithFields(logger.Fields{"change": data.Change}).Warn("unrecognized change string, skipping")
				return nil
			}

			payload, err := json.Marshal(evt)
			if err != nil {
				log.WithError(err).Warn("failed to marshal event")
				return nil
			}

			msgOut := models.RawDepthMessage{
				Exchange:  "kucoin",
				Symbol:    symbol,
				Market:    "future-orderbook-delta",
				Data:      payload,
				Timestamp: time.Now(),
			}

			if r.channels.SendRaw(r.ctx, msgOut) {
				logger.IncrementDepthRead(len(payload))
			} else if r.ctx.Err() != nil {
				return r.ctx.Err()
			} else {
				log.Warn("raw depth channel full, dropping message")
			}
			return nil
		})
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("failed to subscribe to level2 stream")
		}
	}

	<-r.ctx.Done()
}
