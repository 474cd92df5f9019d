package okx

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appconfig "depthflow/config"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/models"
)

// Okx_Depth_Reader subscribes to OKX websocket streams for spot order book
// updates and forwards the normalized messages into the raw depth channel.
// The reader connects directly to the official OKX websocket without relying
// on third-party SDKs.
type Okx_Depth_Reader struct {
	config     *appconfig.Config
	channels   *channel.Channels
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
	symbols    []string
	httpClient *http.Client
}

// orderBookEvent mirrors the OKX books channel payload.
type orderBookEvent struct {
	Arg struct {
		Channel  string `json:"channel"`
		InstType string `json:"instType"`
		InstID   string `json:"instId"`
	} `json:"arg"`
	Action string `json:"action"`
	Data   []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

// Okx_Depth_NewReader creates a new depth reader.
func Okx_Depth_NewReader(cfg *appconfig.Config, ch *channel.Channels, symbols []string) *Okx_Depth_Reader {
	return &Okx_Depth_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
	}
}

// Okx_Depth_Start establishes a websocket connection and subscribes to spot
// order book streams for all configured symbols. If the connection drops it
// will be re-established automatically until the context is cancelled.
func (r *Okx_Depth_Reader) Okx_Depth_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("okx depth reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Okx.Depth
	log := r.log.WithComponent("okx_depth_reader").WithFields(logger.Fields{"operation": "start"})
	if !cfg.Enabled {
		log.Warn("okx depth stream is disabled")
		return fmt.Errorf("okx depth stream is disabled")
	}

	symbols := r.symbols
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	if len(symbols) == 0 {
		log.Warn("no symbols configured for okx depth stream")
		return fmt.Errorf("no symbols configured for okx depth stream")
	}

	r.httpClient = &http.Client{
		Transport: userAgentTransport{agent: "curl/8.5.0", base: &http.Transport{}},
		Timeout:   r.config.Reader.Timeout,
	}

	symbols = r.validateSymbols(symbols)

	log.WithFields(logger.Fields{"symbols": symbols}).Info("starting okx depth reader")
	r.wg.Add(1)
	go r.stream(symbols, cfg.URL)
	log.Info("okx depth reader started successfully")
	return nil
}

// Okx_Depth_Stop terminates all websocket subscriptions and waits for
// goroutines to finish.
func (r *Okx_Depth_Reader) Okx_Depth_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("okx_depth_reader").Info("stopping okx depth reader")
	r.wg.Wait()
	r.log.WithComponent("okx_depth_reader").Info("okx depth reader stopped")
}

// stream handles websocket lifecycle, reconnection and forwarding of events.
func (r *Okx_Depth_Reader) stream(symbols []string, wsURL string) {
	defer r.wg.Done()
	log := r.log.WithComponent("okx_depth_reader").WithFields(logger.Fields{"symbols": symbols, "worker": "depth_stream"})

	for {
		if r.ctx.Err() != nil {
			return
		}

		dialer := websocket.Dialer{}
		conn, _, err := dialer.Dial(wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			logger.IncrementRetryCount()
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		args := make([]map[string]string, 0, len(symbols))
		for _, sym := range symbols {
			args = append(args, map[string]string{
				"channel":  "books",
				"instType": "SPOT",
				"instId":   sym,
			})
		}
		sub := map[string]interface{}{"op": "subscribe", "args": args}
		if err := conn.WriteJSON(sub); err != nil {
			log.WithError(err).Warn("failed to subscribe")
			conn.Close()
			continue
		}

		pingTicker := time.NewTicker(20 * time.Second)
		done := make(chan struct{})
		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-done:
					return
				case <-pingTicker.C:
					conn.WriteMessage(websocket.TextMessage, []byte("{\"op\":\"ping\"}"))
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				log.WithError(err).Warn("websocket read error, reconnecting")
				logger.IncrementRetryCount()
				goto RECONNECT
			}
			if !r.processMessage(conn, msg) {
				// non-data message processed
				continue
			}
		}

	RECONNECT:
		time.Sleep(time.Second)
	}
}

func (r *Okx_Depth_Reader) processMessage(conn *websocket.Conn, msg []byte) bool {
	if data, err := decompress(msg); err == nil {
		msg = data
	}
	// handle ping/pong and subscription events
	var base map[string]json.RawMessage
	if err := json.Unmarshal(msg, &base); err != nil {
		r.log.WithComponent("okx_depth_reader").WithError(err).Debug("failed to decode message")
		return false
	}
	if _, ok := base["event"]; ok {
		var evt struct {
			Event string `json:"event"`
		}
		json.Unmarshal(msg, &evt)
		if evt.Event == "ping" {
			conn.WriteMessage(websocket.TextMessage, []byte("{\"op\":\"pong\"}"))
		}
		return false
	}
	if _, ok := base["ping"]; ok {
		var ping struct {
			Ping int64 `json:"ping"`
		}
		if err := json.Unmarshal(msg, &ping); err == nil {
			resp, _ := json.Marshal(map[string]int64{"pong": ping.Ping})
			conn.WriteMessage(websocket.TextMessage, resp)
		}
		return false
	}

	var evt orderBookEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		return false
	}
	if len(evt.Data) == 0 {
		return false
	}
	r.handleEvent(&evt)
	return true
}

// handleEvent flattens the OKX wire format into the common depth event
// shape and forwards one message per data item.
func (r *Okx_Depth_Reader) handleEvent(evt *orderBookEvent) {
	log := r.log.WithComponent("okx_depth_reader").WithFields(logger.Fields{"symbol": evt.Arg.InstID})

	for _, item := range evt.Data {
		ts, _ := strconv.ParseInt(item.Ts, 10, 64)
		out := models.OkxDepthResp{
			Symbol:    evt.Arg.InstID,
			Action:    evt.Action,
			Timestamp: ts,
			Bids:      levelsToEntries(item.Bids),
			Asks:      levelsToEntries(item.Asks),
		}

		payload, err := json.Marshal(out)
		if err != nil {
			log.WithError(err).Warn("failed to marshal depth event")
			continue
		}

		msg := models.RawDepthMessage{
			Exchange:  "okx",
			Symbol:    evt.Arg.InstID,
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
}

// levelsToEntries keeps the first two elements of each OKX level tuple
// (price, quantity); the trailing order-count fields are not needed.
func levelsToEntries(levels [][]string) []models.DepthEntry {
	entries := make([]models.DepthEntry, 0, len(levels))
	for _, lvl := range levels {
		if len(lvl) < 2 {
			continue
		}
		entries = append(entries, models.DepthEntry{Price: lvl[0], Quantity: lvl[1]})
	}
	return entries
}

func decompress(msg []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(msg))
	defer reader.Close()
	return io.ReadAll(reader)
}

func (r *Okx_Depth_Reader) validateSymbols(symbols []string) []string {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, "https://www.okx.com/api/v5/public/instruments?instType=SPOT", nil)
	if err != nil {
		r.log.WithComponent("okx_depth_reader").WithError(err).Warn("failed to build instruments request")
		return symbols
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.WithComponent("okx_depth_reader").WithError(err).Warn("failed to fetch instruments list")
		return symbols
	}
	defer resp.Body.Close()
	var wrapper struct {
		Code string `json:"code"`
		Data []struct {
			InstID string `json:"instId"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		r.log.WithComponent("okx_depth_reader").WithError(err).Warn("failed to decode instruments list")
		return symbols
	}
	valid := make(map[string]struct{}, len(wrapper.Data))
	for _, inst := range wrapper.Data {
		valid[inst.InstID] = struct{}{}
	}
	var filtered []string
	for _, s := range symbols {
		if _, ok := valid[s]; ok {
			filtered = append(filtered, s)
		} else {
			r.log.WithComponent("okx_depth_reader").WithFields(logger.Fields{"symbol": s}).Warn("invalid instrument, skipping")
		}
	}
	return filtered
}
