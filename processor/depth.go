package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"depthflow/book"
	appconfig "depthflow/config"
	"depthflow/internal/channel"
	"depthflow/internal/symbols"
	"depthflow/logger"
	"depthflow/models"
	"depthflow/pricing"
)

// DepthProcessor consumes raw depth messages, applies their updates to
// per-instrument order books and emits a depth-weighted quote for every
// applied message.
//
// Books are keyed by exchange and canonical symbol and live for the whole
// session; a message only touches the levels it names, everything else in
// the book survives. Each book is guarded so one message's updates and the
// quote read behind them are atomic: a quote never observes half a message.
type DepthProcessor struct {
	config   *appconfig.Config
	channels *channel.Channels
	depth    decimal.Decimal
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	booksMu sync.RWMutex
	books   map[string]*instrumentBook
}

// instrumentBook pairs a book with the lock serializing message application
// against quote computation for that instrument.
type instrumentBook struct {
	mu   sync.Mutex
	book *book.Book
}

// depthChange is a decoded depth message, exchange differences flattened
// away.
type depthChange struct {
	symbol    string
	eventTime int64
	snapshot  bool
	bids      []models.DepthEntry
	asks      []models.DepthEntry
}

// NewDepthProcessor creates a processor pricing quotes at the configured
// depth.
func NewDepthProcessor(cfg *appconfig.Config, channels *channel.Channels) (*DepthProcessor, error) {
	depth, err := cfg.Processor.QuoteDepth()
	if err != nil {
		return nil, err
	}
	return &DepthProcessor{
		config:   cfg,
		channels: channels,
		depth:    depth,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		books:    make(map[string]*instrumentBook),
	}, nil
}

// Start launches the worker pool consuming the raw channel.
func (p *DepthProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("depth processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("depth_processor").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"depth": p.depth.String()}).Info("starting depth processor")

	workers := p.config.Processor.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.metricsReporter(ctx)

	log.Info("depth processor started successfully")
	return nil
}

// Stop waits for workers to drain.
func (p *DepthProcessor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("depth_processor").Info("stopping depth processor")
	p.wg.Wait()
	p.log.WithComponent("depth_processor").Info("depth processor stopped")
}

func (p *DepthProcessor) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *DepthProcessor) handleMessage(raw models.RawDepthMessage) {
	log := p.log.WithComponent("depth_processor").WithFields(logger.Fields{
		"exchange": raw.Exchange,
		"symbol":   raw.Symbol,
	})

	change, err := decode(raw)
	if err != nil {
		log.WithError(err).Warn("failed to decode depth message")
		return
	}

	symbol := change.symbol
	if symbol == "" {
		symbol = raw.Symbol
	}
	symbol = symbols.ToCanonical(raw.Exchange, symbol)
	if symbol == "" {
		log.Warn("depth message without symbol, dropping")
		return
	}

	ib := p.bookFor(raw.Exchange, symbol)

	ib.mu.Lock()
	if change.snapshot {
		ib.book.Clear()
	}
	applied, invalid := p.applyEntries(ib.book, book.Bid, change.bids, log)
	a2, i2 := p.applyEntries(ib.book, book.Ask, change.asks, log)
	applied += a2
	invalid += i2

	quote := pricing.QuoteAt(ib.book, p.depth)
	bidLevels := ib.book.Depth(book.Bid)
	askLevels := ib.book.Depth(book.Ask)
	ib.mu.Unlock()

	logger.IncrementUpdatesApplied(applied)
	logger.IncrementInvalidUpdates(invalid)

	msg := models.QuoteMessage{
		QuoteID:      uuid.New().String(),
		Exchange:     raw.Exchange,
		Symbol:       symbol,
		Depth:        p.depth,
		BidPrice:     quote.Bid,
		AskPrice:     quote.Ask,
		Spread:       quote.Spread,
		BidValid:     quote.BidOK,
		AskValid:     quote.AskOK,
		BidLevels:    bidLevels,
		AskLevels:    askLevels,
		EventTime:    change.eventTime,
		ReceivedTime: raw.Timestamp.UnixMilli(),
		ComputedAt:   time.Now(),
	}

	if p.channels.SendQuote(p.ctx, msg) {
		logger.IncrementQuoteComputed()
	} else if p.ctx.Err() == nil {
		log.Warn("quote channel full, dropping quote")
	}
}

// applyEntries parses and applies one side's entries. A bad entry is
// rejected and counted; the rest of the batch still applies and the book
// keeps its previous state for that level.
func (p *DepthProcessor) applyEntries(b *book.Book, side book.Side, entries []models.DepthEntry, log *logger.Entry) (applied, invalid int) {
	for _, e := range entries {
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			log.WithFields(logger.Fields{"side": side.String(), "price": e.Price}).Warn("unparseable price, skipping entry")
			invalid++
			continue
		}
		qty, err := decimal.NewFromString(e.Quantity)
		if err != nil {
			log.WithFields(logger.Fields{"side": side.String(), "quantity": e.Quantity}).Warn("unparseable quantity, skipping entry")
			invalid++
			continue
		}
		if err := b.Apply(side, price, qty); err != nil {
			log.WithError(err).Warn("rejected depth update")
			invalid++
			continue
		}
		applied++
	}
	return applied, invalid
}

func (p *DepthProcessor) bookFor(exchange, symbol string) *instrumentBook {
	key := exchange + "|" + symbol

	p.booksMu.RLock()
	ib, ok := p.books[key]
	p.booksMu.RUnlock()
	if ok {
		return ib
	}

	p.booksMu.Lock()
	defer p.booksMu.Unlock()
	if ib, ok = p.books[key]; ok {
		return ib
	}
	ib = &instrumentBook{book: book.New()}
	p.books[key] = ib
	return ib
}

func decode(raw models.RawDepthMessage) (*depthChange, error) {
	switch raw.Exchange {
	case "bybit":
		var evt models.BybitDepthResp
		if err := json.Unmarshal(raw.Data, &evt); err != nil {
			return nil, err
		}
		return &depthChange{
			symbol:    evt.Data.Symbol,
			eventTime: evt.Ts,
			snapshot:  evt.Type == "snapshot",
			bids:      pairsToEntries(evt.Data.Bids),
			asks:      pairsToEntries(evt.Data.Asks),
		}, nil
	case "kucoin":
		var evt models.KucoinDepthResp
		if err := json.Unmarshal(raw.Data, &evt); err != nil {
			return nil, err
		}
		return &depthChange{
			symbol:    evt.Symbol,
			eventTime: evt.Timestamp,
			bids:      evt.Bids,
			asks:      evt.Asks,
		}, nil
	case "okx":
		var evt models.OkxDepthResp
		if err := json.Unmarshal(raw.Data, &evt); err != nil {
			return nil, err
		}
		return &depthChange{
			symbol:    evt.Symbol,
			eventTime: evt.Timestamp,
			snapshot:  evt.Action == "snapshot",
			bids:      evt.Bids,
			asks:      evt.Asks,
		}, nil
	default:
		var evt models.BinanceDepthResp
		if err := json.Unmarshal(raw.Data, &evt); err != nil {
			return nil, err
		}
		return &depthChange{
			symbol:    evt.Symbol,
			eventTime: evt.Time,
			bids:      evt.Bids,
			asks:      evt.Asks,
		}, nil
	}
}

func pairsToEntries(pairs [][]string) []models.DepthEntry {
	entries := make([]models.DepthEntry, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		entries = append(entries, models.DepthEntry{Price: p[0], Quantity: p[1]})
	}
	return entries
}

func (p *DepthProcessor) metricsReporter(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.RLock()
			running := p.running
			p.mu.RUnlock()
			if !running {
				return
			}
			p.booksMu.RLock()
			bookCount := len(p.books)
			p.booksMu.RUnlock()
			p.log.WithComponent("depth_processor").WithFields(logger.Fields{
				"raw_channel_len":   len(p.channels.Raw),
				"raw_channel_cap":   cap(p.channels.Raw),
				"quote_channel_len": len(p.channels.Quote),
				"quote_channel_cap": cap(p.channels.Quote),
				"books":             bookCount,
			}).Info("depth processor channel sizes")
		}
	}
}
