package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"

	appconfig "depthflow/config"
	"depthflow/logger"
	"depthflow/models"
)

// ConsoleWriter prints computed quotes to stdout. Feeds can update many
// times a second, so output is rate limited per instrument; intermediate
// quotes are simply skipped, the next allowed print always shows current
// state.
type ConsoleWriter struct {
	cfg       *appconfig.Config
	quoteChan <-chan models.QuoteMessage
	out       io.Writer
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.Mutex
	running   bool
	log       *logger.Log

	limiters  map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	precision int32
}

// NewConsoleWriter creates a console writer printing at most
// quotes_per_second lines per instrument.
func NewConsoleWriter(cfg *appconfig.Config, quoteChan <-chan models.QuoteMessage) *ConsoleWriter {
	limit := rate.Limit(cfg.Writer.Console.QuotesPerSecond)
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Writer.Console.Burst
	if burst < 1 {
		burst = 1
	}
	precision := cfg.Writer.Console.DisplayPrecision
	if precision <= 0 {
		precision = 2
	}
	return &ConsoleWriter{
		cfg:       cfg,
		quoteChan: quoteChan,
		out:       os.Stdout,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		limiters:  make(map[string]*rate.Limiter),
		limit:     limit,
		burst:     burst,
		precision: precision,
	}
}

// Start launches the printing worker.
func (w *ConsoleWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("console writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.wg.Add(1)
	go w.worker()

	w.log.WithComponent("console_writer").Info("console writer started")
	return nil
}

// Stop waits for the worker to finish.
func (w *ConsoleWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.log.WithComponent("console_writer").Info("console writer stopped")
}

func (w *ConsoleWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case quote, ok := <-w.quoteChan:
			if !ok {
				return
			}
			if w.limiter(quote.Exchange + "|" + quote.Symbol).Allow() {
				w.print(quote)
			}
		}
	}
}

func (w *ConsoleWriter) limiter(key string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.limiters[key]
	if !ok {
		l = rate.NewLimiter(w.limit, w.burst)
		w.limiters[key] = l
	}
	return l
}

// print renders one quote line. Sides that could not fill the configured
// depth show "n/a" instead of a misleading zero; the spread is printed
// regardless, with the absent side treated as zero.
func (w *ConsoleWriter) print(quote models.QuoteMessage) {
	bid := "n/a"
	if quote.BidValid {
		bid = quote.BidPrice.StringFixed(w.precision)
	}
	ask := "n/a"
	if quote.AskValid {
		ask = quote.AskPrice.StringFixed(w.precision)
	}

	fmt.Fprintf(w.out, "[%s %s] Best Bid: %s, Best Ask: %s, Spread: %s\n",
		quote.Exchange, quote.Symbol, bid, ask, quote.Spread.StringFixed(w.precision))
}
