package channel

import (
	"context"
	"sync"
	"time"

	"depthflow/logger"
	"depthflow/models"
)

type ChannelStats struct {
	RawSent      int64
	QuoteSent    int64
	RawDropped   int64
	QuoteDropped int64
}

// Channels carries messages between the pipeline stages: Raw moves depth
// messages from the exchange readers to the processor, Quote moves computed
// quotes from the processor to the writers.
type Channels struct {
	Raw   chan models.RawDepthMessage
	Quote chan models.QuoteMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, quoteBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:   make(chan models.RawDepthMessage, rawBufferSize),
		Quote: make(chan models.QuoteMessage, quoteBufferSize),
		log:   log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"quote_buffer_size": quoteBufferSize,
	}).Info("channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Quote)
	c.log.WithComponent("channels").Info("channels closed")
}

// SendRaw forwards a raw depth message without blocking. A full buffer
// drops the message so a slow processor never stalls the feed readers.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawDepthMessage) bool {
	select {
	case c.Raw <- msg:
		c.incrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementRawDropped()
		return false
	}
}

// SendQuote forwards a computed quote without blocking, dropping on a full
// buffer.
func (c *Channels) SendQuote(ctx context.Context, msg models.QuoteMessage) bool {
	select {
	case c.Quote <- msg:
		c.incrementQuoteSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementQuoteDropped()
		return false
	}
}

func (c *Channels) Stats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

func (c *Channels) incrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementQuoteSent() {
	c.statsMutex.Lock()
	c.stats.QuoteSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementQuoteDropped() {
	c.statsMutex.Lock()
	c.stats.QuoteDropped++
	c.statsMutex.Unlock()
}

// FanOutQuotes replicates the quote stream to n subscriber channels so
// several writers each see every quote. Subscriber channels inherit the
// quote buffer capacity; a full subscriber drops rather than blocking the
// others. The forwarder stops when the context is cancelled or the quote
// channel closes, closing all subscriber channels on the way out.
func (c *Channels) FanOutQuotes(ctx context.Context, n int) []chan models.QuoteMessage {
	subscribers := make([]chan models.QuoteMessage, n)
	for i := range subscribers {
		subscribers[i] = make(chan models.QuoteMessage, cap(c.Quote))
	}

	go func() {
		defer func() {
			for _, sub := range subscribers {
				close(sub)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-c.Quote:
				if !ok {
					return
				}
				for _, sub := range subscribers {
					select {
					case sub <- msg:
					default:
						c.incrementQuoteDropped()
					}
				}
			}
		}
	}()

	return subscribers
}

// StartMetricsReporting logs channel occupancy and send/drop counters every
// 30 seconds until the context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := c.Stats()
				c.log.WithComponent("channels").WithFields(logger.Fields{
					"raw_len":       len(c.Raw),
					"raw_cap":       cap(c.Raw),
					"quote_len":     len(c.Quote),
					"quote_cap":     cap(c.Quote),
					"raw_sent":      stats.RawSent,
					"quote_sent":    stats.QuoteSent,
					"raw_dropped":   stats.RawDropped,
					"quote_dropped": stats.QuoteDropped,
				}).Info("channel metrics")
			}
		}
	}()
}
