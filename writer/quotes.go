package writer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "depthflow/config"
	"depthflow/logger"
	"depthflow/models"
)

// quoteRecord defines the parquet schema for computed quotes. Prices are
// stored as DOUBLE for analytics friendliness; the exact decimal values
// only exist in flight, rounding at the storage boundary is accepted.
type quoteRecord struct {
	QuoteID      string  `parquet:"name=quote_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Exchange     string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol       string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Depth        float64 `parquet:"name=depth, type=DOUBLE"`
	BidPrice     float64 `parquet:"name=bid_price, type=DOUBLE"`
	AskPrice     float64 `parquet:"name=ask_price, type=DOUBLE"`
	Spread       float64 `parquet:"name=spread, type=DOUBLE"`
	BidValid     bool    `parquet:"name=bid_valid, type=BOOLEAN"`
	AskValid     bool    `parquet:"name=ask_valid, type=BOOLEAN"`
	BidLevels    int32   `parquet:"name=bid_levels, type=INT32"`
	AskLevels    int32   `parquet:"name=ask_levels, type=INT32"`
	EventTime    int64   `parquet:"name=event_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ReceivedTime int64   `parquet:"name=received_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ComputedAt   int64   `parquet:"name=computed_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// memFileWriter keeps the parquet file in memory until upload.
type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// QuoteWriter consumes computed quotes and archives them to S3 in parquet
// format. Data is buffered per exchange and symbol and flushed periodically
// based on the configured flush interval or when a buffer reaches max size.
type QuoteWriter struct {
	cfg         *appconfig.Config
	quoteChan   <-chan models.QuoteMessage
	s3Client    *s3.Client
	buffer      map[string][]models.QuoteMessage
	mu          sync.Mutex
	flushTicker *time.Ticker
	ctx         context.Context
	wg          *sync.WaitGroup
	running     bool
	log         *logger.Log
}

// NewQuoteWriter initializes a quote writer with AWS credentials.
func NewQuoteWriter(cfg *appconfig.Config, quoteChan <-chan models.QuoteMessage) (*QuoteWriter, error) {
	log := logger.GetLogger()
	ctx := context.Background()
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})
	return &QuoteWriter{
		cfg:       cfg,
		quoteChan: quoteChan,
		s3Client:  s3Client,
		buffer:    make(map[string][]models.QuoteMessage),
		wg:        &sync.WaitGroup{},
		log:       log,
	}, nil
}

// Start launches the consumer worker and flush ticker.
func (w *QuoteWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("quote writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.flushTicker = time.NewTicker(w.cfg.Writer.Buffer.FlushInterval)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.worker()

	w.wg.Add(1)
	go w.flushLoop()

	w.log.WithComponent("quote_writer").Info("quote writer started")
	return nil
}

// Stop waits for workers and flushes remaining data.
func (w *QuoteWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()
	w.flushBuffers()
	w.log.WithComponent("quote_writer").Info("quote writer stopped")
}

func (w *QuoteWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case quote, ok := <-w.quoteChan:
			if !ok {
				return
			}
			w.addQuote(quote)
		}
	}
}

func (w *QuoteWriter) addQuote(quote models.QuoteMessage) {
	key := w.bufferKey(quote.Exchange, quote.Symbol)
	w.mu.Lock()
	w.buffer[key] = append(w.buffer[key], quote)
	size := len(w.buffer[key])
	w.mu.Unlock()

	if w.cfg.Writer.Buffer.MaxSize > 0 && size >= w.cfg.Writer.Buffer.MaxSize {
		w.flushKey(key)
	}
}

func (w *QuoteWriter) bufferKey(exchange, symbol string) string {
	return exchange + "|" + symbol
}

func (w *QuoteWriter) flushKey(key string) {
	w.mu.Lock()
	quotes, ok := w.buffer[key]
	if !ok || len(quotes) == 0 {
		w.mu.Unlock()
		return
	}
	delete(w.buffer, key)
	w.mu.Unlock()

	parts := strings.SplitN(key, "|", 2)
	w.writeBatch(parts[0], parts[1], quotes)
}

func (w *QuoteWriter) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.flushBuffers()
			return
		case <-w.flushTicker.C:
			w.flushBuffers()
		}
	}
}

func (w *QuoteWriter) flushBuffers() {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]models.QuoteMessage)
	w.mu.Unlock()

	for key, quotes := range buffers {
		if len(quotes) == 0 {
			continue
		}
		parts := strings.SplitN(key, "|", 2)
		w.writeBatch(parts[0], parts[1], quotes)
	}
}

func (w *QuoteWriter) writeBatch(exchange, symbol string, quotes []models.QuoteMessage) {
	start := time.Now()
	data, size, err := w.createParquet(quotes)
	if err != nil {
		w.log.WithComponent("quote_writer").WithError(err).Error("create parquet failed")
		return
	}
	key := w.s3Key(exchange, symbol, start)
	if err := w.upload(key, data); err != nil {
		w.log.WithComponent("quote_writer").WithError(err).Error("upload to s3 failed")
		return
	}
	duration := time.Since(start)
	fields := logger.Fields{
		"s3_key":      key,
		"records":     len(quotes),
		"bytes":       size,
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
	}
	if duration > 0 {
		fields["throughput_bytes_per_sec"] = float64(size) / duration.Seconds()
	}
	w.log.WithComponent("quote_writer").WithFields(fields).Info("quote batch uploaded")
	logger.IncrementS3WriteQuotes(size)
}

func (w *QuoteWriter) createParquet(quotes []models.QuoteMessage) ([]byte, int64, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(quoteRecord), 4)
	if err != nil {
		return nil, 0, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, q := range quotes {
		rec := quoteRecord{
			QuoteID:      q.QuoteID,
			Exchange:     q.Exchange,
			Symbol:       q.Symbol,
			Depth:        q.Depth.InexactFloat64(),
			BidPrice:     q.BidPrice.InexactFloat64(),
			AskPrice:     q.AskPrice.InexactFloat64(),
			Spread:       q.Spread.InexactFloat64(),
			BidValid:     q.BidValid,
			AskValid:     q.AskValid,
			BidLevels:    int32(q.BidLevels),
			AskLevels:    int32(q.AskLevels),
			EventTime:    q.EventTime,
			ReceivedTime: q.ReceivedTime,
			ComputedAt:   q.ComputedAt.UnixMilli(),
		}
		if err := pw.Write(rec); err != nil {
			return nil, 0, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, 0, err
	}
	return mw.Bytes(), int64(len(mw.Bytes())), nil
}

func (w *QuoteWriter) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.cfg.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	return err
}

func (w *QuoteWriter) s3Key(exchange, symbol string, ts time.Time) string {
	return fmt.Sprintf("quotes/exchange=%s/symbol=%s/date=%s/%s_%s.parquet",
		exchange,
		symbol,
		ts.UTC().Format("2006-01-02"),
		ts.UTC().Format("150405"),
		uuid.New().String(),
	)
}
