package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsReader    int64
	errorsProcessor int64
	errorsWriter    int64
	warnsReader     int64
	warnsProcessor  int64
	warnsWriter     int64
	depthReads      int64
	updatesApplied  int64
	invalidUpdates  int64
	quotesComputed  int64
	s3QuoteWrites   int64
	retries         int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	switch {
	case strings.Contains(component, "reader"):
		atomic.AddInt64(&warnsReader, 1)
	case strings.Contains(component, "processor"):
		atomic.AddInt64(&warnsProcessor, 1)
	case strings.Contains(component, "writer"):
		atomic.AddInt64(&warnsWriter, 1)
	}
}

func recordError(component string) {
	switch {
	case strings.Contains(component, "reader"):
		atomic.AddInt64(&errorsReader, 1)
	case strings.Contains(component, "processor"):
		atomic.AddInt64(&errorsProcessor, 1)
	case strings.Contains(component, "writer"):
		atomic.AddInt64(&errorsWriter, 1)
	}
}

// IncrementDepthRead records one raw depth message received from a feed.
func IncrementDepthRead(size int) {
	atomic.AddInt64(&depthReads, 1)
	recordChannel("depth_ws", size)
}

// IncrementUpdatesApplied records level updates applied to a book.
func IncrementUpdatesApplied(n int) {
	atomic.AddInt64(&updatesApplied, int64(n))
}

// IncrementInvalidUpdates records update entries rejected by validation.
func IncrementInvalidUpdates(n int) {
	atomic.AddInt64(&invalidUpdates, int64(n))
}

// IncrementQuoteComputed records one quote produced by the pricer.
func IncrementQuoteComputed() {
	atomic.AddInt64(&quotesComputed, 1)
}

// IncrementS3WriteQuotes records bytes of quote parquet uploaded to S3.
func IncrementS3WriteQuotes(size int64) {
	atomic.AddInt64(&s3QuoteWrites, 1)
	recordChannel("s3_quote_write", int(size))
}

// IncrementRetryCount records one websocket reconnect attempt.
func IncrementRetryCount() {
	atomic.AddInt64(&retries, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and channel statistics and
// publishes the same counters to CloudWatch when the client is configured.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fields := Fields{
		"errors_reader":    atomic.LoadInt64(&errorsReader),
		"errors_processor": atomic.LoadInt64(&errorsProcessor),
		"errors_writer":    atomic.LoadInt64(&errorsWriter),
		"warns_reader":     atomic.LoadInt64(&warnsReader),
		"warns_processor":  atomic.LoadInt64(&warnsProcessor),
		"warns_writer":     atomic.LoadInt64(&warnsWriter),
		"depth_reads":      atomic.LoadInt64(&depthReads),
		"updates_applied":  atomic.LoadInt64(&updatesApplied),
		"invalid_updates":  atomic.LoadInt64(&invalidUpdates),
		"quotes_computed":  atomic.LoadInt64(&quotesComputed),
		"s3_quote_writes":  atomic.LoadInt64(&s3QuoteWrites),
		"ws_retries":       atomic.LoadInt64(&retries),
		"goroutines":       runtime.NumGoroutine(),
		"heap_mb":          int64(memStats.HeapAlloc) / 1024 / 1024,
		"channels":         channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	counters := map[string]int64{
		"DepthReads":     atomic.LoadInt64(&depthReads),
		"UpdatesApplied": atomic.LoadInt64(&updatesApplied),
		"InvalidUpdates": atomic.LoadInt64(&invalidUpdates),
		"QuotesComputed": atomic.LoadInt64(&quotesComputed),
		"S3QuoteWrites":  atomic.LoadInt64(&s3QuoteWrites),
		"WsRetries":      atomic.LoadInt64(&retries),
		"ErrorsReader":   atomic.LoadInt64(&errorsReader),
		"WarnsReader":    atomic.LoadInt64(&warnsReader),
	}

	var data []cwtypes.MetricDatum
	for name, value := range counters {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(value)),
		})
	}

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
