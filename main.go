package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"depthflow/config"
	"depthflow/internal/channel"
	"depthflow/logger"
	"depthflow/processor"
	"depthflow/reader/binance"
	"depthflow/reader/bybit"
	"depthflow/reader/kucoin"
	"depthflow/reader/okx"
	"depthflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Depthflow.Name,
		"version": cfg.Depthflow.Version,
		"depth":   cfg.Processor.Depth,
	}).Info("starting depthflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "", "")
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.QuoteBuffer,
	)
	defer channels.Close()

	go channels.StartMetricsReporting(ctx)

	var binanceReader *binance.Binance_Depth_Reader
	var bybitReader *bybit.Bybit_Depth_Reader
	var kucoinReader *kucoin.Kucoin_Depth_Reader
	var okxReader *okx.Okx_Depth_Reader

	if cfg.Source.Binance.Depth.Enabled {
		binanceReader = binance.Binance_Depth_NewReader(cfg, channels, cfg.Source.Binance.Depth.Symbols)
	}
	if cfg.Source.Bybit.Depth.Enabled {
		bybitReader = bybit.Bybit_Depth_NewReader(cfg, channels, cfg.Source.Bybit.Depth.Symbols)
	}
	if cfg.Source.Kucoin.Depth.Enabled {
		kucoinReader = kucoin.Kucoin_Depth_NewReader(cfg, channels, cfg.Source.Kucoin.Depth.Symbols)
	}
	if cfg.Source.Okx.Depth.Enabled {
		okxReader = okx.Okx_Depth_NewReader(cfg, channels, cfg.Source.Okx.Depth.Symbols)
	}
	if binanceReader == nil && bybitReader == nil && kucoinReader == nil && okxReader == nil {
		log.Error("no depth sources enabled; nothing to do")
		os.Exit(1)
	}

	depthProcessor, err := processor.NewDepthProcessor(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to create processor")
		os.Exit(1)
	}

	var consoleWriter *writer.ConsoleWriter
	var quoteWriter *writer.QuoteWriter

	switch {
	case cfg.Writer.Console.Enabled && cfg.Storage.S3.Enabled:
		// Both writers need the full quote stream, so split it.
		subs := channels.FanOutQuotes(ctx, 2)
		consoleWriter = writer.NewConsoleWriter(cfg, subs[0])
		quoteWriter, err = writer.NewQuoteWriter(cfg, subs[1])
		if err != nil {
			log.WithError(err).Error("failed to create S3 quote writer")
			os.Exit(1)
		}
	case cfg.Writer.Console.Enabled:
		consoleWriter = writer.NewConsoleWriter(cfg, channels.Quote)
	case cfg.Storage.S3.Enabled:
		quoteWriter, err = writer.NewQuoteWriter(cfg, channels.Quote)
		if err != nil {
			log.WithError(err).Error("failed to create S3 quote writer")
			os.Exit(1)
		}
	default:
		log.WithComponent("main").Warn("no writers enabled; quotes will be dropped")
	}

	var wg sync.WaitGroup

	if binanceReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := binanceReader.Binance_Depth_Start(ctx); err != nil {
				log.WithError(err).Warn("binance reader failed to start")
			}
		}()
	}
	if bybitReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bybitReader.Bybit_Depth_Start(ctx); err != nil {
				log.WithError(err).Warn("bybit reader failed to start")
			}
		}()
	}
	if kucoinReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := kucoinReader.Kucoin_Depth_Start(ctx); err != nil {
				log.WithError(err).Warn("kucoin reader failed to start")
			}
		}()
	}
	if okxReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := okxReader.Okx_Depth_Start(ctx); err != nil {
				log.WithError(err).Warn("okx reader failed to start")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := depthProcessor.Start(ctx); err != nil {
			log.WithError(err).Warn("processor failed to start")
		}
	}()

	if consoleWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consoleWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("console writer failed to start")
			}
		}()
	}
	if quoteWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := quoteWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("s3 quote writer failed to start")
			}
		}()
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if quoteWriter != nil {
		log.Info("stopping S3 quote writer")
		quoteWriter.Stop()
	}
	if consoleWriter != nil {
		log.Info("stopping console writer")
		consoleWriter.Stop()
	}

	log.Info("stopping processor")
	depthProcessor.Stop()

	if binanceReader != nil {
		log.Info("stopping binance reader")
		binanceReader.Binance_Depth_Stop()
	}
	if bybitReader != nil {
		log.Info("stopping bybit reader")
		bybitReader.Bybit_Depth_Stop()
	}
	if kucoinReader != nil {
		log.Info("stopping kucoin reader")
		kucoinReader.Kucoin_Depth_Stop()
	}
	if okxReader != nil {
		log.Info("stopping okx reader")
		okxReader.Okx_Depth_Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("depthflow stopped")
}
