package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"curvefeed/internal/broadcast"
	"curvefeed/internal/cache"
	"curvefeed/internal/chain"
	"curvefeed/internal/common"
	"curvefeed/internal/config"
	"curvefeed/internal/engine"
	"curvefeed/internal/fanout"
	"curvefeed/pkg/models"
)

func main() {
	configPath := flag.String("config", common.DefaultConfigPath, "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("error_code", common.ErrCodeConfigLoadFailed.String()).
			Str("error_message", common.ErrMsgConfigLoadFailed.String()).
			Msg("Failed to load config")
	}

	// Set global log level from config
	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		log.Fatal().Str("log_level", cfg.LogLevel).Msg("Invalid log level in config, use: debug, info, warn, error")
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	intervals, err := cfg.GetIntervals()
	if err != nil {
		log.Fatal().
			Err(err).
			Str("error_code", common.ErrCodeConfigLoadFailed.String()).
			Str("error_message", common.ErrMsgConfigLoadFailed.String()).
			Msg("Invalid interval list in config")
	}

	store, err := cache.NewRedis(cfg.Redis.URL)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("error_code", common.ErrCodeCacheConnectFailed.String()).
			Str("error_message", common.ErrMsgCacheConnectFailed.String()).
			Msg("Failed to create cache client")
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Fatal().
			Err(err).
			Str("error_code", common.ErrCodeCacheConnectFailed.String()).
			Str("error_message", common.ErrMsgCacheConnectFailed.String()).
			Msg("Cache is unreachable")
	}

	pub, err := broadcast.Connect(cfg.NATS.URL, cfg.GetNATSReconnectWait(), cfg.NATS.MaxReconnects)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("error_code", common.ErrCodeBroadcastConnectFailed.String()).
			Str("error_message", common.ErrMsgBroadcastConnectFailed.String()).
			Msg("Failed to connect to broadcast broker")
	}

	deliverer := fanout.New(fanout.Config{
		QueueSize:     cfg.GetFanoutQueueSize(),
		RetainBuckets: cfg.GetRetainBuckets(),
	}, store, pub)
	deliverer.Start()

	coord := engine.New(engine.Config{
		Intervals:      intervals,
		RetainBuckets:  cfg.GetRetainBuckets(),
		SnapshotWindow: cfg.GetSnapshotWindow(),
		LaneQueueSize:  cfg.GetLaneQueueSize(),
		IdlePairAfter:  cfg.GetIdlePairTimeout(),
	}, deliverer)

	listener := chain.NewListener(chain.Config{
		URL:               cfg.Chain.WsURL,
		ChainID:           cfg.Chain.ChainID,
		PingInterval:      cfg.GetPingInterval(),
		ReconnectDelay:    cfg.GetReconnectInterval(),
		MaxReconnectDelay: cfg.GetMaxReconnectDelay(),
	}, coord)
	if err := listener.Connect(); err != nil {
		log.Fatal().
			Err(err).
			Str("error_code", common.ErrCodeChainConnectFailed.String()).
			Str("error_message", common.ErrMsgChainConnectFailed.String()).
			Msg("Failed to connect to chain relay")
	}

	flushDone := make(chan struct{})
	go runFlushTicker(coord, intervals, cfg.GetFlushInterval(), flushDone)

	log.Info().
		Str("ws_url", cfg.Chain.WsURL).
		Uint64("chain_id", cfg.Chain.ChainID).
		Int("intervals", len(intervals)).
		Msg("Curve feed listener started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	listener.Close()
	close(flushDone)
	coord.Close()
	deliverer.Close()
	pub.Close()
	store.Close()

	stats := coord.Stats()
	log.Info().
		Uint64("processed", stats.Processed).
		Uint64("duplicates", stats.Duplicates).
		Uint64("stale", stats.Stale).
		Uint64("rejected", stats.Rejected).
		Uint64("lane_drops", stats.LaneDrops).
		Msg("Listener stopped gracefully")
}

// runFlushTicker periodically closes candles for buckets the chain clock has
// moved past. The horizon trails the newest observed block timestamp by one
// smallest bucket so a still-filling bucket is never force closed.
func runFlushTicker(coord *engine.Coordinator, intervals []models.Interval, every time.Duration, done chan struct{}) {
	smallest := intervals[0]
	for _, iv := range intervals[1:] {
		if iv.Width() < smallest.Width() {
			smallest = iv
		}
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			high := coord.HighWater()
			if high.IsZero() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), every)
			err := coord.Flush(ctx, high.Add(-smallest.Width()))
			cancel()
			if err != nil && err != engine.ErrClosed {
				log.Warn().Err(err).Msg("Periodic flush did not complete")
			}
		}
	}
}
