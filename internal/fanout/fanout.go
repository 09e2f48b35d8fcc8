// Package fanout drains processing results from the engine and drives the
// two external delivery interfaces: the cache store (source of truth for
// late subscribers, writes retried) and the broadcast channel (best effort).
// It is decoupled from the engine by a bounded queue so downstream latency
// can never stall ingestion; when the queue is full the newest results are
// dropped with a warning.
package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"curvefeed/internal/broadcast"
	"curvefeed/internal/cache"
	"curvefeed/internal/common"
	"curvefeed/internal/engine"
	"curvefeed/pkg/models"
)

// Config is the delivery tuning, read once at startup.
type Config struct {
	QueueSize     int
	RetainBuckets int // sizes candle TTLs to match in-process retention
	WriteRetries  int
	RetryBase     time.Duration
	RetryMax      time.Duration
	WriteTimeout  time.Duration
}

// Deliverer implements engine.ResultSink.
type Deliverer struct {
	cfg   Config
	store cache.Store
	pub   broadcast.Publisher

	queue   chan engine.ProcessingResult
	wg      sync.WaitGroup
	dropped atomic.Uint64

	mu     sync.RWMutex // guards closed against a Deliver racing Close
	closed bool
}

func New(cfg Config, store cache.Store, pub broadcast.Publisher) *Deliverer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = common.DefaultFanoutQueueSize
	}
	if cfg.RetainBuckets <= 0 {
		cfg.RetainBuckets = common.DefaultRetainBuckets
	}
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = common.DefaultCacheWriteRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = common.CacheRetryBaseDelay
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = common.CacheRetryMaxDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = common.CacheWriteTimeout
	}
	return &Deliverer{
		cfg:   cfg,
		store: store,
		pub:   pub,
		queue: make(chan engine.ProcessingResult, cfg.QueueSize),
	}
}

func (d *Deliverer) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for res := range d.queue {
			d.process(res)
		}
	}()
}

// Deliver enqueues a result for delivery. Never blocks.
func (d *Deliverer) Deliver(res engine.ProcessingResult) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- res:
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("error_code", common.ErrCodeQueueFull.String()).
			Str("error_message", common.ErrMsgQueueFull.String()).
			Str("pair", res.Pair.String()).
			Msg("Dropped notification batch")
	}
}

// Dropped reports how many result batches were shed since startup.
func (d *Deliverer) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting results, drains the queue, and returns once the
// worker has delivered the backlog.
func (d *Deliverer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

type outbound struct {
	subject string
	payload []byte
}

// marketPayload adds the derived percent move the chart frontends read.
type marketPayload struct {
	models.MarketSnapshot
	PriceChangePercent string `json:"price_change_percent"`
}

func (d *Deliverer) process(res engine.ProcessingResult) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	// Cache writes first: the cache is the source of truth for late
	// subscribers, broadcast below is best effort.
	batch := make([]outbound, 0, len(res.Changes)+1)
	for _, ch := range res.Changes {
		switch ch.Kind {
		case models.CandleUpdated, models.CandleClosed:
			payload, err := json.Marshal(ch.Candle)
			if err != nil {
				continue
			}
			key := cache.CandleKey(ch.Candle.Pair, ch.Candle.Interval, ch.Candle.BucketStart)
			d.setWithRetry(ctx, key, payload, d.candleTTL(ch.Candle.Interval))
			batch = append(batch, outbound{broadcast.SubjectCandle(ch.Candle.Pair, ch.Candle.Interval), payload})
		case models.SnapshotUpdated:
			payload, err := json.Marshal(marketPayload{
				MarketSnapshot:     *ch.Snapshot,
				PriceChangePercent: ch.Snapshot.PriceChangePercent().String(),
			})
			if err != nil {
				continue
			}
			d.setWithRetry(ctx, cache.MarketKey(ch.Snapshot.Pair), payload, common.MarketSnapshotTTL)
			batch = append(batch, outbound{broadcast.SubjectMarket(ch.Snapshot.Pair), payload})
		}
	}

	if res.Event.TxHash != "" {
		if payload, err := json.Marshal(res.Event); err == nil {
			d.setWithRetry(ctx, cache.LatestTradeKey(res.Pair), payload, common.LatestTradeTTL)
			batch = append(batch, outbound{broadcast.SubjectTrade(res.Pair), payload})
		}
	}

	for _, msg := range batch {
		if err := d.pub.Publish(msg.subject, msg.payload); err != nil {
			log.Warn().
				Err(err).
				Str("error_code", common.ErrCodeBroadcastPublishFailed.String()).
				Str("error_message", common.ErrMsgBroadcastPublishFailed.String()).
				Str("subject", msg.subject).
				Msg("Publish failed")
		}
	}
}

// candleTTL keeps closed buckets readable for as long as they stay mutable
// in process, with a floor so fast intervals do not vanish mid-chart.
func (d *Deliverer) candleTTL(interval models.Interval) time.Duration {
	ttl := interval.Width() * time.Duration(d.cfg.RetainBuckets)
	if ttl < common.MinCandleTTL {
		ttl = common.MinCandleTTL
	}
	return ttl
}

func (d *Deliverer) setWithRetry(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	delay := d.cfg.RetryBase
	var err error
	for attempt := 0; attempt <= d.cfg.WriteRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > d.cfg.RetryMax {
				delay = d.cfg.RetryMax
			}
		}
		if err = d.store.Set(ctx, key, payload, ttl); err == nil {
			return
		}
	}
	log.Warn().
		Err(err).
		Str("error_code", common.ErrCodeCacheWriteFailed.String()).
		Str("error_message", common.ErrMsgCacheWriteFailed.String()).
		Str("key", key).
		Msg("Cache write failed after retries")
}
