// Package engine routes validated trade events to the aggregation state of
// their pair. Each pair owns a lane: a goroutine plus a bounded channel that
// serializes every mutation of that pair's candle series and snapshot
// tracker. Different pairs run fully in parallel; the same pair never does.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"curvefeed/internal/aggregator"
	"curvefeed/internal/common"
	"curvefeed/pkg/models"
)

// ErrLaneFull is returned when a pair's lane queue is saturated. The event is
// dropped rather than stalling ingestion.
var ErrLaneFull = errors.New("pair lane queue full")

// ErrClosed is returned once the coordinator has been shut down.
var ErrClosed = errors.New("coordinator closed")

// ProcessingResult carries everything one applied event changed, in
// notification order: closes before updates per interval, snapshot last.
type ProcessingResult struct {
	Pair    models.PairID
	Event   models.TradeEvent
	Changes []models.ChangeNotification
}

// ResultSink receives processing results for cache and broadcast delivery.
// Implementations must not block; slow downstreams shed load on their side.
type ResultSink interface {
	Deliver(res ProcessingResult)
}

// Config is the static shape of the engine, read once at startup.
type Config struct {
	Intervals      []models.Interval
	RetainBuckets  int
	SnapshotWindow time.Duration
	LaneQueueSize  int
	IdlePairAfter  time.Duration
}

// Stats are monotonically increasing event counters.
type Stats struct {
	Processed  uint64
	Duplicates uint64
	Stale      uint64
	Rejected   uint64
	LaneDrops  uint64
}

type laneMsg struct {
	ev    *models.TradeEvent
	flush *flushReq
	stop  bool
}

type flushReq struct {
	horizon time.Time
	done    chan struct{}
}

type lane struct {
	pair     models.PairID
	ch       chan laneMsg
	series   []*aggregator.CandleSeries
	snapshot *aggregator.SnapshotTracker
	lastSeen int64 // unix nano, written only under the coordinator mutex
}

// Coordinator is the single entry point for trade events and the owner of
// the per-pair aggregator registry (created on first event, evicted on
// inactivity by the periodic flush).
type Coordinator struct {
	cfg  Config
	sink ResultSink

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup

	highWater atomic.Int64 // latest chain timestamp seen, unix seconds

	processed  atomic.Uint64
	duplicates atomic.Uint64
	stale      atomic.Uint64
	rejected   atomic.Uint64
	laneDrops  atomic.Uint64
}

func New(cfg Config, sink ResultSink) *Coordinator {
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = models.AllIntervals()
	}
	if cfg.RetainBuckets <= 0 {
		cfg.RetainBuckets = common.DefaultRetainBuckets
	}
	if cfg.SnapshotWindow <= 0 {
		cfg.SnapshotWindow = common.DefaultSnapshotWindowHours * time.Hour
	}
	if cfg.LaneQueueSize <= 0 {
		cfg.LaneQueueSize = common.DefaultLaneQueueSize
	}
	return &Coordinator{
		cfg:   cfg,
		sink:  sink,
		lanes: make(map[string]*lane),
	}
}

// Process validates ev and hands it to its pair's lane. It never blocks: a
// full lane rejects the event with ErrLaneFull.
func (c *Coordinator) Process(ev models.TradeEvent) error {
	if err := ev.Validate(); err != nil {
		c.rejected.Add(1)
		log.Warn().
			Err(err).
			Str("error_code", common.ErrCodeEventRejected.String()).
			Str("error_message", common.ErrMsgEventRejected.String()).
			Str("tx_hash", ev.TxHash).
			Msg("Rejected trade event")
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	l := c.lanes[ev.Pair.String()]
	if l == nil {
		l = c.startLane(ev.Pair)
	}
	l.lastSeen = time.Now().UnixNano()

	select {
	case l.ch <- laneMsg{ev: &ev}:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.laneDrops.Add(1)
		log.Warn().
			Str("error_code", common.ErrCodeLaneFull.String()).
			Str("error_message", common.ErrMsgLaneFull.String()).
			Str("pair", ev.Pair.String()).
			Msg("Dropped trade event")
		return ErrLaneFull
	}

	ts := ev.Timestamp.Unix()
	for {
		cur := c.highWater.Load()
		if ts <= cur || c.highWater.CompareAndSwap(cur, ts) {
			break
		}
	}
	return nil
}

// startLane is called with c.mu held.
func (c *Coordinator) startLane(pair models.PairID) *lane {
	l := &lane{
		pair:     pair,
		ch:       make(chan laneMsg, c.cfg.LaneQueueSize),
		snapshot: aggregator.NewSnapshotTracker(pair, c.cfg.SnapshotWindow),
	}
	for _, iv := range c.cfg.Intervals {
		l.series = append(l.series, aggregator.NewCandleSeries(pair, iv, c.cfg.RetainBuckets))
	}
	c.lanes[pair.String()] = l
	c.wg.Add(1)
	go c.runLane(l)
	log.Debug().Str("pair", pair.String()).Msg("Started pair lane")
	return l
}

func (c *Coordinator) runLane(l *lane) {
	defer c.wg.Done()
	for msg := range l.ch {
		switch {
		case msg.stop:
			return
		case msg.ev != nil:
			c.applyEvent(l, *msg.ev)
		case msg.flush != nil:
			c.applyFlush(l, msg.flush.horizon)
			close(msg.flush.done)
		}
	}
}

func (c *Coordinator) applyEvent(l *lane, ev models.TradeEvent) {
	res := ProcessingResult{Pair: l.pair, Event: ev}
	duplicate, stale := false, false

	for _, s := range l.series {
		out := s.Apply(ev)
		switch out.Kind {
		case aggregator.OutcomeAccepted:
			if out.ClosedCandle != nil {
				res.Changes = append(res.Changes, models.ChangeNotification{
					Kind:   models.CandleClosed,
					Candle: out.ClosedCandle,
				})
			}
			res.Changes = append(res.Changes, models.ChangeNotification{
				Kind:   models.CandleUpdated,
				Candle: out.Candle,
			})
		case aggregator.OutcomeDuplicate:
			duplicate = true
		case aggregator.OutcomeStale:
			stale = true
			log.Warn().
				Str("error_code", common.ErrCodeStaleEvent.String()).
				Str("error_message", common.ErrMsgStaleEvent.String()).
				Str("pair", l.pair.String()).
				Str("interval", s.Interval().String()).
				Time("ts", ev.Timestamp).
				Msg("Dropped late trade event")
		}
	}

	if out := l.snapshot.Apply(ev); out.Updated {
		snap := out.Snapshot
		res.Changes = append(res.Changes, models.ChangeNotification{
			Kind:     models.SnapshotUpdated,
			Snapshot: &snap,
		})
	}

	if duplicate {
		c.duplicates.Add(1)
	}
	if stale {
		c.stale.Add(1)
	}
	c.processed.Add(1)

	if len(res.Changes) > 0 {
		c.sink.Deliver(res)
	}
}

func (c *Coordinator) applyFlush(l *lane, horizon time.Time) {
	res := ProcessingResult{Pair: l.pair}
	for _, s := range l.series {
		for _, candle := range s.Flush(horizon) {
			cc := candle
			res.Changes = append(res.Changes, models.ChangeNotification{
				Kind:   models.CandleClosed,
				Candle: &cc,
			})
		}
	}
	if len(res.Changes) > 0 {
		c.sink.Deliver(res)
	}
}

// Flush force-closes candles whose bucket window ended before horizon, for
// pairs that would otherwise stay open through quiet periods. It doubles as
// a barrier: it returns after every lane has drained the events queued ahead
// of it. Also evicts lanes idle longer than the configured timeout.
func (c *Coordinator) Flush(ctx context.Context, horizon time.Time) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	reqs := make([]*flushReq, 0, len(c.lanes))
	for _, l := range c.lanes {
		req := &flushReq{horizon: horizon, done: make(chan struct{})}
		select {
		case l.ch <- laneMsg{flush: req}:
			reqs = append(reqs, req)
		default:
			// Lane is saturated with real events; it will close the bucket
			// itself when the stream rolls forward, or on the next tick.
		}
	}
	c.mu.Unlock()

	for _, req := range reqs {
		select {
		case <-req.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.evictIdle()
	return nil
}

func (c *Coordinator) evictIdle() {
	if c.cfg.IdlePairAfter <= 0 {
		return
	}
	cutoff := time.Now().Add(-c.cfg.IdlePairAfter).UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for key, l := range c.lanes {
		if l.lastSeen < cutoff {
			l.ch <- laneMsg{stop: true}
			delete(c.lanes, key)
			log.Info().Str("pair", key).Msg("Evicted idle pair lane")
		}
	}
}

// HighWater is the latest chain timestamp observed across all pairs, the
// engine's only notion of "now".
func (c *Coordinator) HighWater() time.Time {
	ts := c.highWater.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Processed:  c.processed.Load(),
		Duplicates: c.duplicates.Load(),
		Stale:      c.stale.Load(),
		Rejected:   c.rejected.Load(),
		LaneDrops:  c.laneDrops.Load(),
	}
}

// Close stops every lane after it drains its backlog and waits for them.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, l := range c.lanes {
		l.ch <- laneMsg{stop: true}
	}
	c.lanes = make(map[string]*lane)
	c.mu.Unlock()

	c.wg.Wait()
}
