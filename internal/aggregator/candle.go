// Package aggregator holds the CPU-only aggregation state machines: the
// per-(pair, interval) candle series and the per-pair rolling market snapshot.
// Nothing in this package blocks on I/O; serialization of access is the
// coordinator's job.
package aggregator

import (
	"time"

	"curvefeed/pkg/models"
)

// OutcomeKind classifies the result of applying one event to a series.
type OutcomeKind int

const (
	// OutcomeAccepted means the event was folded into a bucket.
	OutcomeAccepted OutcomeKind = iota
	// OutcomeDuplicate means the event key was already applied to its bucket.
	OutcomeDuplicate
	// OutcomeStale means the event maps to a bucket behind the retention
	// horizon and was dropped.
	OutcomeStale
)

// Outcome reports the effect of one Apply call. Candle is a copy of the
// updated bucket; ClosedCandle is set when the event rolled the series
// forward and closed the previous bucket.
type Outcome struct {
	Kind         OutcomeKind
	Changed      bool
	Candle       *models.Candle
	ClosedCandle *models.Candle
}

// bucket pairs a candle with the bookkeeping needed for idempotent,
// order-tolerant folding: the set of applied event keys plus the sequence
// watermarks that decide open and close prices under reordering.
type bucket struct {
	candle  models.Candle
	applied map[models.EventKey]struct{}
	openSeq uint64
	walkSeq uint64 // highest sequence folded so far; owns the close price
}

// CandleSeries owns every retained bucket of one (pair, interval). It is not
// safe for concurrent use; the owning lane serializes access.
type CandleSeries struct {
	pair     models.PairID
	interval models.Interval
	retain   int64 // mutable history depth, in buckets behind the latest
	widthSec int64
	buckets  map[int64]*bucket
	latest   int64
	started  bool
}

func NewCandleSeries(pair models.PairID, interval models.Interval, retainBuckets int) *CandleSeries {
	if retainBuckets < 1 {
		retainBuckets = 1
	}
	return &CandleSeries{
		pair:     pair,
		interval: interval,
		retain:   int64(retainBuckets),
		widthSec: int64(interval.Width() / time.Second),
		buckets:  make(map[int64]*bucket),
	}
}

func (s *CandleSeries) Interval() models.Interval {
	return s.interval
}

// Apply folds one trade event into the series. Events may arrive out of
// timestamp order and more than once; both are tolerated, not just handled.
func (s *CandleSeries) Apply(ev models.TradeEvent) Outcome {
	start := s.interval.BucketStart(ev.Timestamp).Unix()

	if b, ok := s.buckets[start]; ok {
		if _, dup := b.applied[ev.Key()]; dup {
			return Outcome{Kind: OutcomeDuplicate}
		}
		s.fold(b, ev)
		c := b.candle
		return Outcome{Kind: OutcomeAccepted, Changed: true, Candle: &c}
	}

	if s.started && start < s.horizon() {
		return Outcome{Kind: OutcomeStale}
	}

	b := &bucket{
		candle: models.Candle{
			Pair:        s.pair,
			Interval:    s.interval,
			BucketStart: time.Unix(start, 0).UTC(),
		},
		applied: make(map[models.EventKey]struct{}),
	}

	var closed *models.Candle
	if !s.started || start > s.latest {
		// The previous bucket may already be closed by an earlier Flush.
		if prev := s.buckets[s.latest]; s.started && !prev.candle.Closed {
			prev.candle.Closed = true
			c := prev.candle
			closed = &c
		}
		s.latest = start
		s.started = true
	} else {
		// Late event for a bucket that never saw a trade while it was
		// current; it is already behind the stream, so it is born closed.
		b.candle.Closed = true
	}
	s.buckets[start] = b
	s.evict()

	s.fold(b, ev)
	c := b.candle
	return Outcome{Kind: OutcomeAccepted, Changed: true, Candle: &c, ClosedCandle: closed}
}

// fold accumulates one event into a bucket. Open belongs to the lowest
// sequence seen, close to the highest; high/low/volumes are order-free.
func (s *CandleSeries) fold(b *bucket, ev models.TradeEvent) {
	b.applied[ev.Key()] = struct{}{}

	c := &b.candle
	if c.TradeCount == 0 {
		c.Open = ev.Price
		c.High = ev.Price
		c.Low = ev.Price
		c.Close = ev.Price
		b.openSeq = ev.Sequence
		b.walkSeq = ev.Sequence
	} else {
		if ev.Price.Cmp(c.High) > 0 {
			c.High = ev.Price
		}
		if ev.Price.Cmp(c.Low) < 0 {
			c.Low = ev.Price
		}
		if ev.Sequence <= b.openSeq {
			c.Open = ev.Price
			b.openSeq = ev.Sequence
		}
		if ev.Sequence >= b.walkSeq {
			c.Close = ev.Price
			b.walkSeq = ev.Sequence
		}
	}

	c.Volume = c.Volume.Add(ev.Volume)
	c.QuoteVolume = c.QuoteVolume.Add(ev.QuoteVolume)
	if ev.Side == models.SideBuy {
		c.BuyVolume = c.BuyVolume.Add(ev.Volume)
	} else {
		c.SellVolume = c.SellVolume.Add(ev.Volume)
	}
	c.TradeCount++
}

// Flush closes the current bucket if the stream has moved past it according
// to the supplied horizon. Safe to re-invoke; already-closed buckets are
// untouched. Returns copies of the candles closed by this call.
func (s *CandleSeries) Flush(horizon time.Time) []models.Candle {
	if !s.started {
		return nil
	}
	b := s.buckets[s.latest]
	if b == nil || b.candle.Closed {
		return nil
	}
	if s.latest+s.widthSec > horizon.Unix() {
		return nil
	}
	b.candle.Closed = true
	c := b.candle
	return []models.Candle{c}
}

// Latest returns a copy of the current bucket's candle, if any.
func (s *CandleSeries) Latest() (models.Candle, bool) {
	if !s.started {
		return models.Candle{}, false
	}
	b := s.buckets[s.latest]
	if b == nil {
		return models.Candle{}, false
	}
	return b.candle, true
}

func (s *CandleSeries) horizon() int64 {
	return s.latest - s.retain*s.widthSec
}

// evict drops buckets behind the retention horizon along with their
// deduplication sets, bounding memory under at-least-once delivery.
func (s *CandleSeries) evict() {
	h := s.horizon()
	for start := range s.buckets {
		if start < h {
			delete(s.buckets, start)
		}
	}
}
