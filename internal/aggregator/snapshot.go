package aggregator

import (
	"sort"
	"time"

	"curvefeed/pkg/models"
)

// SnapshotOutcome reports the effect of one Apply call on the tracker.
type SnapshotOutcome struct {
	Updated  bool
	Snapshot models.MarketSnapshot
}

type windowEntry struct {
	key    models.EventKey
	ts     int64 // unix seconds
	seq    uint64
	price  models.Price
	volume models.Volume
	quote  models.Volume
}

// SnapshotTracker maintains the rolling statistics window (24h by default)
// for one pair. Entries older than the window are evicted on every apply,
// amortized: the common case evicts zero or a handful of trades. Like the
// candle series it is single-writer; the owning lane serializes access.
type SnapshotTracker struct {
	pair    models.PairID
	window  int64 // seconds
	trades  []windowEntry
	applied map[models.EventKey]struct{}
	volume  models.Volume
	quote   models.Volume
	high    models.Price
	low     models.Price
}

func NewSnapshotTracker(pair models.PairID, window time.Duration) *SnapshotTracker {
	return &SnapshotTracker{
		pair:    pair,
		window:  int64(window / time.Second),
		applied: make(map[models.EventKey]struct{}),
	}
}

// Apply folds one trade into the window, evicting whatever the new event's
// timestamp pushes out. Duplicates and trades already older than the window
// tail leave the snapshot untouched.
func (t *SnapshotTracker) Apply(ev models.TradeEvent) SnapshotOutcome {
	if _, dup := t.applied[ev.Key()]; dup {
		return SnapshotOutcome{Updated: false, Snapshot: t.Snapshot()}
	}

	ts := ev.Timestamp.Unix()
	if n := len(t.trades); n > 0 && ts < t.trades[n-1].ts-t.window {
		return SnapshotOutcome{Updated: false, Snapshot: t.Snapshot()}
	}

	entry := windowEntry{
		key:    ev.Key(),
		ts:     ts,
		seq:    ev.Sequence,
		price:  ev.Price,
		volume: ev.Volume,
		quote:  ev.QuoteVolume,
	}
	t.insert(entry)
	t.applied[ev.Key()] = struct{}{}

	t.volume = t.volume.Add(ev.Volume)
	t.quote = t.quote.Add(ev.QuoteVolume)
	if len(t.trades) == 1 || ev.Price.Cmp(t.high) > 0 {
		t.high = ev.Price
	}
	if len(t.trades) == 1 || ev.Price.Cmp(t.low) < 0 {
		t.low = ev.Price
	}

	t.evict(t.trades[len(t.trades)-1].ts - t.window)

	return SnapshotOutcome{Updated: true, Snapshot: t.Snapshot()}
}

// insert keeps trades ordered by (timestamp, sequence). Appending is the
// fast path; stragglers take a binary-search insert.
func (t *SnapshotTracker) insert(e windowEntry) {
	n := len(t.trades)
	if n == 0 || !entryBefore(e, t.trades[n-1]) {
		t.trades = append(t.trades, e)
		return
	}
	i := sort.Search(n, func(i int) bool { return entryBefore(e, t.trades[i]) })
	t.trades = append(t.trades, windowEntry{})
	copy(t.trades[i+1:], t.trades[i:])
	t.trades[i] = e
}

func entryBefore(a, b windowEntry) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	return a.seq < b.seq
}

// evict drops entries strictly older than cutoff, subtracting their volume
// contribution and rescanning high/low only when an extremum left the window.
func (t *SnapshotTracker) evict(cutoff int64) {
	rescan := false
	i := 0
	for i < len(t.trades) && t.trades[i].ts < cutoff {
		e := t.trades[i]
		t.volume = t.volume.Sub(e.volume)
		t.quote = t.quote.Sub(e.quote)
		delete(t.applied, e.key)
		if e.price.Cmp(t.high) == 0 || e.price.Cmp(t.low) == 0 {
			rescan = true
		}
		i++
	}
	if i == 0 {
		return
	}
	t.trades = append(t.trades[:0], t.trades[i:]...)

	if len(t.trades) == 0 {
		t.high = models.Price{}
		t.low = models.Price{}
		t.volume = models.Volume{}
		t.quote = models.Volume{}
		return
	}
	if rescan {
		t.high = t.trades[0].price
		t.low = t.trades[0].price
		for _, e := range t.trades[1:] {
			if e.price.Cmp(t.high) > 0 {
				t.high = e.price
			}
			if e.price.Cmp(t.low) < 0 {
				t.low = e.price
			}
		}
	}
}

// Snapshot builds the current window aggregate. First/last prices follow the
// window's oldest and newest trades for percent-change computation.
func (t *SnapshotTracker) Snapshot() models.MarketSnapshot {
	s := models.MarketSnapshot{
		Pair:        t.pair,
		TradeCount:  len(t.trades),
		Volume:      t.volume,
		QuoteVolume: t.quote,
	}
	if len(t.trades) == 0 {
		return s
	}
	newest := t.trades[len(t.trades)-1]
	s.WindowStart = time.Unix(newest.ts-t.window, 0).UTC()
	s.High = t.high
	s.Low = t.low
	s.FirstPrice = t.trades[0].price
	s.LastPrice = newest.price
	return s
}
