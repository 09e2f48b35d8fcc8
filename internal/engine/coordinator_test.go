package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvefeed/pkg/models"
)

var t0 = time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)

type captureSink struct {
	mu      sync.Mutex
	results []ProcessingResult
}

func (s *captureSink) Deliver(res ProcessingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
}

func (s *captureSink) all() []ProcessingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProcessingResult, len(s.results))
	copy(out, s.results)
	return out
}

func mustPair(t *testing.T, address string) models.PairID {
	t.Helper()
	pair, err := models.NewPairID(8453, address)
	require.NoError(t, err)
	return pair
}

func testEvent(t *testing.T, pair models.PairID, price string, ts time.Time, seq uint64) models.TradeEvent {
	t.Helper()
	p, err := models.NewPriceFromString(price)
	require.NoError(t, err)
	v, err := models.NewVolumeFromString("1")
	require.NoError(t, err)
	return models.TradeEvent{
		Pair:      pair,
		Side:      models.SideBuy,
		Price:     p,
		Volume:    v,
		Timestamp: ts,
		Sequence:  seq,
		TxHash:    fmt.Sprintf("0x%064x", seq),
	}
}

// barrier drains every lane so the sink's view is complete.
func barrier(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Flush(ctx, time.Time{}))
}

func TestProcessFansOutToAllIntervals(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{}, sink)
	defer c.Close()

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0, 1)))
	barrier(t, c)

	results := sink.all()
	require.Len(t, results, 1)

	updated, snapshots := 0, 0
	for _, ch := range results[0].Changes {
		switch ch.Kind {
		case models.CandleUpdated:
			updated++
			require.NotNil(t, ch.Candle)
		case models.SnapshotUpdated:
			snapshots++
			require.NotNil(t, ch.Snapshot)
		}
	}
	assert.Equal(t, len(models.AllIntervals()), updated)
	assert.Equal(t, 1, snapshots)
}

func TestDuplicateEventProducesNoResult(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{}, sink)
	defer c.Close()

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	ev := testEvent(t, pair, "10", t0, 1)
	require.NoError(t, c.Process(ev))
	require.NoError(t, c.Process(ev))
	barrier(t, c)

	assert.Len(t, sink.all(), 1)
	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Equal(t, uint64(1), stats.Duplicates)
}

func TestMalformedEventRejected(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{}, sink)
	defer c.Close()

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	ev := testEvent(t, pair, "10", t0, 1)
	ev.TxHash = "junk"

	err := c.Process(ev)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint64(1), c.Stats().Rejected)
	assert.Empty(t, sink.all())
}

func TestIntervalIndependence(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{Intervals: []models.Interval{models.Interval1m, models.Interval1h}}, sink)
	defer c.Close()

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0, 1)))
	require.NoError(t, c.Process(testEvent(t, pair, "11", t0.Add(2*time.Minute), 2)))
	barrier(t, c)

	results := sink.all()
	require.Len(t, results, 2)

	// The second event rolls the 1m series but folds into the same 1h bucket.
	var closed1m, updated1m, updated1h *models.Candle
	for i := range results[1].Changes {
		ch := results[1].Changes[i]
		if ch.Candle == nil {
			continue
		}
		switch {
		case ch.Kind == models.CandleClosed && ch.Candle.Interval == models.Interval1m:
			closed1m = ch.Candle
		case ch.Kind == models.CandleUpdated && ch.Candle.Interval == models.Interval1m:
			updated1m = ch.Candle
		case ch.Kind == models.CandleUpdated && ch.Candle.Interval == models.Interval1h:
			updated1h = ch.Candle
		case ch.Kind == models.CandleClosed && ch.Candle.Interval == models.Interval1h:
			t.Fatalf("1h bucket must not close at +2m")
		}
	}
	require.NotNil(t, closed1m)
	assert.Equal(t, 1, closed1m.TradeCount)
	require.NotNil(t, updated1m)
	assert.Equal(t, 1, updated1m.TradeCount)
	require.NotNil(t, updated1h)
	assert.Equal(t, 2, updated1h.TradeCount)
}

func TestSamePairSerialized(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{Intervals: []models.Interval{models.Interval1h}}, sink)
	defer c.Close()

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")

	const workers, perWorker = 10, 20
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				seq := uint64(w*perWorker + i + 1)
				ev := testEvent(t, pair, "10", t0.Add(time.Duration(seq)*time.Second), seq)
				assert.NoError(t, c.Process(ev))
			}
		}(w)
	}
	wg.Wait()
	barrier(t, c)

	// Serialized folding means no lost updates: some result must show every
	// trade accounted for in the single 1h bucket.
	max := 0
	for _, res := range sink.all() {
		for _, ch := range res.Changes {
			if ch.Kind == models.CandleUpdated && ch.Candle.TradeCount > max {
				max = ch.Candle.TradeCount
			}
		}
	}
	assert.Equal(t, workers*perWorker, max)
	assert.Equal(t, uint64(workers*perWorker), c.Stats().Processed)
}

func TestPairsDoNotBlockEachOther(t *testing.T) {
	pairA := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	pairB := mustPair(t, "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")

	release := make(chan struct{})
	gotB := make(chan struct{})
	sink := sinkFunc(func(res ProcessingResult) {
		if res.Pair == pairA {
			<-release
			return
		}
		close(gotB)
	})

	c := New(Config{Intervals: []models.Interval{models.Interval1m}}, sink)

	require.NoError(t, c.Process(testEvent(t, pairA, "10", t0, 1)))
	require.NoError(t, c.Process(testEvent(t, pairB, "20", t0, 2)))

	select {
	case <-gotB:
	case <-time.After(5 * time.Second):
		t.Fatal("pair B stalled behind pair A's slow delivery")
	}
	close(release)
	c.Close()
}

type sinkFunc func(ProcessingResult)

func (f sinkFunc) Deliver(res ProcessingResult) { f(res) }

// blockingSink stalls every delivery until released, signalling once when the
// first delivery is underway.
func blockingSink() (sink sinkFunc, entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	sink = func(ProcessingResult) {
		once.Do(func() { close(entered) })
		<-release
	}
	return sink, entered, release
}

func TestFullLaneRejectsEvent(t *testing.T) {
	sink, entered, release := blockingSink()
	c := New(Config{Intervals: []models.Interval{models.Interval1m}, LaneQueueSize: 1}, sink)

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")

	// First event occupies the lane goroutine inside the sink, the second
	// fills the queue, the third has nowhere to go.
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0, 1)))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("lane never delivered the first event")
	}
	require.NoError(t, c.Process(testEvent(t, pair, "11", t0.Add(time.Second), 2)))

	err := c.Process(testEvent(t, pair, "12", t0.Add(2*time.Second), 3))
	assert.ErrorIs(t, err, ErrLaneFull)
	assert.Equal(t, uint64(1), c.Stats().LaneDrops)

	close(release)
	c.Close()

	// The queued events still made it through; only the third was shed.
	assert.Equal(t, uint64(2), c.Stats().Processed)
}

func TestFlushReturnsOnCancelledContext(t *testing.T) {
	sink, entered, release := blockingSink()
	c := New(Config{Intervals: []models.Interval{models.Interval1m}}, sink)

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0, 1)))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("lane never delivered the first event")
	}

	// The lane is stuck in delivery, so the flush barrier cannot complete.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Flush(ctx, time.Time{}), context.Canceled)

	close(release)
	c.Close()
}

func TestFlushClosesQuietCandles(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{}, sink)
	defer c.Close()

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0.Add(30*time.Second), 1)))

	ctx := context.Background()
	require.NoError(t, c.Flush(ctx, t0.Add(2*time.Minute)))

	var closed []models.Interval
	for _, res := range sink.all() {
		for _, ch := range res.Changes {
			if ch.Kind == models.CandleClosed {
				closed = append(closed, ch.Candle.Interval)
			}
		}
	}
	// Only the 1m bucket ended before the horizon.
	assert.Equal(t, []models.Interval{models.Interval1m}, closed)

	// Re-flushing at the same horizon is a no-op.
	before := len(sink.all())
	require.NoError(t, c.Flush(ctx, t0.Add(2*time.Minute)))
	assert.Equal(t, before, len(sink.all()))
}

func TestIdleLaneEviction(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{IdlePairAfter: time.Millisecond}, sink)
	defer c.Close()

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0, 1)))
	barrier(t, c)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Flush(context.Background(), time.Time{}))

	c.mu.Lock()
	lanes := len(c.lanes)
	c.mu.Unlock()
	assert.Equal(t, 0, lanes)

	// A fresh event rebuilds the lane transparently.
	require.NoError(t, c.Process(testEvent(t, pair, "11", t0.Add(time.Second), 2)))
	barrier(t, c)
	assert.Equal(t, uint64(2), c.Stats().Processed)
}

func TestHighWater(t *testing.T) {
	c := New(Config{}, &captureSink{})
	defer c.Close()

	assert.True(t, c.HighWater().IsZero())

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0.Add(time.Hour), 2)))
	require.NoError(t, c.Process(testEvent(t, pair, "10", t0, 1)))

	assert.Equal(t, t0.Add(time.Hour), c.HighWater())
}

func TestCloseDrainsBacklog(t *testing.T) {
	sink := &captureSink{}
	c := New(Config{Intervals: []models.Interval{models.Interval1m}}, sink)

	pair := mustPair(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	for i := 1; i <= 50; i++ {
		require.NoError(t, c.Process(testEvent(t, pair, "10", t0.Add(time.Duration(i)*time.Second), uint64(i))))
	}
	c.Close()

	assert.Len(t, sink.all(), 50)
	assert.Equal(t, ErrClosed, c.Process(testEvent(t, pair, "10", t0, 99)))
}
