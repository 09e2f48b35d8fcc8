package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	for _, iv := range AllIntervals() {
		parsed, err := ParseInterval(iv.String())
		require.NoError(t, err)
		assert.Equal(t, iv, parsed)
	}

	_, err := ParseInterval("2m")
	assert.Error(t, err)
}

func TestIntervalWidth(t *testing.T) {
	assert.Equal(t, time.Minute, Interval1m.Width())
	assert.Equal(t, 5*time.Minute, Interval5m.Width())
	assert.Equal(t, 15*time.Minute, Interval15m.Width())
	assert.Equal(t, time.Hour, Interval1h.Width())
	assert.Equal(t, 4*time.Hour, Interval4h.Width())
	assert.Equal(t, 24*time.Hour, Interval1d.Width())
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2024, 3, 7, 14, 37, 42, 123, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 7, 14, 37, 0, 0, time.UTC), Interval1m.BucketStart(ts))
	assert.Equal(t, time.Date(2024, 3, 7, 14, 35, 0, 0, time.UTC), Interval5m.BucketStart(ts))
	assert.Equal(t, time.Date(2024, 3, 7, 14, 30, 0, 0, time.UTC), Interval15m.BucketStart(ts))
	assert.Equal(t, time.Date(2024, 3, 7, 14, 0, 0, 0, time.UTC), Interval1h.BucketStart(ts))
	assert.Equal(t, time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC), Interval4h.BucketStart(ts))
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), Interval1d.BucketStart(ts))

	// A timestamp on the boundary is its own bucket start.
	boundary := time.Date(2024, 3, 7, 14, 35, 0, 0, time.UTC)
	assert.Equal(t, boundary, Interval5m.BucketStart(boundary))
}

func TestTradeEventValidate(t *testing.T) {
	pair, err := NewPairID(8453, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	price, _ := NewPriceFromString("0.001")
	vol, _ := NewVolumeFromString("100")

	valid := TradeEvent{
		Pair:      pair,
		Side:      SideBuy,
		Price:     price,
		Volume:    vol,
		Timestamp: time.Unix(1700000000, 0),
		Sequence:  42,
		TxHash:    "0xab4f00c0ffee4f00c0ffee4f00c0ffee4f00c0ffee4f00c0ffee4f00c0ffee4f",
	}
	require.NoError(t, valid.Validate())

	zeroPrice := valid
	zeroPrice.Price = Price{}
	assert.Error(t, zeroPrice.Validate())

	noPair := valid
	noPair.Pair = PairID{}
	assert.Error(t, noPair.Validate())

	noTS := valid
	noTS.Timestamp = time.Time{}
	assert.Error(t, noTS.Validate())

	badHash := valid
	badHash.TxHash = "0x1234"
	assert.Error(t, badHash.Validate())
}
