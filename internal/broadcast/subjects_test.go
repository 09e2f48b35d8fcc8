package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvefeed/pkg/models"
)

func TestSubjects(t *testing.T) {
	pair, err := models.NewPairID(8453, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)

	// Addresses are lowercased so subscribers never need checksum casing.
	assert.Equal(t,
		"curve.candle.8453.0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed.1m",
		SubjectCandle(pair, models.Interval1m))
	assert.Equal(t,
		"curve.market.8453.0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		SubjectMarket(pair))
	assert.Equal(t,
		"curve.trade.8453.0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		SubjectTrade(pair))
}

func TestSubjectPatterns(t *testing.T) {
	assert.Equal(t, "curve.candle.>", SubjectPatternAllCandles())
	assert.Equal(t, "curve.market.>", SubjectPatternAllMarkets())
}
