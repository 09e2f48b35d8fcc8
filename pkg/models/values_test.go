package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPairID(t *testing.T) {
	// EIP-55 reference vectors.
	checksummed := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	}

	for _, addr := range checksummed {
		id, err := NewPairID(8453, addr)
		require.NoError(t, err, addr)
		assert.Equal(t, addr, id.Address())
	}

	t.Run("lowercase is normalized to checksum form", func(t *testing.T) {
		id, err := NewPairID(1, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
		require.NoError(t, err)
		assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", id.Address())
	})

	t.Run("equality by normalized form", func(t *testing.T) {
		a, err := NewPairID(1, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
		require.NoError(t, err)
		b, err := NewPairID(1, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	tests := []struct {
		name    string
		chainID uint64
		address string
	}{
		{"zero chain id", 0, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{"missing prefix", 1, "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed00"},
		{"too short", 1, "0x5aAeb6"},
		{"not hex", 1, "0xzzzeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{"bad checksum", 1, "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPairID(tt.chainID, tt.address)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestPairIDText(t *testing.T) {
	id, err := NewPairID(8453, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)

	text, err := id.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "8453:0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", string(text))

	var back PairID
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, id, back)

	assert.Error(t, back.UnmarshalText([]byte("no-separator")))
}

func TestPriceValidation(t *testing.T) {
	_, err := NewPrice(decimal.NewFromInt(-1))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = NewPriceFromString("0.0000000000000000001") // 19 decimal places
	require.ErrorAs(t, err, &verr)

	_, err = NewPriceFromString("not-a-number")
	require.ErrorAs(t, err, &verr)

	p, err := NewPriceFromString("0.000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000001", p.String())
}

func TestPriceFromWei(t *testing.T) {
	p, err := PriceFromWei("1500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1.5", p.String())

	_, err = PriceFromWei("1.5")
	assert.Error(t, err)
	_, err = PriceFromWei("-1")
	assert.Error(t, err)
}

func TestVolumeArithmetic(t *testing.T) {
	a, err := NewVolumeFromString("1.25")
	require.NoError(t, err)
	b, err := NewVolumeFromString("0.75")
	require.NoError(t, err)

	assert.Equal(t, "2", a.Add(b).String())
	assert.Equal(t, "0.5", a.Sub(b).String())

	_, err = NewVolume(decimal.NewFromInt(-3))
	assert.Error(t, err)

	v, err := VolumeFromWei("250000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "0.25", v.String())
}

func TestPriceJSONRoundTrip(t *testing.T) {
	p, err := NewPriceFromString("0.0042")
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `"0.0042"`, string(data))

	var back Price
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, p.Cmp(back) == 0)

	assert.Error(t, json.Unmarshal([]byte(`"-5"`), &back))
}
