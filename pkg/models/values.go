package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

// MaxDecimalPlaces is the finest precision carried by Price and Volume.
// Chain amounts are denominated in wei (10^-18), anything finer is malformed.
const MaxDecimalPlaces = 18

// ValidationError reports a malformed value in an incoming event. Events
// carrying one are rejected, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PairID identifies a bonding-curve trading pair: chain id plus the token
// contract address in EIP-55 checksummed form. Equality is by normalized form.
type PairID struct {
	chainID uint64
	address string
}

// NewPairID validates and normalizes the address. Lowercase and uppercase
// input is accepted and checksummed; mixed-case input must already carry a
// valid EIP-55 checksum.
func NewPairID(chainID uint64, address string) (PairID, error) {
	if chainID == 0 {
		return PairID{}, &ValidationError{Field: "chain_id", Reason: "must be positive"}
	}
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return PairID{}, &ValidationError{Field: "address", Reason: "must be 0x followed by 40 hex characters"}
	}
	hexPart := address[2:]
	hasUpper, hasLower := false, false
	for i := 0; i < len(hexPart); i++ {
		c := hexPart[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
			hasLower = true
		case c >= 'A' && c <= 'F':
			hasUpper = true
		default:
			return PairID{}, &ValidationError{Field: "address", Reason: "not hexadecimal"}
		}
	}
	normalized := checksumAddress(hexPart)
	if hasUpper && hasLower && normalized != "0x"+hexPart {
		return PairID{}, &ValidationError{Field: "address", Reason: "bad EIP-55 checksum"}
	}
	return PairID{chainID: chainID, address: normalized}, nil
}

func (p PairID) ChainID() uint64 { return p.chainID }
func (p PairID) Address() string { return p.address }
func (p PairID) IsZero() bool    { return p.chainID == 0 }

func (p PairID) String() string {
	return strconv.FormatUint(p.chainID, 10) + ":" + p.address
}

func (p PairID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PairID) UnmarshalText(data []byte) error {
	s := string(data)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return &ValidationError{Field: "pair", Reason: "expected chainID:address"}
	}
	chainID, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return &ValidationError{Field: "pair", Reason: "bad chain id"}
	}
	id, err := NewPairID(chainID, s[i+1:])
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// checksumAddress applies EIP-55 casing to a 40-char hex address body.
func checksumAddress(hexPart string) string {
	lower := strings.ToLower(hexPart)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}

var weiScale = decimal.New(1, 18)

// Price is a non-negative fixed-point price. Trade events additionally
// require a strictly positive price, enforced in TradeEvent.Validate.
type Price struct {
	v decimal.Decimal
}

func NewPrice(d decimal.Decimal) (Price, error) {
	if err := checkMagnitude("price", d); err != nil {
		return Price{}, err
	}
	return Price{v: d}, nil
}

func NewPriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, &ValidationError{Field: "price", Reason: "not a decimal"}
	}
	return NewPrice(d)
}

// PriceFromWei converts an integer wei amount into an 18-decimal price.
func PriceFromWei(wei string) (Price, error) {
	d, err := weiToDecimal("price", wei)
	if err != nil {
		return Price{}, err
	}
	return Price{v: d}, nil
}

func (p Price) Decimal() decimal.Decimal { return p.v }
func (p Price) IsZero() bool             { return p.v.IsZero() }
func (p Price) Cmp(o Price) int          { return p.v.Cmp(o.v) }
func (p Price) String() string           { return p.v.String() }

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.v.String() + `"`), nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	v, err := NewPriceFromString(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Volume is a non-negative fixed-point quantity of the base or quote asset.
type Volume struct {
	v decimal.Decimal
}

func NewVolume(d decimal.Decimal) (Volume, error) {
	if err := checkMagnitude("volume", d); err != nil {
		return Volume{}, err
	}
	return Volume{v: d}, nil
}

func NewVolumeFromString(s string) (Volume, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Volume{}, &ValidationError{Field: "volume", Reason: "not a decimal"}
	}
	return NewVolume(d)
}

// VolumeFromWei converts an integer wei amount into an 18-decimal volume.
func VolumeFromWei(wei string) (Volume, error) {
	d, err := weiToDecimal("volume", wei)
	if err != nil {
		return Volume{}, err
	}
	return Volume{v: d}, nil
}

func (v Volume) Decimal() decimal.Decimal { return v.v }
func (v Volume) IsZero() bool             { return v.v.IsZero() }
func (v Volume) Add(o Volume) Volume      { return Volume{v: v.v.Add(o.v)} }
func (v Volume) Sub(o Volume) Volume      { return Volume{v: v.v.Sub(o.v)} }
func (v Volume) String() string           { return v.v.String() }

func (v Volume) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.v.String() + `"`), nil
}

func (v *Volume) UnmarshalJSON(data []byte) error {
	vol, err := NewVolumeFromString(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*v = vol
	return nil
}

func checkMagnitude(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	if d.Exponent() < -MaxDecimalPlaces {
		return &ValidationError{Field: field, Reason: "exceeds 18 decimal places"}
	}
	return nil
}

func weiToDecimal(field, wei string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(wei)
	if err != nil || d.Exponent() < 0 {
		return decimal.Decimal{}, &ValidationError{Field: field, Reason: "wei amount must be a non-negative integer"}
	}
	if d.IsNegative() {
		return decimal.Decimal{}, &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return d.DivRound(weiScale, MaxDecimalPlaces), nil
}
