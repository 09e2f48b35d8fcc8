package models

import (
	"time"
)

// Interval is the closed set of candle bucket widths. Bucket arithmetic and
// retention are interval-specific, so the set is not dynamically extensible.
type Interval int

const (
	Interval1m Interval = iota
	Interval5m
	Interval15m
	Interval1h
	Interval4h
	Interval1d
)

var intervalNames = [...]string{"1m", "5m", "15m", "1h", "4h", "1d"}

var intervalWidths = [...]time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

// AllIntervals returns every supported interval, narrowest first.
func AllIntervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d}
}

func ParseInterval(s string) (Interval, error) {
	for i, name := range intervalNames {
		if name == s {
			return Interval(i), nil
		}
	}
	return 0, &ValidationError{Field: "interval", Reason: "unknown interval " + s}
}

func (i Interval) String() string {
	if i < 0 || int(i) >= len(intervalNames) {
		return "unknown"
	}
	return intervalNames[i]
}

func (i Interval) Width() time.Duration {
	return intervalWidths[i]
}

// BucketStart floors ts to the start of the bucket containing it.
func (i Interval) BucketStart(ts time.Time) time.Time {
	w := int64(i.Width() / time.Second)
	sec := ts.Unix()
	return time.Unix(sec-sec%w, 0).UTC()
}

func (i Interval) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Interval) UnmarshalText(data []byte) error {
	v, err := ParseInterval(string(data))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
