package domain

import (
	"fmt"
	"time"
)

// Timeframe represents the duration of a single bar interval.
type Timeframe string

// Supported bar timeframes.
const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
}

// Timeframes returns the supported timeframes, shortest first.
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe30m, Timeframe1h, Timeframe1d, Timeframe1w}
}

// ParseTimeframe converts s into a Timeframe, rejecting unsupported values.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("unsupported timeframe %q (supported: %v)", s, Timeframes())
	}
	return tf, nil
}

// IsValid reports whether tf is one of the supported timeframes.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration returns the interval length of one bar at this timeframe.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func (tf Timeframe) String() string {
	return string(tf)
}
