// Package timecontrol lists the matchmaking buckets and formats clock readings.
package timecontrol

import (
	"fmt"
	"strings"
	"time"
)

// Bucket is a named time control with its own matchmaking queue.
type Bucket struct {
	Key       string
	Initial   time.Duration
	Increment time.Duration
}

var buckets = []Bucket{
	{Key: "3+0", Initial: 3 * time.Minute},
	{Key: "3+2", Initial: 3 * time.Minute, Increment: 2 * time.Second},
	{Key: "5+0", Initial: 5 * time.Minute},
	{Key: "5+3", Initial: 5 * time.Minute, Increment: 3 * time.Second},
	{Key: "10+0", Initial: 10 * time.Minute},
	{Key: "15+10", Initial: 15 * time.Minute, Increment: 10 * time.Second},
}

// All returns the buckets in display order.
func All() []Bucket {
	return append([]Bucket(nil), buckets...)
}

// Keys returns bucket keys in display order.
func Keys() []string {
	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = b.Key
	}
	return out
}

// Lookup finds a bucket by key.
func Lookup(key string) (Bucket, bool) {
	key = strings.TrimSpace(key)
	for _, b := range buckets {
		if b.Key == key {
			return b, true
		}
	}
	return Bucket{}, false
}

// DefaultLowTime is the threshold under which tenths are displayed.
const DefaultLowTime = 20 * time.Second

// FormatClock renders remaining milliseconds as m:ss, or m:ss.t below lowTime.
// Values are truncated, never rounded up.
func FormatClock(ms int64, lowTime time.Duration) string {
	if ms < 0 {
		ms = 0
	}
	totalSeconds := ms / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	if ms < lowTime.Milliseconds() {
		tenths := (ms % 1000) / 100
		return fmt.Sprintf("%d:%02d.%d", minutes, seconds, tenths)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
