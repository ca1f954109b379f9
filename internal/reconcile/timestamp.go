package reconcile

import (
	"strconv"
	"time"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

// minValidMillis is 2000-01-01T00:00:00Z. Anything earlier is treated as
// corrupt input rather than real history.
const minValidMillis = 946684800000

// sanityFloorYear guards the visible history against normalization
// fallbacks: days before this year are dropped from the merged feed.
const sanityFloorYear = 2000

const (
	secondsLow  = 1_000_000_000
	secondsHigh = 1_000_000_000_000
)

// NormalizeMillis coerces an arbitrary numeric timestamp into valid epoch
// millis usable for day bucketing:
//  1. ten-digit values are epoch seconds and are scaled to millis,
//  2. values before the 2000 sentinel collapse to now,
//  3. values more than 24h ahead collapse to today's local midnight, so a
//     slightly skewed clock keeps its same-day grouping.
//
// The result is idempotent: normalizing an already-normalized value is a
// no-op.
func NormalizeMillis(v int64, now time.Time, loc *time.Location) int64 {
	if v > secondsLow && v < secondsHigh {
		v *= 1000
	}
	if v < minValidMillis {
		return now.UnixMilli()
	}
	if v > now.Add(24*time.Hour).UnixMilli() {
		d := now.In(loc)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).UnixMilli()
	}
	return v
}

// normalizeStamp is NormalizeMillis for decoded wire timestamps. The
// lenient decoding already reduced RFC3339 and numeric strings to a
// number, and missing or unreadable inputs to 0.
func normalizeStamp(v activity.Timestamp, now time.Time, loc *time.Location) activity.Timestamp {
	return activity.Timestamp(NormalizeMillis(int64(v), now, loc))
}

// DayKey renders the device-local calendar date for a normalized
// timestamp. It is the only grouping key in the feed.
func DayKey(millis int64, loc *time.Location) string {
	return time.UnixMilli(millis).In(loc).Format("2006-01-02")
}

// dayYear extracts the year from a YYYY-MM-DD key, 0 if malformed.
func dayYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
