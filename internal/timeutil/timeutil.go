// Package timeutil normalizes the heterogeneous timestamp
// representations seen on the wire into a single comparable
// epoch-millisecond value. The server sends RFC 3339 strings, older
// clients send epoch seconds, the engine itself works in epoch millis.
package timeutil

import (
	"fmt"
	"time"
)

// secondsCutoff separates epoch-second from epoch-millisecond values.
// Anything below 1e12 is treated as seconds, which covers all dates
// before the year 2286.
const secondsCutoff = int64(1e12)

// Now is the clock used for all timestamping. Swappable in tests.
var Now = time.Now

// NowMillis returns the current time in epoch milliseconds.
func NowMillis() int64 {
	return Now().UnixMilli()
}

// ToEpochMillis converts a timestamp of unknown representation into
// epoch milliseconds. Accepted inputs: int64/int/float64 epoch seconds
// or milliseconds, RFC 3339 strings (with or without sub-second
// precision), and time.Time. Zero values normalize to 0.
func ToEpochMillis(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case time.Time:
		if t.IsZero() {
			return 0, nil
		}
		return t.UnixMilli(), nil
	case int64:
		return normalizeNumeric(t), nil
	case int:
		return normalizeNumeric(int64(t)), nil
	case float64:
		return normalizeNumeric(int64(t)), nil
	case string:
		if t == "" {
			return 0, nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UnixMilli(), nil
			}
		}
		return 0, fmt.Errorf("unparseable timestamp %q", t)
	default:
		return 0, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func normalizeNumeric(n int64) int64 {
	if n <= 0 {
		return 0
	}

	if n < secondsCutoff {
		return n * 1000
	}

	return n
}
