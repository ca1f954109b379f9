package activity

import (
	"encoding/json"
	"strconv"
	"time"
)

// Timestamp is an epoch instant as the various client generations encode
// it on the wire: epoch millis, epoch seconds, a numeric string, or an
// RFC3339 string. Decoding is lenient; anything unreadable becomes 0,
// the missing marker, which normalization later collapses to "now". It
// marshals as a plain number.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = 0
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Timestamp(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = Timestamp(n)
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		*t = Timestamp(ts.UnixMilli())
	}
	return nil
}
