package timestamp

import (
	"strconv"
	"time"
)

// Timestamp is milliseconds since the Unix epoch, the unit the gateway
// speaks in auth payloads.
type Timestamp int64

func Stamp(t time.Time) Timestamp {
	if t.IsZero() {
		return 0
	}
	return Timestamp(t.UnixNano() / 1e6)
}

func Now() Timestamp {
	return Stamp(time.Now())
}

func Milli(ms int64) Timestamp {
	return Timestamp(ms)
}

func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)*1e6).UTC()
}

func (t Timestamp) UnixMilli() int64 {
	return int64(t)
}

// Decimal is the plain base-10 form that gets concatenated into the
// signed auth message.
func (t Timestamp) Decimal() string {
	return strconv.FormatInt(int64(t), 10)
}

func (t Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp(int64(t) + d.Milliseconds())
}

func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(t-u) * time.Millisecond
}

func (t Timestamp) Format(layout string) string {
	return t.Time().Format(layout)
}

func (t Timestamp) S() string {
	if t == 0 {
		return "0"
	}
	return t.Format("2006-01-02_15:04:05.000")
}
