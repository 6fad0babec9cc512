package timestamp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"quoting/internal/common/timestamp"
)

func TestStamp(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 30, 45, 123_000_000, time.UTC)
	ts := timestamp.Stamp(now)
	assert.Equal(t, now.UnixMilli(), ts.UnixMilli())
	assert.Equal(t, now, ts.Time())
	assert.EqualValues(t, 0, timestamp.Stamp(time.Time{}))
}

func TestDecimal(t *testing.T) {
	assert.Equal(t, "1234567890123", timestamp.Milli(1234567890123).Decimal())
	assert.Equal(t, "0", timestamp.Milli(0).Decimal())
}

func TestArithmetic(t *testing.T) {
	ts := timestamp.Milli(1000)
	assert.Equal(t, timestamp.Milli(1250), ts.Add(250*time.Millisecond))
	assert.Equal(t, 750*time.Millisecond, timestamp.Milli(1750).Sub(ts))
}
