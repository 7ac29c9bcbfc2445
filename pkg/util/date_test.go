package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("garbage", def).Equal(def))
}

func TestAlignRange(t *testing.T) {
	from := time.Date(2024, 10, 10, 10, 12, 34, 0, time.UTC)
	to := time.Date(2024, 10, 10, 11, 3, 59, 0, time.UTC)

	af, at := AlignRange(from, to, 5*time.Minute)
	assert.Equal(t, time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC), af)
	assert.Equal(t, time.Date(2024, 10, 10, 11, 0, 0, 0, time.UTC), at)

	// Non-positive step falls back to minute alignment.
	af, at = AlignRange(from, to, 0)
	assert.Equal(t, time.Date(2024, 10, 10, 10, 12, 0, 0, time.UTC), af)
	assert.Equal(t, time.Date(2024, 10, 10, 11, 3, 0, 0, time.UTC), at)
}
