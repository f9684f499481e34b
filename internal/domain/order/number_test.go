package order

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(b byte, n int) []byte { return bytes.Repeat([]byte{b}, n) }

func TestNumberGenerator_Format(t *testing.T) {
	g := NewNumberGenerator(
		WithNumberClock(func() time.Time { return testClock }),
		WithNumberLocation(time.UTC),
	)

	seen := make(map[string]bool)
	for range 200 {
		n, err := g.Next()
		require.NoError(t, err)
		assert.Regexp(t, orderNumberRe, n)
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

func TestNumberGenerator_BusinessTimeZone(t *testing.T) {
	// 20:00 UTC is already the next day in GMT+7.
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	g := NewNumberGenerator(
		WithNumberClock(func() time.Time { return now }),
		WithNumberLocation(time.FixedZone("GMT+7", 7*3600)),
	)

	n, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "260315", n[:6])
}

func TestNumberGenerator_RedrawsIssuedNumber(t *testing.T) {
	now := testClock
	var random bytes.Buffer
	random.Write(repeat(0, 12)) // first number
	random.Write(repeat(0, 12)) // same draw again, rejected by the filter
	random.Write(repeat(1, 12))
	random.Write(repeat(0, 12)) // next day, filter reset

	g := NewNumberGenerator(
		WithNumberClock(func() time.Time { return now }),
		WithNumberLocation(time.UTC),
		WithNumberRandom(&random),
	)

	n, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "260314-000000", n)

	n, err = g.Next()
	require.NoError(t, err)
	assert.Equal(t, "260314-111111", n)

	now = now.Add(24 * time.Hour)
	n, err = g.Next()
	require.NoError(t, err)
	assert.Equal(t, "260315-000000", n)
}

func TestNumberGenerator_RejectionSampling(t *testing.T) {
	random := bytes.NewReader(append(repeat(255, 6), repeat(35, 6)...))
	g := NewNumberGenerator(
		WithNumberClock(func() time.Time { return testClock }),
		WithNumberLocation(time.UTC),
		WithNumberRandom(random),
	)

	n, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "260314-ZZZZZZ", n)
}

func TestNumberGenerator_RandomFailure(t *testing.T) {
	g := NewNumberGenerator(WithNumberRandom(bytes.NewReader(nil)))

	_, err := g.Next()
	require.Error(t, err)
}
