package order

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const (
	numberAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberSuffixLen = 6
	numberDayLayout = "060102"

	// Draws allowed per Next call while the filter keeps reporting hits.
	maxNumberDraws = 8
)

// NumberGenerator issues order numbers of the form YYMMDD-XXXXXX, where the
// suffix is six random base36 characters. Numbers already issued by this
// process on the current day are remembered in a bloom filter and avoided.
// Uniqueness across processes is left to storage.
type NumberGenerator struct {
	now      func() time.Time
	loc      *time.Location
	random   io.Reader
	capacity uint

	mu   sync.Mutex
	day  string
	seen *bloom.BloomFilter
}

// NumberOption configures a NumberGenerator.
type NumberOption func(*NumberGenerator)

// WithNumberClock sets the clock the date prefix is taken from.
func WithNumberClock(now func() time.Time) NumberOption {
	return func(g *NumberGenerator) { g.now = now }
}

// WithNumberLocation sets the business time zone for the date prefix.
func WithNumberLocation(loc *time.Location) NumberOption {
	return func(g *NumberGenerator) { g.loc = loc }
}

// WithNumberRandom replaces the random source.
func WithNumberRandom(r io.Reader) NumberOption {
	return func(g *NumberGenerator) { g.random = r }
}

// WithDailyCapacity sizes the per-day filter for the expected order volume.
func WithDailyCapacity(n uint) NumberOption {
	return func(g *NumberGenerator) { g.capacity = n }
}

// NewNumberGenerator returns a generator using crypto/rand and the local clock.
func NewNumberGenerator(opts ...NumberOption) *NumberGenerator {
	g := &NumberGenerator{
		now:      time.Now,
		loc:      time.Local,
		random:   rand.Reader,
		capacity: 10_000,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Next returns a fresh order number.
func (g *NumberGenerator) Next() (string, error) {
	day := g.now().In(g.loc).Format(numberDayLayout)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.day != day || g.seen == nil {
		g.day = day
		g.seen = bloom.NewWithEstimates(g.capacity, 0.001)
	}

	var number string
	for range maxNumberDraws {
		suffix, err := g.suffix()
		if err != nil {
			return "", err
		}
		number = day + "-" + suffix
		if !g.seen.TestString(number) {
			break
		}
	}
	g.seen.AddString(number)
	return number, nil
}

// suffix draws base36 characters by rejection sampling so every character
// is equally likely.
func (g *NumberGenerator) suffix() (string, error) {
	const limit = 256 - 256%len(numberAlphabet)

	out := make([]byte, 0, numberSuffixLen)
	buf := make([]byte, numberSuffixLen*2)
	for len(out) < numberSuffixLen {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", errors.Wrap(err, "read random")
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, numberAlphabet[int(b)%len(numberAlphabet)])
			if len(out) == numberSuffixLen {
				break
			}
		}
	}
	return string(out), nil
}
