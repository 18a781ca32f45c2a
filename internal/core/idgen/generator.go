// Package idgen issues 64-bit identifiers without a central sequencer.
//
// An id is the number of seconds since 2000-01-01T00:00:00Z in the high 32 bits
// and a per-day, per-prefix counter from the KV store in the low 32 bits.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/seckill-cache/internal/metrics"
	"github.com/rl1809/seckill-cache/internal/port"
)

const (
	// EpochOffset is 2000-01-01T00:00:00Z in Unix seconds.
	EpochOffset int64 = 946684800

	seqBits = 32
	seqMax  = 1<<seqBits - 1

	keyPrefix  = "icr:"
	dateLayout = "2006:01:02"
)

// ErrSequenceOverflow means a prefix issued more than 2^32-1 ids in one day.
var ErrSequenceOverflow = errors.New("idgen: daily sequence exhausted")

type Generator struct {
	kv      port.KVStore
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

func NewGenerator(kv port.KVStore, opts ...Option) *Generator {
	g := &Generator{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextID returns the next id for prefix. Ids from one counter key are strictly
// increasing while the clock does not move backwards.
func (g *Generator) NextID(ctx context.Context, prefix string) (int64, error) {
	now := g.now().UTC()
	ts := now.Unix() - EpochOffset

	key := CounterKey(prefix, now)
	seq, err := g.kv.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: idgen: incr %s: %w", port.ErrStoreUnavailable, key, err)
	}
	if seq > seqMax {
		return 0, fmt.Errorf("%w: %s", ErrSequenceOverflow, key)
	}

	g.metrics.RecordIDIssued(prefix)
	return ts<<seqBits | seq, nil
}

// CounterKey is the KV key holding the sequence for prefix on the UTC date of t.
func CounterKey(prefix string, t time.Time) string {
	return keyPrefix + prefix + t.UTC().Format(dateLayout)
}

// Split returns the timestamp and sequence parts of id.
func Split(id int64) (time.Time, int64) {
	return time.Unix(id>>seqBits+EpochOffset, 0).UTC(), id & seqMax
}
