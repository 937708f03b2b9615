// Package metrics holds the pipeline counters read by an external metrics collaborator.
package metrics

import (
	"sync/atomic"

	"go.uber.org/zap/zapcore"
)

// Counters 由采集和持久化两个上下文共同更新
type Counters struct {
	Captured  atomic.Uint64
	Committed atomic.Uint64
	Dropped   atomic.Uint64 // evicted from the hand-off channel (drop-oldest)
	Lost      atomic.Uint64 // in batches dropped after retries
	Rejected  atomic.Uint64 // normalization rejects
	Spilled   atomic.Uint64

	DevicesActive  atomic.Int64
	DevicesRetired atomic.Int64
}

func New() *Counters { return &Counters{} }

type Snapshot struct {
	Captured       uint64
	Committed      uint64
	Dropped        uint64
	Lost           uint64
	Rejected       uint64
	Spilled        uint64
	DevicesActive  int64
	DevicesRetired int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Captured:       c.Captured.Load(),
		Committed:      c.Committed.Load(),
		Dropped:        c.Dropped.Load(),
		Lost:           c.Lost.Load(),
		Rejected:       c.Rejected.Load(),
		Spilled:        c.Spilled.Load(),
		DevicesActive:  c.DevicesActive.Load(),
		DevicesRetired: c.DevicesRetired.Load(),
	}
}

// MarshalLogObject lets a snapshot be logged with zap.Object.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("captured", s.Captured)
	enc.AddUint64("committed", s.Committed)
	enc.AddUint64("dropped", s.Dropped)
	enc.AddUint64("lost", s.Lost)
	enc.AddUint64("rejected", s.Rejected)
	enc.AddUint64("spilled", s.Spilled)
	enc.AddInt64("devices_active", s.DevicesActive)
	enc.AddInt64("devices_retired", s.DevicesRetired)
	return nil
}
