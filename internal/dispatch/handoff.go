package dispatch

import (
	"fmt"

	"github.com/Hara602/inputSentry/internal/config"
	"github.com/Hara602/inputSentry/internal/metrics"
	"github.com/Hara602/inputSentry/internal/model"
)

// Handoff 采集与持久化之间唯一的同步点：有界 channel
// Events move through it by value; the sender keeps no reference.
type Handoff struct {
	ch         chan model.Event
	dropOldest bool
	counters   *metrics.Counters
}

func NewHandoff(capacity int, policy string, counters *metrics.Counters) (*Handoff, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("handoff capacity must be positive, got %d", capacity)
	}
	h := &Handoff{ch: make(chan model.Event, capacity), counters: counters}
	switch policy {
	case config.BackpressureBlock, "":
	case config.BackpressureDropOldest:
		h.dropOldest = true
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", policy)
	}
	return h, nil
}

// Send hands ev to the consumer. Under the block policy a full channel blocks
// the caller; under drop-oldest the oldest queued event is evicted and counted.
func (h *Handoff) Send(ev model.Event) {
	if !h.dropOldest {
		h.ch <- ev
		return
	}
	for {
		select {
		case h.ch <- ev:
			return
		default:
		}
		select {
		case <-h.ch:
			h.counters.Dropped.Add(1)
		default:
			// consumer emptied a slot meanwhile
		}
	}
}

// C is the consumer side.
func (h *Handoff) C() <-chan model.Event { return h.ch }

// Close is called once by the producer after its last Send.
func (h *Handoff) Close() { close(h.ch) }

func (h *Handoff) Len() int { return len(h.ch) }
