package dispatch

import (
	"testing"
	"time"

	"github.com/Hara602/inputSentry/internal/metrics"
	"github.com/Hara602/inputSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(id string) model.Event { return model.Event{ID: id, Kind: model.KindKeyPress} }

func TestBlockPolicyStallsUntilConsumerResumes(t *testing.T) {
	counters := metrics.New()
	h, err := NewHandoff(3, "block", counters)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		h.Send(ev(id))
	}

	sent := make(chan struct{})
	go func() {
		h.Send(ev("d"))
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send on a full channel returned under the block policy")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, "a", (<-h.C()).ID)
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("send did not resume after the consumer made room")
	}

	h.Close()
	var ids []string
	for e := range h.C() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b", "c", "d"}, ids)
	assert.Zero(t, counters.Dropped.Load())
}

func TestDropOldestEvictsExactlyOne(t *testing.T) {
	counters := metrics.New()
	h, err := NewHandoff(3, "drop-oldest", counters)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c", "d"} {
		h.Send(ev(id))
	}
	assert.Equal(t, uint64(1), counters.Dropped.Load())

	h.Close()
	var ids []string
	for e := range h.C() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b", "c", "d"}, ids)
}

func TestHandoffRejectsBadSettings(t *testing.T) {
	_, err := NewHandoff(0, "block", metrics.New())
	assert.Error(t, err)
	_, err = NewHandoff(4, "drop-newest", metrics.New())
	assert.Error(t, err)
}
