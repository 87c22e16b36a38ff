package sidechannel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRingAssignsMonotonicSeq(t *testing.T) {
	r := newRing(10)
	e1 := r.Append(LogEvent{Channel: "a"})
	e2 := r.Append(LogEvent{Channel: "b"})
	require.Equal(t, int64(1), e1.Seq)
	require.Equal(t, int64(2), e2.Seq)
	require.Equal(t, int64(2), r.LastSeq())
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.Append(LogEvent{Channel: "c"})
	}
	all := r.Since(0, 0, 0)
	require.Len(t, all, 3)
	require.Equal(t, int64(3), all[0].Seq)
	require.Equal(t, int64(5), all[2].Seq)
}

func TestRingSinceRespectsLastSeq(t *testing.T) {
	r := newRing(10)
	r.Append(LogEvent{Channel: "a"})
	r.Append(LogEvent{Channel: "b"})
	r.Append(LogEvent{Channel: "c"})

	since := r.Since(1, 0, 0)
	require.Len(t, since, 2)
	require.Equal(t, int64(2), since[0].Seq)
}

func TestRingWaiterDeliveredExactlyOnceOnMatch(t *testing.T) {
	r := newRing(10)
	_, ch := r.registerWaiter(func(ev LogEvent) bool { return ev.Channel == "target" })

	r.Append(LogEvent{Channel: "other"})
	select {
	case <-ch:
		t.Fatal("waiter fired on non-matching event")
	case <-time.After(20 * time.Millisecond):
	}

	r.Append(LogEvent{Channel: "target"})
	select {
	case ev := <-ch:
		require.Equal(t, "target", ev.Channel)
	case <-time.After(time.Second):
		t.Fatal("waiter did not fire on matching event")
	}

	// A second matching event must not be delivered to the same (now
	// removed) waiter.
	r.Append(LogEvent{Channel: "target"})
	select {
	case <-ch:
		t.Fatal("waiter fired twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRingCancelWaiterStopsDelivery(t *testing.T) {
	r := newRing(10)
	id, ch := r.registerWaiter(func(ev LogEvent) bool { return true })
	r.cancelWaiter(id)

	r.Append(LogEvent{Channel: "x"})
	select {
	case <-ch:
		t.Fatal("cancelled waiter still received event")
	case <-time.After(20 * time.Millisecond):
	}
}
