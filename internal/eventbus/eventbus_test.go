package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDispatchesOnlyToMatchingKind(t *testing.T) {
	b := New()
	var started, committed int32

	b.Subscribe(TurnStarted, func(Event) { atomic.AddInt32(&started, 1) })
	b.Subscribe(DecisionCommitted, func(Event) { atomic.AddInt32(&committed, 1) })

	b.Emit(Event{Kind: TurnStarted, TurnNumber: 1})

	assert.EqualValues(t, 1, atomic.LoadInt32(&started))
	assert.EqualValues(t, 0, atomic.LoadInt32(&committed))
}

func TestSubscribeAllObservesEveryKind(t *testing.T) {
	b := New()
	var seen []Kind
	b.SubscribeAll(func(e Event) { seen = append(seen, e.Kind) })

	b.Emit(Event{Kind: TurnStarted})
	b.Emit(Event{Kind: ErrorOccurred})

	assert.Equal(t, []Kind{TurnStarted, ErrorOccurred}, seen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var count int32
	handler := func(Event) { atomic.AddInt32(&count, 1) }

	b.Subscribe(TurnStarted, handler)
	b.Emit(Event{Kind: TurnStarted})
	b.Unsubscribe(TurnStarted, handler)
	b.Emit(Event{Kind: TurnStarted})

	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestUnsubscribeAllStopsGlobalDelivery(t *testing.T) {
	b := New()
	var count int32
	handler := func(Event) { atomic.AddInt32(&count, 1) }

	b.SubscribeAll(handler)
	b.Emit(Event{Kind: TurnStarted})
	b.UnsubscribeAll(handler)
	b.Emit(Event{Kind: ErrorOccurred})

	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestEmitRecoversFromPanickingHandler(t *testing.T) {
	b := New()
	called := false
	b.Subscribe(TurnStarted, func(Event) { panic("boom") })
	b.Subscribe(TurnStarted, func(Event) { called = true })

	assert.NotPanics(t, func() { b.Emit(Event{Kind: TurnStarted}) })
	assert.True(t, called)
}

func TestHistoryRingBufferTrimsToSize(t *testing.T) {
	b := New(WithHistorySize(3))
	for i := 0; i < 5; i++ {
		b.Emit(Event{Kind: TurnStarted, TurnNumber: i})
	}

	history := b.GetHistory(nil, 0)
	require.Len(t, history, 3)
	assert.Equal(t, 2, history[0].TurnNumber)
	assert.Equal(t, 4, history[len(history)-1].TurnNumber)
}

func TestGetHistoryFiltersByKind(t *testing.T) {
	b := New()
	b.Emit(Event{Kind: TurnStarted})
	b.Emit(Event{Kind: ErrorOccurred})
	b.Emit(Event{Kind: TurnStarted})

	kind := TurnStarted
	history := b.GetHistory(&kind, 0)
	assert.Len(t, history, 2)
}

func TestGetHistoryRespectsLimit(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Emit(Event{Kind: TurnStarted, TurnNumber: i})
	}
	history := b.GetHistory(nil, 2)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].TurnNumber)
	assert.Equal(t, 4, history[1].TurnNumber)
}

func TestClearHistoryEmptiesRing(t *testing.T) {
	b := New()
	b.Emit(Event{Kind: TurnStarted})
	b.ClearHistory()
	assert.Empty(t, b.GetHistory(nil, 0))
}

func TestAsyncModeDeliversInOrder(t *testing.T) {
	b := New(WithAsync(16))
	defer b.Stop(time.Second)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	b.Subscribe(TurnStarted, func(e Event) {
		mu.Lock()
		order = append(order, e.TurnNumber)
		if e.TurnNumber == 9 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		b.Emit(Event{Kind: TurnStarted, TurnNumber: i})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler did not receive final event in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 10)
	for i, n := range order {
		assert.Equal(t, i, n)
	}
}

func TestStopMakesEmitANoOp(t *testing.T) {
	b := New(WithAsync(4))
	var count int32
	b.Subscribe(TurnStarted, func(Event) { atomic.AddInt32(&count, 1) })

	b.Stop(time.Second)
	b.Emit(Event{Kind: TurnStarted})

	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&count))
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", Kind(999).String())
	assert.Equal(t, "TURN_STARTED", TurnStarted.String())
}
