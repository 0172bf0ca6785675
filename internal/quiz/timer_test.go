package quiz

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer_InvalidDuration(t *testing.T) {
	for _, d := range []int{0, -1} {
		_, err := NewTimer(d)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
}

func TestTimer_RunsToExpiry(t *testing.T) {
	timer, err := NewTimer(1, WithTickInterval(time.Millisecond))
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		ticks   []int
		expired int
	)
	done := make(chan struct{})
	timer.Subscribe(func(ev TimerEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case EventTick:
			ticks = append(ticks, ev.Remaining)
		case EventExpired:
			expired++
			close(done)
		}
	})
	timer.Start()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not expire")
	}
	// 到期后不应再有事件
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ticks, 60)
	assert.Equal(t, 1, expired)
	for i, r := range ticks {
		assert.Equal(t, 59-i, r)
		assert.GreaterOrEqual(t, r, 0)
	}
	assert.Zero(t, timer.Remaining())
	assert.True(t, timer.Stopped())
}

func TestTimer_ConcurrentTicksExpireOnce(t *testing.T) {
	timer, err := NewTimer(1, WithTickInterval(time.Hour))
	require.NoError(t, err)

	var ticks, expired atomic.Int32
	timer.Subscribe(func(ev TimerEvent) {
		if ev.Kind == EventExpired {
			expired.Add(1)
		} else {
			ticks.Add(1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.tick()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(60), ticks.Load())
	assert.Equal(t, int32(1), expired.Load())
	assert.Zero(t, timer.Remaining())
}

func TestTimer_StopIsIdempotent(t *testing.T) {
	timer, err := NewTimer(1, WithTickInterval(time.Hour))
	require.NoError(t, err)
	timer.Start()

	timer.tick()
	timer.Stop()
	timer.Stop()

	assert.True(t, timer.Stopped())
	assert.False(t, timer.tick())
	assert.Equal(t, 59, timer.Remaining())
}

func TestTimer_Unsubscribe(t *testing.T) {
	timer, err := NewTimer(1, WithTickInterval(time.Hour))
	require.NoError(t, err)

	var calls int
	unsubscribe := timer.Subscribe(func(TimerEvent) { calls++ })
	timer.tick()
	unsubscribe()
	timer.tick()

	assert.Equal(t, 1, calls)
}
