package janitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJanitor_SweepsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	j := New("test", 5*time.Millisecond, func() { calls.Add(1) }, nil)

	j.Start(context.Background())
	assert.True(t, j.Running())

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	j.Stop()
	assert.False(t, j.Running())

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no sweeps after Stop")

	// Stop is idempotent
	j.Stop()
}

func TestJanitor_StopsOnContextCancel(t *testing.T) {
	var calls atomic.Int32
	j := New("test", time.Millisecond, func() { calls.Add(1) }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)
	cancel()

	// Stop must still return once the routine has exited on its own
	done := make(chan struct{})
	go func() {
		j.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestJanitor_RecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	j := New("test", time.Millisecond, func() {
		calls.Add(1)
		panic("boom")
	}, nil)

	j.Start(context.Background())
	defer j.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestJanitor_DisabledInterval(t *testing.T) {
	j := New("test", 0, func() {}, nil)
	j.Start(context.Background())
	assert.False(t, j.Running())
	j.Stop()
}
