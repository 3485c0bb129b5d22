package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type heapRecorder struct {
	samples []uint64
	forced  []bool
}

func (r *heapRecorder) ObserveHeap(bytes uint64, forced bool) {
	r.samples = append(r.samples, bytes)
	r.forced = append(r.forced, forced)
}

func TestMemoryMonitor_Sample(t *testing.T) {
	rec := &heapRecorder{}

	low := NewMemoryMonitor(time.Minute, 1, rec, zap.NewNop())
	heap, forced := low.Sample()
	assert.True(t, forced)
	assert.NotZero(t, heap)

	high := NewMemoryMonitor(time.Minute, 1<<62, rec, zap.NewNop())
	_, forced = high.Sample()
	assert.False(t, forced)

	assert.Equal(t, []bool{true, false}, rec.forced)
}

func TestMemoryMonitor_RunStopsOnCancel(t *testing.T) {
	rec := &heapRecorder{}
	m := NewMemoryMonitor(5*time.Millisecond, 1<<62, rec, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestNewMemoryMonitor_Defaults(t *testing.T) {
	m := NewMemoryMonitor(0, 0, nil, nil)
	assert.Equal(t, defaultMonitorInterval, m.interval)
	assert.Equal(t, uint64(defaultHeapThreshold), m.threshold)
}
