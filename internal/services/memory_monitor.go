package services

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/cramwell/backend-go/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultMonitorInterval = 5 * time.Minute
	defaultHeapThreshold   = 1 << 30
)

// HeapObserver records heap samples.
type HeapObserver interface {
	ObserveHeap(bytes uint64, forced bool)
}

// MemoryMonitor samples the heap periodically and forces a collection when
// it grows past a threshold.
type MemoryMonitor struct {
	interval  time.Duration
	threshold uint64
	metrics   HeapObserver
	log       *zap.Logger
}

// NewMemoryMonitor returns a monitor; zero values select the defaults.
func NewMemoryMonitor(interval time.Duration, thresholdBytes uint64, metrics HeapObserver, log *zap.Logger) *MemoryMonitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	if thresholdBytes == 0 {
		thresholdBytes = defaultHeapThreshold
	}
	return &MemoryMonitor{
		interval:  interval,
		threshold: thresholdBytes,
		metrics:   metrics,
		log:       logger.Named(log, "memory_monitor"),
	}
}

// Run samples until ctx is cancelled.
func (m *MemoryMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample reads the heap size and collects if it is above the threshold.
func (m *MemoryMonitor) Sample() (heapAlloc uint64, forced bool) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	heapAlloc = stats.HeapAlloc

	if heapAlloc > m.threshold {
		m.log.Warn("high heap usage, forcing collection",
			zap.Uint64("heap_alloc_mb", heapAlloc>>20),
			zap.Uint64("threshold_mb", m.threshold>>20))
		runtime.GC()
		debug.FreeOSMemory()
		forced = true
	} else {
		m.log.Debug("heap usage",
			zap.Uint64("heap_alloc_mb", heapAlloc>>20),
			zap.Uint32("num_gc", stats.NumGC))
	}

	if m.metrics != nil {
		m.metrics.ObserveHeap(heapAlloc, forced)
	}
	return heapAlloc, forced
}
