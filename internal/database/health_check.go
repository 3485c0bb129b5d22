package database

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Pinger is anything that can report liveness of a backing store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RedisPinger adapts a redis client to Pinger.
type RedisPinger struct {
	Client *redis.Client
}

func (p RedisPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

// HealthChecker pings a store on an interval and remembers the last result.
type HealthChecker struct {
	target   Pinger
	name     string
	logger   *logrus.Logger
	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
	lastError error
	stopChan  chan struct{}
	running   bool
}

// HealthCheckResult is the outcome of one probe.
type HealthCheckResult struct {
	Name         string    `json:"name"`
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// NewHealthChecker returns a checker for target. Start probes it periodically.
func NewHealthChecker(name string, target Pinger, logger *logrus.Logger) *HealthChecker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthChecker{
		target:   target,
		name:     name,
		logger:   logger,
		interval: 30 * time.Second,
		timeout:  5 * time.Second,
		stopChan: make(chan struct{}),
	}
}

// SetCheckInterval changes the interval used by the next Start.
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.interval = interval
}

// Start checks immediately and then on every tick until ctx is done or Stop
// is called. It blocks; run it in its own goroutine.
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	interval := hc.interval
	hc.mu.Unlock()

	defer func() {
		hc.mu.Lock()
		hc.running = false
		hc.mu.Unlock()
		hc.logger.WithField("store", hc.name).Info("Health checker stopped")
	}()

	hc.logger.WithField("store", hc.name).Info("Starting health checker")
	_ = hc.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hc.stopChan:
			return
		case <-ticker.C:
			_ = hc.Check(ctx)
		}
	}
}

// Stop ends a running Start loop. Safe to call more than once.
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.running {
		return
	}
	select {
	case <-hc.stopChan:
	default:
		close(hc.stopChan)
	}
}

// Check pings the target once and records the outcome.
func (hc *HealthChecker) Check(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	err := hc.target.PingContext(ctx)
	elapsed := time.Since(start)

	hc.mu.Lock()
	wasHealthy := hc.healthy
	hc.lastCheck = time.Now()
	hc.lastError = err
	hc.healthy = err == nil
	hc.mu.Unlock()

	entry := hc.logger.WithFields(logrus.Fields{"store": hc.name, "response_time": elapsed})
	switch {
	case err != nil:
		entry.WithError(err).Warn("Health check failed")
	case !wasHealthy:
		entry.Info("Connection restored")
	default:
		entry.Debug("Health check passed")
	}
	return err
}

// IsHealthy returns the last recorded state.
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthy
}

// Result snapshots the last check.
func (hc *HealthChecker) Result() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := HealthCheckResult{
		Name:      hc.name,
		Healthy:   hc.healthy,
		LastCheck: hc.lastCheck,
	}
	if hc.lastError != nil {
		result.LastError = hc.lastError.Error()
	}
	return result
}

// WaitForHealthy polls until the target is healthy or timeout expires.
func (hc *HealthChecker) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if hc.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
