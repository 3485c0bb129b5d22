package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// PoolMetrics exports sql.DB connection pool statistics.
type PoolMetrics struct {
	db       *sql.DB
	logger   *logrus.Logger
	interval time.Duration

	connections *prometheus.GaugeVec
	waitCount   prometheus.Gauge
	waitSeconds prometheus.Gauge
}

// NewPoolMetrics registers the pool gauges on reg.
func NewPoolMetrics(db *sql.DB, reg prometheus.Registerer, logger *logrus.Logger) *PoolMetrics {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	factory := promauto.With(reg)
	return &PoolMetrics{
		db:       db,
		logger:   logger,
		interval: 15 * time.Second,
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cramwell",
			Subsystem: "cache_db",
			Name:      "connections",
			Help:      "Cache database connections by state.",
		}, []string{"state"}),
		waitCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cramwell",
			Subsystem: "cache_db",
			Name:      "wait_count",
			Help:      "Total connections waited for.",
		}),
		waitSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cramwell",
			Subsystem: "cache_db",
			Name:      "wait_seconds",
			Help:      "Total time blocked waiting for a connection.",
		}),
	}
}

// Start collects on an interval until ctx is done.
func (pm *PoolMetrics) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pm.Collect()
			}
		}
	}()
}

// Collect samples the pool once.
func (pm *PoolMetrics) Collect() {
	stats := pm.db.Stats()

	pm.connections.WithLabelValues("idle").Set(float64(stats.Idle))
	pm.connections.WithLabelValues("in_use").Set(float64(stats.InUse))
	pm.connections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	pm.waitCount.Set(float64(stats.WaitCount))
	pm.waitSeconds.Set(stats.WaitDuration.Seconds())

	pm.logger.WithFields(logrus.Fields{
		"idle":   stats.Idle,
		"in_use": stats.InUse,
		"open":   stats.OpenConnections,
	}).Debug("Connection pool stats collected")
}
