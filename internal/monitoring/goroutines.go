package monitoring

import (
	"context"
	"maps"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GoroutineMonitor samples the goroutine count while training runs. Actors
// that die show up as a drop against the registered component counts.
type GoroutineMonitor struct {
	mu             sync.RWMutex
	logger         zerolog.Logger
	baseline       int
	current        int
	peak           int
	interval       time.Duration
	alertThreshold int
	alertCooldown  time.Duration
	lastAlert      time.Time
	components     map[string]int
}

// NewGoroutineMonitor creates a monitor sampling every interval. A
// non-positive interval defaults to 30s.
func NewGoroutineMonitor(logger zerolog.Logger, interval time.Duration) *GoroutineMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	baseline := runtime.NumGoroutine()
	return &GoroutineMonitor{
		logger:         logger.With().Str("component", "goroutine_monitor").Logger(),
		baseline:       baseline,
		current:        baseline,
		peak:           baseline,
		interval:       interval,
		alertThreshold: 10000,
		alertCooldown:  5 * time.Minute,
		components:     make(map[string]int),
	}
}

// SetAlertThreshold sets the goroutine count above which a warning is logged.
func (gm *GoroutineMonitor) SetAlertThreshold(n int) {
	gm.mu.Lock()
	gm.alertThreshold = n
	gm.mu.Unlock()
}

// Run samples until ctx is done.
func (gm *GoroutineMonitor) Run(ctx context.Context) {
	gm.logger.Info().Int("baseline", gm.baseline).Msg("Started goroutine monitoring")

	ticker := time.NewTicker(gm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			gm.Sample()
		case <-ctx.Done():
			return
		}
	}
}

// Sample records the current goroutine count and warns when it is above the
// alert threshold.
func (gm *GoroutineMonitor) Sample() GoroutineMetrics {
	current := runtime.NumGoroutine()

	gm.mu.Lock()
	gm.current = current
	if current > gm.peak {
		gm.peak = current
	}
	alert := current > gm.alertThreshold && time.Since(gm.lastAlert) > gm.alertCooldown
	if alert {
		gm.lastAlert = time.Now()
	}
	metrics := gm.metricsLocked()
	gm.mu.Unlock()

	gm.logger.Debug().
		Int("current", metrics.Current).
		Int("baseline", metrics.Baseline).
		Int("peak", metrics.Peak).
		Msg("Goroutine metrics")
	if alert {
		gm.logger.Warn().
			Int("current", current).
			Int("threshold", gm.alertThreshold).
			Msg("High goroutine count detected - possible leak")
	}
	return metrics
}

// RegisterComponent records how many goroutines a component started.
func (gm *GoroutineMonitor) RegisterComponent(name string, count int) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	gm.components[name] = count
}

// GetMetrics returns the last sampled metrics.
func (gm *GoroutineMonitor) GetMetrics() GoroutineMetrics {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return gm.metricsLocked()
}

func (gm *GoroutineMonitor) metricsLocked() GoroutineMetrics {
	return GoroutineMetrics{
		Current:         gm.current,
		Baseline:        gm.baseline,
		Peak:            gm.peak,
		Growth:          gm.current - gm.baseline,
		ComponentCounts: maps.Clone(gm.components),
	}
}

// GoroutineMetrics contains goroutine statistics
type GoroutineMetrics struct {
	Current         int            `json:"current"`
	Baseline        int            `json:"baseline"`
	Peak            int            `json:"peak"`
	Growth          int            `json:"growth"`
	ComponentCounts map[string]int `json:"component_counts"`
}
