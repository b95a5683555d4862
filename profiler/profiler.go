// Package profiler - Operation timing and runtime statistics for the classification service.
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// RuntimeProfiler tracks operation timings and custom metrics and periodically logs a report.
//
// It is safe for concurrent use. A nil *RuntimeProfiler is valid and records nothing, so
// components can take one unconditionally.
type RuntimeProfiler struct {
	reportInterval time.Duration
	maxSamples     int
	logger         *slog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	customMetrics  map[string]*MetricTracker
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics over a sliding window of samples.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log status reports (default: 1m)
	ReportInterval time.Duration
	// MaxSamples specifies the sliding window size per operation (default: 600)
	MaxSamples int
	// Logger receives the periodic reports (default: slog.Default())
	Logger *slog.Logger
}

// OperationStats is a snapshot of one timed operation.
type OperationStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Samples int     `json:"samples"`
	AvgMS   float64 `json:"avg_ms"`
	MinMS   float64 `json:"min_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// MetricStats is a snapshot of one custom metric.
type MetricStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Samples int     `json:"samples"`
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Stats is a point-in-time view of the profiler.
type Stats struct {
	UptimeSeconds float64          `json:"uptime_seconds"`
	Goroutines    int              `json:"goroutines"`
	HeapAlloc     uint64           `json:"heap_alloc_bytes"`
	GCCycles      uint32           `json:"gc_cycles"`
	Operations    []OperationStats `json:"operations"`
	Metrics       []MetricStats    `json:"metrics"`
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - *RuntimeProfiler: A configured profiler. Reporting starts with Start.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = time.Minute
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger.With("component", "profiler"),
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins periodic reporting. Calling it while running has no effect; after Stop it starts a
// new reporter.
func (rp *RuntimeProfiler) Start() {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	ctx, cancel := context.WithCancel(context.Background())
	rp.cancel = cancel

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()

		ticker := time.NewTicker(rp.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rp.emitStatusReport()
			}
		}
	}()
}

// Stop stops reporting and waits for the reporter to exit.
func (rp *RuntimeProfiler) Stop() {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	cancel := rp.cancel
	rp.cancel = nil
	rp.mu.Unlock()

	cancel()
	rp.wg.Wait()
}

// RecordMetric records a custom metric value.
//
// Arguments:
//   - name: The name of the metric.
//   - value: The metric value to record.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{min: value, max: value}
		rp.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call it when the operation completes.
//
// @example
// done := profiler.StartOperation("classify")
// defer done()
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	if rp == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		rp.RecordOperation(name, time.Since(start))
	}
}

// RecordOperation records the duration of a completed operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > rp.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// emitStatusReport logs one line per operation plus a runtime summary.
func (rp *RuntimeProfiler) emitStatusReport() {
	stats := rp.GetCurrentStats()

	rp.logger.Info("runtime status",
		"uptime", time.Duration(stats.UptimeSeconds*float64(time.Second)).Truncate(time.Second),
		"goroutines", stats.Goroutines,
		"heap_alloc", formatBytes(stats.HeapAlloc),
		"gc_cycles", stats.GCCycles,
	)
	for _, op := range stats.Operations {
		rp.logger.Info("operation timing",
			"operation", op.Name,
			"count", op.Count,
			"avg_ms", op.AvgMS,
			"min_ms", op.MinMS,
			"max_ms", op.MaxMS,
		)
	}
	for _, m := range stats.Metrics {
		rp.logger.Info("metric",
			"metric", m.Name,
			"avg", m.Avg,
			"min", m.Min,
			"max", m.Max,
			"samples", m.Samples,
		)
	}
}

// GetCurrentStats returns the current profiling statistics as a snapshot.
//
// Returns:
//   - Stats: Operations and metrics sorted by name.
func (rp *RuntimeProfiler) GetCurrentStats() Stats {
	if rp == nil {
		return Stats{Operations: []OperationStats{}, Metrics: []MetricStats{}}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.RLock()
	defer rp.mu.RUnlock()

	stats := Stats{
		UptimeSeconds: time.Since(rp.startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     mem.HeapAlloc,
		GCCycles:      mem.NumGC,
		Operations:    make([]OperationStats, 0, len(rp.operationTimes)),
		Metrics:       make([]MetricStats, 0, len(rp.customMetrics)),
	}

	for name, tracker := range rp.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		avg := tracker.totalTime / time.Duration(len(tracker.durations))
		stats.Operations = append(stats.Operations, OperationStats{
			Name:    name,
			Count:   tracker.count,
			Samples: len(tracker.durations),
			AvgMS:   milliseconds(avg),
			MinMS:   milliseconds(tracker.minTime),
			MaxMS:   milliseconds(tracker.maxTime),
		})
	}
	sort.Slice(stats.Operations, func(i, j int) bool {
		return stats.Operations[i].Name < stats.Operations[j].Name
	})

	for name, tracker := range rp.customMetrics {
		if len(tracker.values) == 0 {
			continue
		}
		stats.Metrics = append(stats.Metrics, MetricStats{
			Name:    name,
			Count:   tracker.count,
			Samples: len(tracker.values),
			Avg:     tracker.sum / float64(len(tracker.values)),
			Min:     tracker.min,
			Max:     tracker.max,
		})
	}
	sort.Slice(stats.Metrics, func(i, j int) bool {
		return stats.Metrics[i].Name < stats.Metrics[j].Name
	})

	return stats
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
