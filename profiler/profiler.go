// Package profiler - times pipeline stages and reports them through a logger.
package profiler

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StageTimer records how long each named pipeline stage takes.
//
// It is safe for concurrent use; workers processing different images may
// time the same stage at once.
type StageTimer struct {
	mu        sync.Mutex
	startTime time.Time
	stages    map[string]*TimeTracker
}

// TimeTracker tracks timing statistics for one stage.
type TimeTracker struct {
	Name      string
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	Count     int64
}

// Average returns the mean duration, or zero for an empty tracker.
func (t TimeTracker) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.TotalTime / time.Duration(t.Count)
}

// NewStageTimer creates an empty timer.
func NewStageTimer() *StageTimer {
	return &StageTimer{
		startTime: time.Now(),
		stages:    make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing a stage.
//
// Arguments:
//   - name: The stage name.
//
// Returns:
//   - A function to call when the stage completes.
func (st *StageTimer) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		st.Record(name, time.Since(start))
	}
}

// Record adds one completed run of a stage.
func (st *StageTimer) Record(name string, duration time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	tracker, exists := st.stages[name]
	if !exists {
		tracker = &TimeTracker{
			Name:    name,
			MinTime: duration,
			MaxTime: duration,
		}
		st.stages[name] = tracker
	}

	tracker.TotalTime += duration
	tracker.Count++

	if duration < tracker.MinTime {
		tracker.MinTime = duration
	}
	if duration > tracker.MaxTime {
		tracker.MaxTime = duration
	}
}

// Snapshot returns a copy of every tracker, sorted by stage name.
func (st *StageTimer) Snapshot() []TimeTracker {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]TimeTracker, 0, len(st.stages))
	for _, tracker := range st.stages {
		out = append(out, *tracker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report logs one line per stage plus the run's memory footprint.
func (st *StageTimer) Report(logger *zap.SugaredLogger) {
	if logger == nil {
		return
	}

	for _, tracker := range st.Snapshot() {
		logger.Infow("stage timing",
			"stage", tracker.Name,
			"count", tracker.Count,
			"total", tracker.TotalTime.Truncate(time.Microsecond),
			"avg", tracker.Average().Truncate(time.Microsecond),
			"min", tracker.MinTime.Truncate(time.Microsecond),
			"max", tracker.MaxTime.Truncate(time.Microsecond),
		)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	logger.Infow("run complete",
		"uptime", time.Since(st.startTime).Truncate(time.Millisecond),
		"heap_alloc", FormatBytes(mem.HeapAlloc),
		"total_alloc", FormatBytes(mem.TotalAlloc),
		"gc_cycles", mem.NumGC,
	)
}

// FormatBytes formats byte counts in human-readable format.
func FormatBytes(bytes uint64) string {
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
