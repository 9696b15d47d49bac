package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application counters. Constructed once in main and
// injected; no package-level singleton.
type Metrics struct {
	requestsTotal      uint64
	requestsInProgress uint64
	requestsSuccess    uint64
	requestsFailed     uint64
	scansTotal         uint64
	scansRunning       uint64
	scansFailed        uint64
	startTime          time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Recorder hooks for the scan pipeline.

func (m *Metrics) ScanStarted() {
	atomic.AddUint64(&m.scansTotal, 1)
	atomic.AddUint64(&m.scansRunning, 1)
}

func (m *Metrics) ScanSucceeded() {
	atomic.AddUint64(&m.scansRunning, ^uint64(0))
}

func (m *Metrics) ScanFailed() {
	atomic.AddUint64(&m.scansRunning, ^uint64(0))
	atomic.AddUint64(&m.scansFailed, 1)
}

// Snapshot returns current counters plus runtime stats.
func (m *Metrics) Snapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]any{
		"requests_total":       atomic.LoadUint64(&m.requestsTotal),
		"requests_in_progress": atomic.LoadUint64(&m.requestsInProgress),
		"requests_success":     atomic.LoadUint64(&m.requestsSuccess),
		"requests_failed":      atomic.LoadUint64(&m.requestsFailed),
		"scans_total":          atomic.LoadUint64(&m.scansTotal),
		"scans_running":        atomic.LoadUint64(&m.scansRunning),
		"scans_failed":         atomic.LoadUint64(&m.scansFailed),
		"uptime_seconds":       time.Since(m.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       ms.Alloc,
			"total_alloc_bytes": ms.TotalAlloc,
			"sys_bytes":         ms.Sys,
			"num_gc":            ms.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request counters.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&m.requestsTotal, 1)
		atomic.AddUint64(&m.requestsInProgress, 1)
		defer atomic.AddUint64(&m.requestsInProgress, ^uint64(0))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode < 400 {
			atomic.AddUint64(&m.requestsSuccess, 1)
		} else {
			atomic.AddUint64(&m.requestsFailed, 1)
		}
	})
}

// Handler serves the counters as JSON.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	}
}
