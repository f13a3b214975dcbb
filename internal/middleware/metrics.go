package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64
	AnalysesTotal      atomic.Uint64
	AnalysesRunning    atomic.Int64
	AnalysesFailed     atomic.Uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{StartTime: time.Now()}

// AnalysisStarted marks one background analysis as running.
func AnalysisStarted() {
	globalMetrics.AnalysesTotal.Add(1)
	globalMetrics.AnalysesRunning.Add(1)
}

// AnalysisFinished marks a running analysis as done.
func AnalysisFinished(failed bool) {
	globalMetrics.AnalysesRunning.Add(-1)
	if failed {
		globalMetrics.AnalysesFailed.Add(1)
	}
}

// GetMetrics returns current metrics
func GetMetrics() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]any{
		"requests_total":       globalMetrics.RequestsTotal.Load(),
		"requests_in_progress": globalMetrics.RequestsInProgress.Load(),
		"requests_success":     globalMetrics.RequestsSuccess.Load(),
		"requests_failed":      globalMetrics.RequestsFailed.Load(),
		"analyses_total":       globalMetrics.AnalysesTotal.Load(),
		"analyses_running":     globalMetrics.AnalysesRunning.Load(),
		"analyses_failed":      globalMetrics.AnalysesFailed.Load(),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		globalMetrics.RequestsTotal.Add(1)
		globalMetrics.RequestsInProgress.Add(1)
		defer globalMetrics.RequestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			globalMetrics.RequestsSuccess.Add(1)
		} else {
			globalMetrics.RequestsFailed.Add(1)
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
