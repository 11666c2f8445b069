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
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	CapturesTotal      uint64
	CacheHits          uint64
	CacheMisses        uint64
	ModelCalls         uint64
	IssuesTotal        uint64
	ReportJobsTotal    uint64
	ReportsCompleted   uint64
	ReportsFailed      uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementCaptures counts captures submitted for analysis
func IncrementCaptures() {
	atomic.AddUint64(&globalMetrics.CapturesTotal, 1)
}

// IncrementCacheHits counts perceptual-hash cache hits (model calls saved)
func IncrementCacheHits() {
	atomic.AddUint64(&globalMetrics.CacheHits, 1)
}

// IncrementCacheMisses counts perceptual-hash cache misses
func IncrementCacheMisses() {
	atomic.AddUint64(&globalMetrics.CacheMisses, 1)
}

// IncrementModelCalls counts individual vision model invocations
func IncrementModelCalls() {
	atomic.AddUint64(&globalMetrics.ModelCalls, 1)
}

// IncrementIssues counts consensus issues raised
func IncrementIssues() {
	atomic.AddUint64(&globalMetrics.IssuesTotal, 1)
}

// IncrementReportJobs counts report jobs enqueued
func IncrementReportJobs() {
	atomic.AddUint64(&globalMetrics.ReportJobsTotal, 1)
}

// IncrementReportsCompleted counts completed report jobs
func IncrementReportsCompleted() {
	atomic.AddUint64(&globalMetrics.ReportsCompleted, 1)
}

// IncrementReportsFailed counts failed report jobs
func IncrementReportsFailed() {
	atomic.AddUint64(&globalMetrics.ReportsFailed, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"captures_total":       atomic.LoadUint64(&globalMetrics.CapturesTotal),
		"cache_hits":           atomic.LoadUint64(&globalMetrics.CacheHits),
		"cache_misses":         atomic.LoadUint64(&globalMetrics.CacheMisses),
		"model_calls":          atomic.LoadUint64(&globalMetrics.ModelCalls),
		"issues_total":         atomic.LoadUint64(&globalMetrics.IssuesTotal),
		"report_jobs_total":    atomic.LoadUint64(&globalMetrics.ReportJobsTotal),
		"reports_completed":    atomic.LoadUint64(&globalMetrics.ReportsCompleted),
		"reports_failed":       atomic.LoadUint64(&globalMetrics.ReportsFailed),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
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
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		// Wrap response writer to capture status
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// Track success/failure based on status code
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
