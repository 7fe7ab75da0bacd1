package main

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

var serverStartTime = time.Now()

// HTTP metrics
var (
	httpRequestsTotal atomic.Int64
	httpErrorsTotal   atomic.Int64
)

// Zap pipeline metrics
var (
	zapRequestsTotal  atomic.Int64
	zapDeliveredTotal atomic.Int64
	zapAbortedTotal   atomic.Int64
	zapFailedTotal    atomic.Int64
)

// Relay fetch metrics
var (
	relayFetchesTotal     atomic.Int64
	relayFetchErrorsTotal atomic.Int64
)

// metricsHandler serves Prometheus-compatible metrics
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintf(w, "# HELP zap_build_info Build and configuration information\n")
	fmt.Fprintf(w, "# TYPE zap_build_info gauge\n")
	fmt.Fprintf(w, "zap_build_info{go_version=%q} 1\n\n", runtime.Version())

	fmt.Fprintf(w, "# HELP process_start_time_seconds Unix timestamp of process start\n")
	fmt.Fprintf(w, "# TYPE process_start_time_seconds gauge\n")
	fmt.Fprintf(w, "process_start_time_seconds %d\n\n", serverStartTime.Unix())

	fmt.Fprintf(w, "# HELP process_uptime_seconds Time since process started\n")
	fmt.Fprintf(w, "# TYPE process_uptime_seconds gauge\n")
	fmt.Fprintf(w, "process_uptime_seconds %.0f\n\n", time.Since(serverStartTime).Seconds())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Fprintf(w, "# HELP go_goroutines Number of active goroutines\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Currently allocated memory in bytes\n")
	fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n\n", memStats.Alloc)

	// HTTP metrics
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", httpRequestsTotal.Load())

	fmt.Fprintf(w, "# HELP http_errors_total Total number of HTTP 5xx errors\n")
	fmt.Fprintf(w, "# TYPE http_errors_total counter\n")
	fmt.Fprintf(w, "http_errors_total %d\n\n", httpErrorsTotal.Load())

	// Zap pipeline metrics
	fmt.Fprintf(w, "# HELP zap_requests_total Zap/tip invoice requests started\n")
	fmt.Fprintf(w, "# TYPE zap_requests_total counter\n")
	fmt.Fprintf(w, "zap_requests_total %d\n\n", zapRequestsTotal.Load())

	fmt.Fprintf(w, "# HELP zap_delivered_total Invoices delivered to callers\n")
	fmt.Fprintf(w, "# TYPE zap_delivered_total counter\n")
	fmt.Fprintf(w, "zap_delivered_total %d\n\n", zapDeliveredTotal.Load())

	fmt.Fprintf(w, "# HELP zap_aborted_total Invocations aborted at signing\n")
	fmt.Fprintf(w, "# TYPE zap_aborted_total counter\n")
	fmt.Fprintf(w, "zap_aborted_total %d\n\n", zapAbortedTotal.Load())

	fmt.Fprintf(w, "# HELP zap_failed_total Invocations that ended in a failure\n")
	fmt.Fprintf(w, "# TYPE zap_failed_total counter\n")
	fmt.Fprintf(w, "zap_failed_total %d\n\n", zapFailedTotal.Load())

	// Relay fetch metrics
	fmt.Fprintf(w, "# HELP relay_fetches_total One-shot relay subscription fetches\n")
	fmt.Fprintf(w, "# TYPE relay_fetches_total counter\n")
	fmt.Fprintf(w, "relay_fetches_total %d\n\n", relayFetchesTotal.Load())

	fmt.Fprintf(w, "# HELP relay_fetch_errors_total Relay fetches that failed\n")
	fmt.Fprintf(w, "# TYPE relay_fetch_errors_total counter\n")
	fmt.Fprintf(w, "relay_fetch_errors_total %d\n", relayFetchErrorsTotal.Load())
}
