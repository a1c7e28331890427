// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	OAuthFlows       *prometheus.CounterVec // provider, outcome
	TokenValidations *prometheus.CounterVec // provider, result
	TokenRefreshes   *prometheus.CounterVec // provider, result
	SweepsSkipped    prometheus.Counter
	StatesPurged     prometheus.Counter
	HTTPRequests     *prometheus.CounterVec // method, status

	// Histograms (seconds)
	SweepDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		OAuthFlows = promauto.NewCounterVec(prometheus.CounterOpts{Name: "r0_oauth_flows_total", Help: "OAuth callbacks handled, by terminal state"}, []string{"provider", "outcome"})
		TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{Name: "r0_token_validations_total", Help: "Token validation results during sweeps"}, []string{"provider", "result"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "r0_token_refreshes_total", Help: "Token refresh attempts by result"}, []string{"provider", "result"})
		SweepsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "r0_token_sweeps_skipped_total", Help: "Sweep firings skipped because a cycle was still running"})
		StatesPurged = promauto.NewCounter(prometheus.CounterOpts{Name: "r0_oauth_states_purged_total", Help: "Expired OAuth state tokens removed by the purge job"})
		HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "r0_http_requests_total", Help: "HTTP requests served"}, []string{"method", "status"})
		SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "r0_token_sweep_duration_seconds", Help: "Token sweep cycle duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// RecordHTTPRequest counts a served request.
func RecordHTTPRequest(method string, status int) {
	if HTTPRequests != nil {
		HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}

// RecordOAuthFlow counts a finished OAuth callback.
func RecordOAuthFlow(provider, outcome string) {
	if OAuthFlows != nil {
		OAuthFlows.WithLabelValues(provider, outcome).Inc()
	}
}

// RecordTokenValidation counts one validation result (valid, invalid, skipped).
func RecordTokenValidation(provider, result string) {
	if TokenValidations != nil {
		TokenValidations.WithLabelValues(provider, result).Inc()
	}
}

// RecordTokenRefresh counts one refresh result (refreshed, disabled, failed).
func RecordTokenRefresh(provider, result string) {
	if TokenRefreshes != nil {
		TokenRefreshes.WithLabelValues(provider, result).Inc()
	}
}

// RecordSweepSkipped counts an overlapping sweep firing.
func RecordSweepSkipped() {
	if SweepsSkipped != nil {
		SweepsSkipped.Inc()
	}
}

// AddStatesPurged counts purged state tokens.
func AddStatesPurged(n int64) {
	if StatesPurged != nil && n > 0 {
		StatesPurged.Add(float64(n))
	}
}

// ObserveSweep records a sweep cycle duration.
func ObserveSweep(d time.Duration) {
	if SweepDuration != nil {
		SweepDuration.Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
