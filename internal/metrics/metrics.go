// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/larder/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Name:      "ledger_operations_total",
		Help:      "Stock ledger operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Name:      "push_notifications_total",
		Help:      "Push notification deliveries by result.",
	}, []string{"result"})

	backups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "larder",
		Name:      "backups_total",
		Help:      "Database backups by result.",
	}, []string{"result"})

	httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "larder",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "code"})
)

// Outcome classifies an operation error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrValidation):
		return "rejected"
	case errors.Is(err, model.ErrInsufficientQuantity), errors.Is(err, model.ErrDuplicate),
		errors.Is(err, model.ErrInUse), errors.Is(err, model.ErrIntegrity):
		return "conflict"
	default:
		return "error"
	}
}

// ObserveLedgerOp counts one ledger operation.
func ObserveLedgerOp(op string, err error) {
	ledgerOperations.WithLabelValues(op, Outcome(err)).Inc()
}

// ObservePush counts one push delivery attempt.
func ObservePush(err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	notificationsSent.WithLabelValues(result).Inc()
}

// ObserveBackup counts one backup run.
func ObserveBackup(err error) {
	result := "completed"
	if err != nil {
		result = "failed"
	}
	backups.WithLabelValues(result).Inc()
}

// ObserveHTTP records the latency of one request.
func ObserveHTTP(method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
