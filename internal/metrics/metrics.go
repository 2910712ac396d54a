// metrics — счётчики жизненного цикла refresh-сессий.
// Регистрация в DefaultRegisterer; отдаются через /metrics (promhttp).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsIssued — выпущенные сессии (логины).
	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "sessions_issued_total",
		Help:      "Total number of refresh sessions issued at login.",
	})

	// Rotations — исходы ротации по веткам протокола.
	Rotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "rotations_total",
		Help:      "Refresh rotation outcomes.",
	}, []string{"result"}) // ok | invalid | expired | reuse | error

	// Logouts — успешные logout'ы (включая идемпотентные no-op).
	Logouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "logouts_total",
		Help:      "Total number of logout requests completed.",
	})

	// HTTPDuration — латентность HTTP-запросов по маршруту/методу/статусу.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auth",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// Результаты ротации для метки result.
const (
	RotationOK      = "ok"
	RotationInvalid = "invalid"
	RotationExpired = "expired"
	RotationReuse   = "reuse"
	RotationError   = "error"
)
