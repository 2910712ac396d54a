package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pribylovaa/go-cohort-auth/internal/metrics"
)

// Metrics пишет латентность запроса в гистограмму.
// Метка path — шаблон маршрута недоступен до chi-роутинга, поэтому
// используем URL.Path; кардинальность ограничена фиксированным набором
// auth-эндпойнтов.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPDuration.
				WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
