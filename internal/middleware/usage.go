package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/metrics"
	"captcha-gateway-api/internal/models"
	"captcha-gateway-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// UsageMiddleware is the metering half of the data plane: after the handler
// finishes it logs the request and, for 2xx responses only, folds the request
// into the counter store, the key's usage counter, and the daily stat rollup.
// Every write here is fail-open.
func UsageMiddleware(
	usageService services.UsageService,
	apiKeyService services.APIKeyService,
	requestLogService services.RequestLogService,
	statsService services.StatsService,
) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rw, r)

			apiKey, ok := services.APIKeyFromContext(r.Context())
			if !ok {
				return
			}

			elapsed := time.Since(start).Milliseconds()
			metrics.RequestsTotal.WithLabelValues(r.URL.Path, statusClass(rw.status)).Inc()

			if err := requestLogService.LogRequest(
				r.Context(),
				apiKey.UserID.String(),
				apiKey.ID,
				r.URL.Path,
				r.Method,
				rw.status,
				elapsed,
				clientIP(r),
				r.UserAgent(),
			); err != nil {
				logger.Logger.WithFields(logrus.Fields{
					"key_id": apiKey.KeyID,
					"error":  err.Error(),
				}).Warn("request log write failed")
			}

			if rw.status < 200 || rw.status >= 300 {
				return
			}

			usageService.Record(r.Context(), apiKey.UserID)
			apiKeyService.TouchKey(r.Context(), apiKey)
			statsService.RecordRequest(r.Context(), apiKey.UserID, apiTypeFor(r.URL.Path), true, elapsed)
		})
	}
}

func apiTypeFor(path string) models.CaptchaType {
	switch {
	case strings.HasSuffix(path, "/verify-handwriting"):
		return models.CaptchaHandwriting
	case strings.HasSuffix(path, "/verify-captcha"):
		return models.CaptchaAbstract
	default:
		return models.CaptchaImage
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
