package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/aegis-router/internal/httputil"
	"github.com/af-corp/aegis-router/internal/telemetry"
)

const (
	defaultRPM = 60

	headerClientID                   = "X-Client-ID"
	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// ClientKey identifies the caller: the X-Client-ID header when present,
// otherwise the remote IP.
func ClientKey(r *http.Request) string {
	if id := r.Header.Get(headerClientID); id != "" {
		return "client:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware returns chi middleware that enforces a per-client requests per
// minute limit. metrics may be nil.
func Middleware(limiter Checker, rpm int, metrics *telemetry.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if rpm <= 0 {
		rpm = defaultRPM
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")
			key := ClientKey(r)

			result, err := limiter.Check(r.Context(), "rpm:"+key, int64(rpm), time.Minute)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					"request_id", reqID,
					"client", key,
					"error", err,
				)
			}

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				logger.Warn("rate limit exceeded",
					"request_id", reqID,
					"client", key,
					"dimension", "rpm",
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("rpm")
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
