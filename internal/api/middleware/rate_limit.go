package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ayo6706/retail-banking/internal/api/problem"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

const rateWindow = time.Second

// PublicRateLimiter throttles unauthenticated callers by client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests(rps, "client")),
	)
}

// AuthRateLimiter throttles authenticated callers by account id, so several
// users behind one NAT do not share a bucket. Must run after AuthMiddleware.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, rateWindow,
		httprate.WithKeyFuncs(accountOrIPKey),
		httprate.WithLimitHandler(tooManyRequests(rps, "account")),
	)
}

func accountOrIPKey(r *http.Request) (string, error) {
	if id := AccountIDFromContext(r.Context()); id != uuid.Nil {
		return "account:" + id.String(), nil
	}
	return httprate.KeyByIP(r)
}

func tooManyRequests(rps int, scope string) http.HandlerFunc {
	detail := fmt.Sprintf("more than %d requests per second from this %s", rps, scope)
	retryAfter := strconv.Itoa(int(rateWindow / time.Second))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w, r, http.StatusTooManyRequests,
			problem.Type("rate-limit-exceeded"), "Too Many Requests", detail)
	}
}
