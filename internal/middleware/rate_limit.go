package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const maxRateLimitBody = 1 << 16

// RequestRateLimit caps OTP requests per submitted username, or per client IP
// when no username is present, in fixed one-minute windows. It is a no-op
// without Redis and fails open when Redis errors. X-Forwarded-For is only
// read when trustForwarded is set, i.e. behind a proxy that appends to it.
func RequestRateLimit(cache *redis.Client, maxPerMin int, keyPrefix string, trustForwarded bool, logger *logrus.Logger) func(http.Handler) http.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cache == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := keyPrefix + rateLimitSubject(r, trustForwarded)

			count, err := hitWindow(r.Context(), cache, key)
			if err != nil {
				logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
			if count > int64(maxPerMin) {
				logger.WithField("key", key).Warn("OTP request rate limit exceeded")
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"success": false,
					"message": "Too many OTP requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// hitWindow counts one request against key. The window is created with its
// expiry in the same transaction, so a counter never outlives its minute.
func hitWindow(ctx context.Context, cache *redis.Client, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, time.Minute)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// rateLimitSubject peeks at the JSON body for a username and restores the
// body for the next handler.
func rateLimitSubject(r *http.Request, trustForwarded bool) string {
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody))
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err == nil {
			var req struct {
				Username string `json:"username"`
			}
			if json.Unmarshal(body, &req) == nil {
				if username := strings.TrimSpace(req.Username); username != "" {
					return "user:" + strings.ToLower(username)
				}
			}
		}
	}
	return "ip:" + clientIP(r, trustForwarded)
}

// clientIP prefers the address the trusted proxy appended last; earlier
// X-Forwarded-For entries are client supplied.
func clientIP(r *http.Request, trustForwarded bool) string {
	if fwd := r.Header.Get("X-Forwarded-For"); trustForwarded && fwd != "" {
		hops := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
