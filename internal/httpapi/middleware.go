package httpapi

import (
	"bytes"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/rpch-net/discovery-platform/internal/cache"
	"github.com/rpch-net/discovery-platform/internal/metrics"
)

const secretHeader = "x-secret-key"

// requireSecret gates admin endpoints behind the x-secret-key header. An
// empty configured key disables the gate, which is only acceptable for
// local development.
func requireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(secretHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit rejects requests above the configured rate with 429.
func rateLimit(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bufferingWriter captures the response so a successful body can be cached.
type bufferingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bufferingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *bufferingWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

// cacheResponse serves GET responses from the cache, keyed by the full
// request URI. Cache failures fall through to the handler.
func cacheResponse(store cache.Cache, ttl time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.RequestURI()

		if body, ok, err := store.Get(r.Context(), key); err == nil && ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()

		bw := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(bw, r)

		if bw.status == http.StatusOK {
			_ = store.Set(r.Context(), key, bw.buf.Bytes(), ttl)
		}
	})
}
