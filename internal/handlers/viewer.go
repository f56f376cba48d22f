package handlers

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"chaintetris/internal/metrics"
	"chaintetris/internal/platform/ratelimiter"
)

const viewerCookieName = "tetris_viewer"

type viewerKey struct{}

type viewer struct {
	id    string
	fresh bool
}

// Viewer tags each browser with a random id cookie used as its rate-limit key.
func Viewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := viewer{}
		if c, err := r.Cookie(viewerCookieName); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				v.id = parsed.String()
			}
		}
		if v.id == "" {
			v = viewer{id: uuid.NewString(), fresh: true}
			http.SetCookie(w, &http.Cookie{
				Name:     viewerCookieName,
				Value:    v.id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Expires:  time.Now().Add(30 * 24 * time.Hour),
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey{}, v)))
	})
}

// ViewerID returns the id set by Viewer, or "" outside it.
func ViewerID(r *http.Request) string {
	v, _ := r.Context().Value(viewerKey{}).(viewer)
	return v.id
}

// limitKey is the viewer id, or the client address for requests that arrived without the cookie.
func limitKey(r *http.Request) string {
	v, _ := r.Context().Value(viewerKey{}).(viewer)
	if v.id != "" && !v.fresh {
		return v.id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// RateLimit answers 429 when the viewer exceeds its action budget.
func RateLimit(l *ratelimiter.ViewerLimiter, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, wait := l.Allow(limitKey(r), time.Now()); !ok {
				m.RateLimited()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, "too many actions", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
