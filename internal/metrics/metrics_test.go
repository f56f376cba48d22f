package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTx("movePiece", "ok", time.Second)
	m.ObserveEvent("PieceMoved")
	m.ObserveRefresh("view", "applied")
	m.StreamOpened()
	m.StreamClosed()
	m.RateLimited()
	m.WatchRooms(func() int { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveTx("movePiece", "ok", 2*time.Second)
	m.ObserveTx("movePiece", "reverted", time.Second)
	m.ObserveEvent("LineCleared")
	m.ObserveEvent("LineCleared")
	m.ObserveRefresh("view", "stale")
	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()
	m.RateLimited()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.txTotal.WithLabelValues("movePiece", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txTotal.WithLabelValues("movePiece", "reverted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("LineCleared")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("view", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.limited))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.ObserveEvent("GameStarted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tetris_events_total{event="GameStarted"} 1`))
}

func TestWatchedRoomsGauge(t *testing.T) {
	m := New()
	n := 2
	m.WatchRooms(func() int { return n })
	n = 5

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "tetris_watched_rooms 5")
}
