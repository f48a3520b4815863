package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ObserveCommand("mcu", "conference.enumerate", 10*time.Millisecond, nil)
	m.ObserveCommand("mcu", "conference.enumerate", 10*time.Millisecond, errors.New("x"))
	m.IncRetries("mcu")
	m.SetState("mcu", 2)
	m.IncRecordingMoves("tcs", "moved")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("mcu", "conference.enumerate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandFailures.WithLabelValues("mcu", "conference.enumerate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectorState.WithLabelValues("mcu")))

	called := false
	rec := httptest.NewRecorder()
	m.Handler(func() { called = true }).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, called)
	assert.Contains(t, string(body), `connector_recording_moves_total{connector="tcs",result="moved"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveCommand("a", "b", time.Second, nil)
	m.IncRetries("a")
	m.SetState("a", 1)
	m.IncCapacityExceeded("a")
	m.IncNotifications("a", "ROOM_OWNERS")
}
