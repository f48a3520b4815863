package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 连接器相关的 Prometheus 指标，使用独立的 registry
// 所有方法对 nil 接收者安全
type Metrics struct {
	registry          *prometheus.Registry
	commandsTotal     *prometheus.CounterVec
	commandFailures   *prometheus.CounterVec
	commandRetries    *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	connectorState    *prometheus.GaugeVec
	recordingMoves    *prometheus.CounterVec
	capacityExceeded  *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	commandsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_commands_total",
		Help: "Total number of commands issued to devices",
	}, []string{"connector", "command"})
	commandFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_command_failures_total",
		Help: "Total number of failed device commands",
	}, []string{"connector", "command"})
	commandRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_command_retries_total",
		Help: "Total number of retries after a connection reset",
	}, []string{"connector"})
	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connector_command_duration_seconds",
		Help:    "Device command latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"connector", "command"})
	connectorState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connector_state",
		Help: "Connection state of the connector (0 disconnected, 1 loosely connected, 2 connected, 3 reconnecting)",
	}, []string{"connector"})
	recordingMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_recording_moves_total",
		Help: "Recording relocations by result",
	}, []string{"connector", "result"})
	capacityExceeded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_capacity_exceeded_total",
		Help: "Rooms found above their licensed capacity",
	}, []string{"connector"})
	notificationsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_notifications_total",
		Help: "Notifications emitted by connectors",
	}, []string{"connector", "target"})

	registry.MustRegister(
		commandsTotal,
		commandFailures,
		commandRetries,
		commandDuration,
		connectorState,
		recordingMoves,
		capacityExceeded,
		notificationsSent,
	)

	return &Metrics{
		registry:          registry,
		commandsTotal:     commandsTotal,
		commandFailures:   commandFailures,
		commandRetries:    commandRetries,
		commandDuration:   commandDuration,
		connectorState:    connectorState,
		recordingMoves:    recordingMoves,
		capacityExceeded:  capacityExceeded,
		notificationsSent: notificationsSent,
	}
}

// ObserveCommand 记录一次设备命令
func (m *Metrics) ObserveCommand(connector, command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(connector, command).Inc()
	m.commandDuration.WithLabelValues(connector, command).Observe(d.Seconds())
	if err != nil {
		m.commandFailures.WithLabelValues(connector, command).Inc()
	}
}

func (m *Metrics) IncRetries(connector string) {
	if m == nil {
		return
	}
	m.commandRetries.WithLabelValues(connector).Inc()
}

func (m *Metrics) SetState(connector string, state int) {
	if m == nil {
		return
	}
	m.connectorState.WithLabelValues(connector).Set(float64(state))
}

// IncRecordingMoves result 取值 moved、failed、skipped
func (m *Metrics) IncRecordingMoves(connector, result string) {
	if m == nil {
		return
	}
	m.recordingMoves.WithLabelValues(connector, result).Inc()
}

func (m *Metrics) IncCapacityExceeded(connector string) {
	if m == nil {
		return
	}
	m.capacityExceeded.WithLabelValues(connector).Inc()
}

func (m *Metrics) IncNotifications(connector, target string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(connector, target).Inc()
}

// Registry 暴露给测试
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
