package prometheus

import (
	"time"

	"github.com/marmos91/tracelisten/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sessionMetrics is the Prometheus implementation of metrics.SessionMetrics.
type sessionMetrics struct {
	commandsTotal     *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	commandsInFlight  *prometheus.GaugeVec
	metaBytesTotal    *prometheus.CounterVec
	metaChunkBytes    prometheus.Histogram
	activeSessions    prometheus.Gauge
	sessionsAccepted  prometheus.Counter
	sessionsClosed    prometheus.Counter
	sessionsForced    prometheus.Counter
	fanoutDialTotal   *prometheus.CounterVec
	fanoutDialSeconds *prometheus.HistogramVec
	fanoutSessions    *prometheus.CounterVec
	hookParseTotal    *prometheus.CounterVec
}

func init() {
	metrics.RegisterSessionMetricsConstructor(NewSessionMetrics)
}

// NewSessionMetrics creates a new Prometheus-backed SessionMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSessionMetrics() metrics.SessionMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &sessionMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelisten_commands_total",
				Help: "Total number of control commands processed by command and outcome",
			},
			[]string{"cmd", "error_kind"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tracelisten_command_duration_milliseconds",
				Help: "Duration of control command processing in milliseconds",
				Buckets: []float64{
					0.5,   // 500us - TINIT ack
					1,     // 1ms
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms - SENDMETA chunk
					1000,  // 1s
					5000,  // 5s - SVR_RECORD_REQ dial
					30000, // 30s
				},
			},
			[]string{"cmd"},
		),
		commandsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tracelisten_commands_in_flight",
				Help: "Current number of in-flight control commands by name",
			},
			[]string{"cmd"},
		),
		metaBytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelisten_meta_bytes_total",
				Help: "Total SENDMETA bytes transferred by direction",
			},
			[]string{"direction"}, // "read", "write"
		),
		metaChunkBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "tracelisten_meta_chunk_bytes",
				Help: "Distribution of SENDMETA chunk sizes in bytes",
				Buckets: []float64{
					1024,    // 1KB
					4096,    // 4KB
					16384,   // 16KB
					65536,   // 64KB
					262144,  // 256KB
					1048576, // 1MB
				},
			},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tracelisten_active_sessions",
				Help: "Current number of active control sessions",
			},
		),
		sessionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracelisten_sessions_accepted_total",
				Help: "Total number of accepted control sessions",
			},
		),
		sessionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracelisten_sessions_closed_total",
				Help: "Total number of cleanly closed control sessions",
			},
		),
		sessionsForced: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracelisten_sessions_force_closed_total",
				Help: "Total number of control sessions force-closed on timeout",
			},
		),
		fanoutDialTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelisten_fanout_dials_total",
				Help: "Total number of outbound fan-out dials by host and status",
			},
			[]string{"host", "status"},
		),
		fanoutDialSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tracelisten_fanout_dial_duration_milliseconds",
				Help: "Duration of outbound fan-out dial in milliseconds",
				Buckets: []float64{
					10, 50, 100, 500, 1000, 5000, 10000,
				},
			},
			[]string{"host"},
		),
		fanoutSessions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelisten_fanout_sessions_total",
				Help: "Total number of fan-out sub-sessions opened by downstream host",
			},
			[]string{"host"},
		),
		hookParseTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelisten_hook_parse_total",
				Help: "Total number of hook descriptor parse attempts by subsystem and outcome",
			},
			[]string{"system", "status"},
		),
	}
}

func (m *sessionMetrics) RecordCommand(cmd string, duration time.Duration, errorKind string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(cmd, errorKind).Inc()
	m.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds() * 1000)
}

func (m *sessionMetrics) RecordCommandStart(cmd string) {
	if m == nil {
		return
	}
	m.commandsInFlight.WithLabelValues(cmd).Inc()
}

func (m *sessionMetrics) RecordCommandEnd(cmd string) {
	if m == nil {
		return
	}
	m.commandsInFlight.WithLabelValues(cmd).Dec()
}

func (m *sessionMetrics) RecordMetaBytes(direction string, bytes uint64) {
	if m == nil {
		return
	}
	m.metaBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

func (m *sessionMetrics) RecordMetaChunk(chunkBytes uint64) {
	if m == nil {
		return
	}
	m.metaChunkBytes.Observe(float64(chunkBytes))
}

func (m *sessionMetrics) SetActiveSessions(count int32) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

func (m *sessionMetrics) RecordSessionAccepted() {
	if m == nil {
		return
	}
	m.sessionsAccepted.Inc()
}

func (m *sessionMetrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
}

func (m *sessionMetrics) RecordSessionForceClosed() {
	if m == nil {
		return
	}
	m.sessionsForced.Inc()
}

func (m *sessionMetrics) RecordFanoutDial(host string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.fanoutDialTotal.WithLabelValues(host, status).Inc()
	m.fanoutDialSeconds.WithLabelValues(host).Observe(duration.Seconds() * 1000)
}

func (m *sessionMetrics) RecordFanoutSession(host string) {
	if m == nil {
		return
	}
	m.fanoutSessions.WithLabelValues(host).Inc()
}

func (m *sessionMetrics) RecordHookParse(system string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.hookParseTotal.WithLabelValues(system, status).Inc()
}
