package metrics

import "time"

// SessionMetrics provides observability for the trace-cmd control protocol
// server: handshake/command activity, metadata transfer, connection
// lifecycle, and fan-out behavior.
//
// Implementations are optional - pass nil to disable metrics collection
// with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	sessionMetrics := metrics.NewSessionMetrics()
//	srv := control.NewServer(conn, sessionID, config, sessionMetrics)
//
//	// Without metrics (pass nil for zero overhead)
//	srv := control.NewServer(conn, sessionID, config, nil)
type SessionMetrics interface {
	// RecordCommand records a completed control command with its name,
	// duration, and outcome.
	//
	// Parameters:
	//   - cmd: command name (e.g., "TINIT", "SENDMETA", "SVR_RECORD_REQ")
	//   - duration: time taken to process the command
	//   - errorKind: error classification if the command failed, empty if successful
	RecordCommand(cmd string, duration time.Duration, errorKind string)

	// RecordCommandStart increments the in-flight command counter.
	RecordCommandStart(cmd string)

	// RecordCommandEnd decrements the in-flight command counter.
	RecordCommandEnd(cmd string)

	// RecordMetaBytes records bytes transferred during SENDMETA streaming.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: number of bytes transferred
	RecordMetaBytes(direction string, bytes uint64)

	// RecordMetaChunk records a single SENDMETA chunk.
	//
	// Parameters:
	//   - chunkBytes: size of the chunk in bytes
	RecordMetaChunk(chunkBytes uint64)

	// SetActiveSessions updates the current control session count.
	SetActiveSessions(count int32)

	// RecordSessionAccepted increments the total accepted sessions counter.
	RecordSessionAccepted()

	// RecordSessionClosed increments the total cleanly closed sessions counter.
	RecordSessionClosed()

	// RecordSessionForceClosed increments the force-closed sessions counter.
	// Called when sessions are forcibly closed after a handshake or idle timeout.
	RecordSessionForceClosed()

	// RecordFanoutDial records an outbound --connect dial to a downstream host.
	//
	// Parameters:
	//   - host: downstream host:port
	//   - duration: time taken by the TCP dial
	//   - err: error if the dial failed, nil if successful
	RecordFanoutDial(host string, duration time.Duration, err error)

	// RecordFanoutSession records a fan-out sub-session being opened.
	//
	// Parameters:
	//   - host: downstream host:port
	RecordFanoutSession(host string)

	// RecordHookParse records a hook descriptor parse attempt.
	//
	// Parameters:
	//   - system: tracing subsystem named in the descriptor (e.g., "ftrace")
	//   - ok: whether the descriptor parsed successfully
	RecordHookParse(system string, ok bool)
}

// NewSessionMetrics creates a new Prometheus-backed SessionMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to session consumers,
// which results in zero overhead.
func NewSessionMetrics() SessionMetrics {
	if !IsEnabled() {
		return nil
	}

	return newPrometheusSessionMetrics()
}

// newPrometheusSessionMetrics is implemented in pkg/metrics/prometheus/session.go.
// This indirection avoids import cycles while keeping the API clean.
var newPrometheusSessionMetrics func() SessionMetrics

// RegisterSessionMetricsConstructor registers the Prometheus session metrics
// constructor. Called by pkg/metrics/prometheus/session.go during package
// initialization.
func RegisterSessionMetricsConstructor(constructor func() SessionMetrics) {
	newPrometheusSessionMetrics = constructor
}

// RecordCommand records a completed control command, tolerating a nil metrics instance.
func RecordCommand(m SessionMetrics, cmd string, duration time.Duration, errorKind string) {
	if m != nil {
		m.RecordCommand(cmd, duration, errorKind)
	}
}

// RecordMetaBytes records SENDMETA byte transfer, tolerating a nil metrics instance.
func RecordMetaBytes(m SessionMetrics, direction string, bytes uint64) {
	if m != nil {
		m.RecordMetaBytes(direction, bytes)
	}
}

// RecordFanoutDial records an outbound fan-out dial, tolerating a nil metrics instance.
func RecordFanoutDial(m SessionMetrics, host string, duration time.Duration, err error) {
	if m != nil {
		m.RecordFanoutDial(host, duration, err)
	}
}
