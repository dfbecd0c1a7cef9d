package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so downstream log aggregation can query on them.
const (
	// Distributed tracing.
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Session & connection.
	KeySessionID = "session_id"
	KeyPeer      = "peer"
	KeyCmd       = "cmd"       // wire command name: TINIT, RINIT, SENDMETA, ...
	KeyFrameSize = "frame_size"

	// Protocol parameters.
	KeyCPUs     = "cpus"
	KeyPageSize = "page_size"
	KeyUseTCP   = "use_tcp"
	KeyPorts    = "ports"

	// Fan-out.
	KeyHost  = "host"
	KeyPort  = "port"
	KeyParam = "param"

	// Operation metadata.
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyKind       = "kind" // protoerr.Kind
	KeyBytes      = "bytes"
)

// SessionID returns a slog.Attr for the session identifier.
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// Peer returns a slog.Attr for the remote address.
func Peer(addr string) slog.Attr { return slog.String(KeyPeer, addr) }

// Cmd returns a slog.Attr for the wire command name.
func Cmd(name string) slog.Attr { return slog.String(KeyCmd, name) }

// FrameSize returns a slog.Attr for a frame's total wire size.
func FrameSize(n uint32) slog.Attr { return slog.Uint64(KeyFrameSize, uint64(n)) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr wrapping an error's message.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Kind returns a slog.Attr for a protocol error kind.
func Kind(kind string) slog.Attr { return slog.String(KeyKind, kind) }

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int) slog.Attr { return slog.Int(KeyBytes, n) }
