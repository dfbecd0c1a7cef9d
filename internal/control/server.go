package control

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/marmos91/tracelisten/internal/logger"
	"github.com/marmos91/tracelisten/internal/msg"
	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/marmos91/tracelisten/internal/telemetry"
	"github.com/marmos91/tracelisten/internal/wire"
	"github.com/marmos91/tracelisten/pkg/metrics"
)

// ServerState enumerates the server-side control session states (§4.4).
type ServerState int

const (
	ServerListen ServerState = iota
	ServerTINITReceived
	ServerRINITSent
	ServerMetaIngest
	ServerDone
	ServerFailed
)

func (s ServerState) String() string {
	switch s {
	case ServerListen:
		return "LISTEN"
	case ServerTINITReceived:
		return "TINIT_RECEIVED"
	case ServerRINITSent:
		return "RINIT_SENT"
	case ServerMetaIngest:
		return "META_INGEST"
	case ServerDone:
		return "DONE"
	case ServerFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// PortAllocator supplies per-CPU data ports once a TINIT has been received
// and validated. Establishing the actual kernel-tracing data sockets is out
// of scope (§1); the server only needs a port number per CPU.
type PortAllocator func(ctx context.Context, cpus uint32, useTCP bool) ([]uint32, error)

// ServerConfig carries the per-session parameters the server needs to
// complete a handshake and ingest metadata.
type ServerConfig struct {
	Timeout       time.Duration // 0 selects wire.DefaultTimeout; a negative value disables the receive deadline (debug mode)
	AllocatePorts PortAllocator

	// CPUMax caps the CPU count a TINIT may negotiate. It is a deployment
	// policy knob, distinct from wire.CPUMax: the RINIT port array is
	// always wire.CPUMax wide on the wire regardless of this cap. 0
	// defaults to wire.CPUMax (no tighter cap than the wire format itself).
	CPUMax uint32
}

// Server drives one control session from the acceptor's side: TINIT,
// RINIT, metadata ingest, CLOSE.
type Server struct {
	conn      net.Conn
	sessionID string
	cfg       ServerConfig
	metrics   metrics.SessionMetrics

	state ServerState
	tinit msg.TINIT
}

// NewServer creates a Server around an already-accepted socket. m may be
// nil to disable metrics collection.
func NewServer(conn net.Conn, sessionID string, cfg ServerConfig, m metrics.SessionMetrics) *Server {
	if cfg.Timeout == 0 {
		cfg.Timeout = wire.DefaultTimeout
	}
	if cfg.CPUMax == 0 {
		cfg.CPUMax = wire.CPUMax
	}
	return &Server{conn: conn, sessionID: sessionID, cfg: cfg, metrics: m, state: ServerListen}
}

// State returns the server's current state.
func (s *Server) State() ServerState { return s.state }

// TINIT returns the negotiated handshake parameters. Valid once
// State() >= ServerTINITReceived.
func (s *Server) TINIT() msg.TINIT { return s.tinit }

// Handshake receives TINIT, validates it, allocates ports, and sends RINIT.
func (srv *Server) Handshake(ctx context.Context) error {
	if srv.state != ServerListen {
		return protoerr.Newf(protoerr.ProtocolViolation, "Handshake called in state %s", srv.state)
	}

	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlTINIT, srv.sessionID, srv.conn.RemoteAddr().String())
	defer span.End()

	start := time.Now()
	cmd, body, err := wire.ReadFrameTimeout(srv.conn, srv.cfg.Timeout)
	if err != nil {
		srv.fail(ctx, "TINIT", start, err)
		return err
	}
	if cmd != wire.CmdTINIT {
		err := protoerr.Newf(protoerr.ProtocolViolation, "expected TINIT, got %s", cmd)
		srv.fail(ctx, "TINIT", start, err)
		return err
	}

	tinit, err := msg.ParseTINIT(body)
	if err != nil {
		srv.fail(ctx, "TINIT", start, err)
		return err
	}
	if tinit.CPUs > srv.cfg.CPUMax {
		err := protoerr.Newf(protoerr.ResourceExhaustion, "TINIT cpus %d exceeds configured CPU_MAX cap %d", tinit.CPUs, srv.cfg.CPUMax)
		srv.fail(ctx, "TINIT", start, err)
		return err
	}
	srv.tinit = tinit
	srv.state = ServerTINITReceived
	metrics.RecordCommand(srv.metrics, "TINIT", time.Since(start), "")
	logger.InfoCtx(ctx, "handshake received", logger.KeyCPUs, tinit.CPUs, logger.KeyPageSize, tinit.PageSize, logger.KeyUseTCP, tinit.UsesTCP())

	return srv.sendRINIT(ctx)
}

func (srv *Server) sendRINIT(ctx context.Context) error {
	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlRINIT, srv.sessionID, srv.conn.RemoteAddr().String())
	defer span.End()

	start := time.Now()
	var ports []uint32
	var err error
	if srv.cfg.AllocatePorts != nil {
		ports, err = srv.cfg.AllocatePorts(ctx, srv.tinit.CPUs, srv.tinit.UsesTCP())
		if err != nil {
			wrapped := protoerr.Wrap(protoerr.ResourceExhaustion, err)
			srv.fail(ctx, "RINIT", start, wrapped)
			return wrapped
		}
	}

	body, err := msg.BuildRINIT(msg.RINIT{CPUs: srv.tinit.CPUs, Ports: ports})
	if err != nil {
		srv.fail(ctx, "RINIT", start, err)
		return err
	}
	if err := wire.WriteFrame(srv.conn, wire.CmdRINIT, body); err != nil {
		wrapped := protoerr.Wrap(protoerr.KindOf(err), err)
		srv.fail(ctx, "RINIT", start, wrapped)
		return wrapped
	}

	srv.state = ServerRINITSent
	metrics.RecordCommand(srv.metrics, "RINIT", time.Since(start), "")
	logger.InfoCtx(ctx, "RINIT sent", logger.KeyPorts, ports)
	return nil
}

// IngestMetadata repeatedly receives SENDMETA frames, writing each payload
// to sink in order, until FINMETA terminates the stream. No partial
// SENDMETA payload is ever delivered.
func (srv *Server) IngestMetadata(ctx context.Context, sink io.Writer) error {
	if srv.state != ServerRINITSent {
		return protoerr.Newf(protoerr.ProtocolViolation, "IngestMetadata called in state %s", srv.state)
	}
	srv.state = ServerMetaIngest

	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlMeta, srv.sessionID, srv.conn.RemoteAddr().String())
	defer span.End()

	var totalBytes int
	var chunks int
	for {
		start := time.Now()
		cmd, body, err := wire.ReadFrameTimeout(srv.conn, srv.cfg.Timeout)
		if err != nil {
			srv.fail(ctx, "SENDMETA", start, err)
			return err
		}

		switch cmd {
		case wire.CmdSendMeta:
			payload, err := msg.ParseSendMeta(body)
			if err != nil {
				srv.fail(ctx, "SENDMETA", start, err)
				return err
			}
			if _, err := writeFull(sink, payload); err != nil {
				wrapped := protoerr.Wrap(protoerr.Transport, err)
				srv.fail(ctx, "SENDMETA", start, wrapped)
				return wrapped
			}
			metrics.RecordCommand(srv.metrics, "SENDMETA", time.Since(start), "")
			metrics.RecordMetaBytes(srv.metrics, "read", uint64(len(payload)))
			if srv.metrics != nil {
				srv.metrics.RecordMetaChunk(uint64(len(payload)))
			}
			totalBytes += len(payload)
			chunks++
		case wire.CmdFinMeta:
			metrics.RecordCommand(srv.metrics, "FINMETA", time.Since(start), "")
			span.SetAttributes(telemetry.MetaBytes(totalBytes), telemetry.MetaChunks(chunks))
			logger.InfoCtx(ctx, "metadata ingest complete", logger.KeyBytes, totalBytes)
			return srv.awaitClose(ctx)
		default:
			err := protoerr.Newf(protoerr.ProtocolViolation, "expected SENDMETA or FINMETA, got %s", cmd)
			srv.fail(ctx, "SENDMETA", start, err)
			return err
		}
	}
}

func (srv *Server) awaitClose(ctx context.Context) error {
	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlClose, srv.sessionID, srv.conn.RemoteAddr().String())
	defer span.End()

	start := time.Now()
	cmd, _, err := wire.ReadFrameTimeout(srv.conn, srv.cfg.Timeout)
	if err != nil {
		srv.fail(ctx, "CLOSE", start, err)
		return err
	}
	if cmd != wire.CmdClose {
		err := protoerr.Newf(protoerr.ProtocolViolation, "expected CLOSE, got %s", cmd)
		srv.fail(ctx, "CLOSE", start, err)
		return err
	}

	srv.state = ServerDone
	metrics.RecordCommand(srv.metrics, "CLOSE", time.Since(start), "")
	logger.InfoCtx(ctx, "session done")
	return nil
}

func (srv *Server) fail(ctx context.Context, cmd string, start time.Time, err error) {
	srv.state = ServerFailed
	kind := protoerr.KindOf(err)
	metrics.RecordCommand(srv.metrics, cmd, time.Since(start), kind.String())
	logger.ErrorCtx(ctx, "control session failed", logger.KeyCmd, cmd, logger.KeyKind, kind.String(), logger.Err(err))
}

// writeFull writes all of p to w, handling short writes.
func writeFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
