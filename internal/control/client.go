// Package control implements the client and server control-channel state
// machines (C3/C4) that drive TINIT/RINIT negotiation, metadata streaming,
// and session termination over an already-connected byte stream.
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

// ClientState enumerates the client-side control session states (§4.3).
type ClientState int

const (
	ClientInit ClientState = iota
	ClientTINITSent
	ClientRINITReceived
	ClientMetaStreaming
	ClientMetaFinSent
	ClientClosed
	ClientFailed
)

func (s ClientState) String() string {
	switch s {
	case ClientInit:
		return "INIT"
	case ClientTINITSent:
		return "TINIT_SENT"
	case ClientRINITReceived:
		return "RINIT_RECEIVED"
	case ClientMetaStreaming:
		return "META_STREAMING"
	case ClientMetaFinSent:
		return "META_FIN_SENT"
	case ClientClosed:
		return "CLOSED"
	case ClientFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ClientConfig carries the per-session parameters a client advertises in
// TINIT. Per §5/§9 these are captured per-session, never ambient.
type ClientConfig struct {
	CPUs     uint32
	PageSize uint32
	Options  []msg.Option
	Timeout  time.Duration // 0 selects wire.DefaultTimeout; a negative value disables the receive deadline (debug mode)
}

// Client drives one control session from the initiator's side: TINIT,
// RINIT, metadata streaming, FINMETA, CLOSE.
type Client struct {
	conn      net.Conn
	sessionID string
	cfg       ClientConfig
	metrics   metrics.SessionMetrics

	state  ClientState
	ports  []uint32
	useTCP bool
}

// NewClient creates a Client around an already-connected socket. m may be
// nil to disable metrics collection.
func NewClient(conn net.Conn, sessionID string, cfg ClientConfig, m metrics.SessionMetrics) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = wire.DefaultTimeout
	}
	return &Client{conn: conn, sessionID: sessionID, cfg: cfg, metrics: m, state: ClientInit}
}

// State returns the client's current state.
func (c *Client) State() ClientState { return c.state }

// Ports returns the per-CPU data ports published by RINIT. Valid only once
// State() >= ClientRINITReceived.
func (c *Client) Ports() []uint32 { return c.ports }

// UseTCP reports whether the negotiated TINIT carried the USETCP option.
func (c *Client) UseTCP() bool { return c.useTCP }

// Handshake sends TINIT and awaits RINIT, publishing the negotiated ports.
func (c *Client) Handshake(ctx context.Context) error {
	if c.state != ClientInit {
		return protoerr.Newf(protoerr.ProtocolViolation, "Handshake called in state %s", c.state)
	}

	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlTINIT, c.sessionID, c.conn.RemoteAddr().String(),
		telemetry.CPUCount(c.cfg.CPUs), telemetry.PageSize(c.cfg.PageSize))
	defer span.End()

	start := time.Now()
	body, autoTCP, err := msg.BuildTINIT(msg.TINIT{CPUs: c.cfg.CPUs, PageSize: c.cfg.PageSize, Options: c.cfg.Options})
	if err != nil {
		c.fail(ctx, "TINIT", start, err)
		return err
	}
	if autoTCP {
		logger.WarnCtx(ctx, "auto-negotiated TCP for large page size", logger.KeyPageSize, c.cfg.PageSize)
	}

	if err := wire.WriteFrame(c.conn, wire.CmdTINIT, body); err != nil {
		c.fail(ctx, "TINIT", start, err)
		return protoerr.Wrap(protoerr.KindOf(err), err)
	}
	c.state = ClientTINITSent
	metrics.RecordCommand(c.metrics, "TINIT", time.Since(start), "")

	return c.awaitRINIT(ctx)
}

func (c *Client) awaitRINIT(ctx context.Context) error {
	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlRINIT, c.sessionID, c.conn.RemoteAddr().String())
	defer span.End()

	start := time.Now()
	cmd, body, err := wire.ReadFrameTimeout(c.conn, c.cfg.Timeout)
	if err != nil {
		c.fail(ctx, "RINIT", start, err)
		return err
	}

	if cmd == wire.CmdClose {
		err := protoerr.New(protoerr.PeerClosed, "peer sent CLOSE instead of RINIT")
		c.fail(ctx, "RINIT", start, err)
		return err
	}
	if cmd != wire.CmdRINIT {
		err := protoerr.Newf(protoerr.ProtocolViolation, "expected RINIT, got %s", cmd)
		c.fail(ctx, "RINIT", start, err)
		return err
	}

	rinit, err := msg.ParseRINIT(body)
	if err != nil {
		c.fail(ctx, "RINIT", start, err)
		return err
	}

	c.ports = rinit.Ports
	c.useTCP = optsUseTCP(c.cfg.Options)
	c.state = ClientRINITReceived
	metrics.RecordCommand(c.metrics, "RINIT", time.Since(start), "")
	logger.InfoCtx(ctx, "handshake complete", logger.KeyCPUs, rinit.CPUs, logger.KeyPorts, rinit.Ports)
	return nil
}

func optsUseTCP(opts []msg.Option) bool {
	for _, o := range opts {
		if o.Cmd == msg.OptUseTCP {
			return true
		}
	}
	return false
}

// StreamMetadata reads from src in chunks of up to wire.MaxMetaChunk,
// emitting one SENDMETA frame per chunk, then a terminating FINMETA.
func (c *Client) StreamMetadata(ctx context.Context, src io.Reader) error {
	if c.state != ClientRINITReceived {
		return protoerr.Newf(protoerr.ProtocolViolation, "StreamMetadata called in state %s", c.state)
	}
	c.state = ClientMetaStreaming

	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlMeta, c.sessionID, c.conn.RemoteAddr().String())
	defer span.End()

	var totalBytes int
	var chunks int
	buf := make([]byte, wire.MaxMetaChunk)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			start := time.Now()
			body, buildErr := msg.BuildSendMetaChunk(buf[:n])
			if buildErr != nil {
				c.fail(ctx, "SENDMETA", start, buildErr)
				return buildErr
			}
			if writeErr := wire.WriteFrame(c.conn, wire.CmdSendMeta, body); writeErr != nil {
				wrapped := protoerr.Wrap(protoerr.KindOf(writeErr), writeErr)
				c.fail(ctx, "SENDMETA", start, wrapped)
				return wrapped
			}
			metrics.RecordCommand(c.metrics, "SENDMETA", time.Since(start), "")
			metrics.RecordMetaBytes(c.metrics, "write", uint64(n))
			if c.metrics != nil {
				c.metrics.RecordMetaChunk(uint64(n))
			}
			totalBytes += n
			chunks++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			wrapped := protoerr.Wrap(protoerr.Transport, err)
			c.fail(ctx, "SENDMETA", time.Now(), wrapped)
			return wrapped
		}
	}

	span.SetAttributes(telemetry.MetaBytes(totalBytes), telemetry.MetaChunks(chunks))

	start := time.Now()
	if err := wire.WriteFrame(c.conn, wire.CmdFinMeta, nil); err != nil {
		wrapped := protoerr.Wrap(protoerr.KindOf(err), err)
		c.fail(ctx, "FINMETA", start, wrapped)
		return wrapped
	}
	c.state = ClientMetaFinSent
	metrics.RecordCommand(c.metrics, "FINMETA", time.Since(start), "")
	logger.InfoCtx(ctx, "metadata stream complete", logger.KeyBytes, totalBytes)
	return nil
}

// Close emits CLOSE and marks the session CLOSED. The socket is already
// cached on the Client so an asynchronous exit path can call Close safely.
func (c *Client) Close(ctx context.Context) error {
	if c.state != ClientMetaFinSent {
		return protoerr.Newf(protoerr.ProtocolViolation, "Close called in state %s", c.state)
	}

	ctx, span := telemetry.StartControlSpan(ctx, telemetry.SpanControlClose, c.sessionID, c.conn.RemoteAddr().String())
	defer span.End()

	start := time.Now()
	if err := wire.WriteFrame(c.conn, wire.CmdClose, nil); err != nil {
		wrapped := protoerr.Wrap(protoerr.KindOf(err), err)
		c.fail(ctx, "CLOSE", start, wrapped)
		return wrapped
	}
	c.state = ClientClosed
	metrics.RecordCommand(c.metrics, "CLOSE", time.Since(start), "")
	logger.InfoCtx(ctx, "session closed")
	return nil
}

func (c *Client) fail(ctx context.Context, cmd string, start time.Time, err error) {
	c.state = ClientFailed
	kind := protoerr.KindOf(err)
	metrics.RecordCommand(c.metrics, cmd, time.Since(start), kind.String())
	logger.ErrorCtx(ctx, "control session failed", logger.KeyCmd, cmd, logger.KeyKind, kind.String(), logger.Err(err))
}
