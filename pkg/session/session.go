// Package session is the public API surface over internal/wire,
// internal/msg, and internal/control: it ties the frame codec, message
// builders, and client/server state machines into ready-to-drive session
// types for cmd/tracelisten and any embedding caller.
package session

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/marmos91/tracelisten/internal/control"
	"github.com/marmos91/tracelisten/internal/msg"
	"github.com/marmos91/tracelisten/internal/protoerr"
	"github.com/marmos91/tracelisten/pkg/config"
	"github.com/marmos91/tracelisten/pkg/metrics"

	"github.com/google/uuid"
)

// activeSessions tracks the process-wide count of in-flight sessions so it
// can be published via SessionMetrics.SetActiveSessions. This is the one
// piece of state that is legitimately process-wide rather than per-session
// (§5): a gauge, not a control parameter.
var activeSessions atomic.Int32

func adjustActiveSessions(m metrics.SessionMetrics, delta int32) {
	count := activeSessions.Add(delta)
	if m != nil {
		m.SetActiveSessions(count)
	}
}

// ClientOptions configures a recording client session.
type ClientOptions struct {
	CPUs     uint32
	PageSize uint32
	UseTCP   bool
	Timeout  time.Duration
}

// RunClient drives a complete client session over conn: handshake, stream
// metadata from src, then close. It returns the negotiated per-CPU ports
// (useful for logging/diagnostics) and any session error.
func RunClient(ctx context.Context, conn net.Conn, opts ClientOptions, src io.Reader, m metrics.SessionMetrics) ([]uint32, error) {
	var options []msg.Option
	if opts.UseTCP {
		options = append(options, msg.Option{Cmd: msg.OptUseTCP})
	}

	sessionID := uuid.NewString()
	c := control.NewClient(conn, sessionID, control.ClientConfig{
		CPUs:     opts.CPUs,
		PageSize: opts.PageSize,
		Options:  options,
		Timeout:  opts.Timeout,
	}, m)

	adjustActiveSessions(m, 1)
	defer adjustActiveSessions(m, -1)

	if err := c.Handshake(ctx); err != nil {
		return nil, err
	}
	if err := c.StreamMetadata(ctx, src); err != nil {
		return c.Ports(), err
	}
	if err := c.Close(ctx); err != nil {
		return c.Ports(), err
	}
	return c.Ports(), nil
}

// ServerOptions configures an accepting server session.
type ServerOptions struct {
	Timeout       time.Duration
	AllocatePorts control.PortAllocator
	CPUMax        uint32
}

// RunServer drives a complete server session over conn: handshake, ingest
// metadata into sink, then await CLOSE.
func RunServer(ctx context.Context, conn net.Conn, opts ServerOptions, sink io.Writer, m metrics.SessionMetrics) error {
	sessionID := uuid.NewString()
	s := control.NewServer(conn, sessionID, control.ServerConfig{
		Timeout:       opts.Timeout,
		AllocatePorts: opts.AllocatePorts,
		CPUMax:        opts.CPUMax,
	}, m)

	if m != nil {
		m.RecordSessionAccepted()
	}
	adjustActiveSessions(m, 1)
	defer adjustActiveSessions(m, -1)

	if err := s.Handshake(ctx); err != nil {
		recordSessionOutcome(m, err)
		return err
	}
	err := s.IngestMetadata(ctx, sink)
	recordSessionOutcome(m, err)
	return err
}

func recordSessionOutcome(m metrics.SessionMetrics, err error) {
	if m == nil {
		return
	}
	if err != nil {
		if protoerr.KindOf(err) == protoerr.Timeout {
			m.RecordSessionForceClosed()
		}
		return
	}
	m.RecordSessionClosed()
}

// ServerConfigFromAppConfig adapts pkg/config's ServerConfig into the
// control package's per-session options.
func ServerConfigFromAppConfig(cfg config.ServerConfig, allocate control.PortAllocator) ServerOptions {
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return ServerOptions{Timeout: timeout, AllocatePorts: allocate, CPUMax: cfg.CPUMax}
}
