package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/marmos91/tracelisten/cmd/tracelisten/internal/cliutil"
	"github.com/marmos91/tracelisten/internal/control"
	"github.com/marmos91/tracelisten/internal/fanout"
	"github.com/marmos91/tracelisten/internal/logger"
	"github.com/marmos91/tracelisten/pkg/config"
	"github.com/marmos91/tracelisten/pkg/metrics"
	"github.com/marmos91/tracelisten/pkg/session"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	defaultRecordCPUs     = 1
	defaultRecordPageSize = 4096
)

var recordCmd = &cobra.Command{
	Use:   "record --connect host [params...] [--connect host [params...] ...]",
	Short: "Drive one or more remote capture sessions",
	Long: `record parses one or more --connect repetitions into an ordered request
list (§4.6 of the control protocol) and runs an independent sub-session for
each: dial the host, hand off the joined parameter string via the
server-record sub-protocol, then drive the client handshake and metadata
stream. Metadata is read from stdin and forwarded to every sub-session.

Examples:
  tracelisten record --connect host1:7685 -e sched
  tracelisten record --connect host1:7685 -e sched --connect host2:7685 -e irq`,
	DisableFlagParsing: true,
	RunE:               runRecord,
}

func init() {
	// Flag parsing is disabled: --connect is not a conventional flag, it
	// introduces a repeated argv grammar parsed by internal/fanout per §4.6.
}

func runRecord(cmd *cobra.Command, args []string) error {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return cmd.Help()
		}
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		cfg = config.GetDefaultConfig()
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	reqs, err := fanout.ParseConnectArgs(args)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return fmt.Errorf("record requires at least one --connect host")
	}

	dialTimeout := cfg.Fanout.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}
	defaultPort := int(cfg.Server.Port)

	var m metrics.SessionMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		m = metrics.NewSessionMetrics()
	}

	meta, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read metadata from stdin: %w", err)
	}

	report := cliutil.NewFanoutReport()
	results := fanout.Run(context.Background(), reqs, func(ctx context.Context, req fanout.RecordReq) error {
		ports, err := dialAndRecord(ctx, req, defaultPort, dialTimeout, cfg, m, meta)
		status := "ok"
		if err != nil {
			status = err.Error()
		}
		report.Add(req.HostString, fmt.Sprint(ports), status)
		return err
	})

	cliutil.PrintTable(os.Stdout, report)

	if fanout.AnyFailed(results) {
		return fmt.Errorf("one or more --connect sub-sessions failed")
	}
	return nil
}

func dialAndRecord(ctx context.Context, req fanout.RecordReq, defaultPort int, dialTimeout time.Duration, cfg *config.Config, m metrics.SessionMetrics, meta []byte) ([]uint32, error) {
	addr := resolveAddr(req, defaultPort)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	start := time.Now()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	metrics.RecordFanoutDial(m, addr, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if m != nil {
		m.RecordFanoutSession(addr)
	}

	sessionID := uuid.NewString()
	lc := logger.NewLogContext(sessionID, addr)
	ctx = logger.WithContext(ctx, lc)

	handshakeTimeout := cfg.Server.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = 10 * time.Second
	}

	if req.Param != "" {
		if err := control.SendServerRecordReq(ctx, conn, sessionID, req.Param, handshakeTimeout); err != nil {
			return nil, fmt.Errorf("server-record handshake with %s: %w", addr, err)
		}
	}

	ports, err := session.RunClient(ctx, conn, session.ClientOptions{
		CPUs:     defaultRecordCPUs,
		PageSize: defaultRecordPageSize,
		Timeout:  handshakeTimeout,
	}, bytes.NewReader(meta), m)
	if err != nil {
		return ports, fmt.Errorf("control session with %s: %w", addr, err)
	}
	return ports, nil
}

func resolveAddr(req fanout.RecordReq, defaultPort int) string {
	port := req.Port()
	if port == "" {
		return net.JoinHostPort(req.HostString, strconv.Itoa(defaultPort))
	}
	return req.HostString
}
