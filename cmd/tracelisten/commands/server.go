package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/tracelisten/internal/logger"
	"github.com/marmos91/tracelisten/internal/telemetry"
	"github.com/marmos91/tracelisten/pkg/config"
	"github.com/marmos91/tracelisten/pkg/metrics"
	"github.com/marmos91/tracelisten/pkg/session"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	serverPort       uint16
	serverLogFile    string
	serverDaemonize  bool
	serverCPUMax     uint32
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control-protocol server",
	Long: `server accepts TINIT control sessions, negotiates per-CPU data ports via
RINIT, ingests the streamed metadata, and observes CLOSE. A port is required;
tracelisten never binds a compiled-in default.

Examples:
  tracelisten server -p 7685
  tracelisten server -p 7685 -l /var/log/tracelisten.log -D`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().Uint16VarP(&serverPort, "port", "p", 0, "control-channel listen port (required)")
	serverCmd.Flags().StringVarP(&serverLogFile, "log-file", "l", "", "path to log file (default: stdout)")
	serverCmd.Flags().BoolVarP(&serverDaemonize, "daemon", "D", false, "daemonize (relaunch detached) before binding")
	serverCmd.Flags().Uint32Var(&serverCPUMax, "cpu-max", 0, "override negotiated CPU_MAX cap (default: 256)")
	_ = serverCmd.MarkFlagRequired("port")
}

func runServer(cmd *cobra.Command, args []string) error {
	if serverDaemonize {
		return daemonizeServer()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		cfg = config.GetDefaultConfig()
	}
	cfg.Server.Port = serverPort
	if serverLogFile != "" {
		cfg.Logging.Output = serverLogFile
	}
	if serverCPUMax != 0 {
		cfg.Server.CPUMax = serverCPUMax
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tracelisten",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	var sessionMetrics metrics.SessionMetrics
	if cfg.Metrics.Enabled {
		reg := metrics.InitRegistry()
		sessionMetrics = metrics.NewSessionMetrics()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(sigCtx, cfg, sessionMetrics)
}

// serve binds the control-channel listener and accepts sessions until ctx
// is cancelled. Each accepted connection runs its own goroutine; per-CPU
// ports are allocated by a stub allocator since establishing the actual
// kernel-tracing data sockets is out of scope (§1 of the protocol spec).
func serve(ctx context.Context, cfg *config.Config, m metrics.SessionMetrics) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	defer ln.Close()

	logger.Info("control server listening", logger.KeyPeer, addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("control server shutting down")
				return nil
			default:
				return fmt.Errorf("accept failed: %w", err)
			}
		}
		go handleConn(ctx, conn, cfg, m)
	}
}

func handleConn(ctx context.Context, conn net.Conn, cfg *config.Config, m metrics.SessionMetrics) {
	defer conn.Close()

	sessionID := uuid.NewString()
	lc := logger.NewLogContext(sessionID, conn.RemoteAddr().String())
	ctx = logger.WithContext(ctx, lc)

	timeout := cfg.Server.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	allocate := func(_ context.Context, cpus uint32, _ bool) ([]uint32, error) {
		return stubAllocatePorts(cpus), nil
	}

	var sink bytesDiscard
	opts := session.ServerOptions{Timeout: timeout, AllocatePorts: allocate, CPUMax: cfg.Server.CPUMax}
	if err := session.RunServer(ctx, conn, opts, &sink, m); err != nil {
		logger.ErrorCtx(ctx, "control session ended with error", logger.Err(err))
		return
	}
	logger.InfoCtx(ctx, "control session completed")
}

// stubAllocatePorts returns placeholder per-CPU ports. Establishing the
// real kernel-tracing data sockets is delegated to an external helper
// (§1, out of scope for this protocol core); a production deployment
// replaces this with calls into that helper.
func stubAllocatePorts(cpus uint32) []uint32 {
	ports := make([]uint32, cpus)
	for i := range ports {
		ports[i] = 40000 + uint32(i)
	}
	return ports
}

// bytesDiscard is an io.Writer sink for received metadata when no
// filesystem destination was configured. A real deployment wires the
// filesystem sink named in §1 (out of scope for the core) here instead.
type bytesDiscard struct{ n int }

func (b *bytesDiscard) Write(p []byte) (int, error) {
	b.n += len(p)
	return len(p), nil
}

func daemonizeServer() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := GetDefaultPidFile()
	if _, err := os.Stat(pidPath); err == nil {
		pidData, readErr := os.ReadFile(pidPath)
		if readErr == nil {
			return fmt.Errorf("tracelisten may already be running (stale pid file %s: %s)", pidPath, string(pidData))
		}
	}

	logPath := serverLogFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	daemonArgs := []string{"server", "-p", fmt.Sprintf("%d", serverPort), "-l", logPath}
	if cfgFile != "" {
		daemonArgs = append(daemonArgs, "--config", cfgFile)
	}

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFileHandle.Close()

	cmd := exec.Command(executable, daemonArgs...)
	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", cmd.Process.Pid)), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	fmt.Printf("tracelisten started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	return nil
}
