package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rbright/cgproxy/internal/api"
	"github.com/rbright/cgproxy/internal/cgminer"
	"github.com/rbright/cgproxy/internal/cli"
	"github.com/rbright/cgproxy/internal/config"
	"github.com/rbright/cgproxy/internal/doctor"
	"github.com/rbright/cgproxy/internal/health"
	"github.com/rbright/cgproxy/internal/logging"
	"github.com/rbright/cgproxy/internal/minerd"
	"github.com/rbright/cgproxy/internal/observability"
	"github.com/rbright/cgproxy/internal/version"
)

const (
	binaryName          = "cgproxy"
	defaultSimulateAddr = "127.0.0.1:4028"
	readHeaderTimeout   = 10 * time.Second
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// OnListen, when set, is called with each bound listener address.
	OnListen func(name string, addr net.Addr)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log, r.Stderr)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"miner", cfgLoaded.Config.Miner.Addr(),
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, newMinerClient(cfgLoaded.Config, logger))
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandSend:
		return r.commandSend(ctx, cfgLoaded.Config, logger, parsed.Args)
	case cli.CommandSimulate:
		addr := defaultSimulateAddr
		if parsed.Listen != "" {
			addr = parsed.Listen
		}
		return r.commandSimulate(ctx, addr, logger)
	case cli.CommandServe:
		cfg := cfgLoaded.Config
		if parsed.Listen != "" {
			host, port, err := splitListen(parsed.Listen)
			if err != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
				return 2
			}
			cfg.HTTP.Host, cfg.HTTP.Port = host, port
		}
		return r.commandServe(ctx, cfg, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// newMinerClient builds the daemon client with logging and metrics attached.
func newMinerClient(cfg config.Config, logger *slog.Logger) *cgminer.Client {
	return cgminer.NewClient(cgminer.Config{
		Host:             cfg.Miner.Host,
		Port:             cfg.Miner.Port,
		ConnectTimeout:   cfg.Miner.ConnectTimeout,
		CommandTimeout:   cfg.Miner.CommandTimeout,
		MaxResponseBytes: cfg.Miner.MaxResponseBytes,
	},
		cgminer.WithLogger(logger),
		cgminer.WithObserver(observability.CommandObserver()),
	)
}

func (r Runner) commandSend(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) int {
	command := args[0]
	if len(args) > 1 && args[1] != "" {
		command += "|" + args[1]
	}

	reply, err := newMinerClient(cfg, logger).SendCommand(ctx, command)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: encode reply: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, string(out))
	return 0
}

func (r Runner) commandSimulate(ctx context.Context, addr string, logger *slog.Logger) int {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: listen %s: %v\n", addr, err)
		return 1
	}
	r.announce("simulate", listener.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	simulator := minerd.NewSimulator(minerd.WithQuitHook(cancel))
	logger.Info("simulator listening", "addr", listener.Addr().String())
	fmt.Fprintf(r.Stdout, "simulated cgminer API on %s\n", listener.Addr())

	if err := minerd.Serve(ctx, listener, simulator); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	logger.Info("simulator stopped")
	return 0
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup tracing: %v\n", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err.Error())
		}
	}()

	observability.RegisterMetrics()
	miner := newMinerClient(cfg, logger)

	listener, err := net.Listen("tcp", cfg.HTTP.ListenAddr())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: listen %s: %v\n", cfg.HTTP.ListenAddr(), err)
		return 1
	}
	r.announce("http", listener.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	healthDone := make(chan error, 1)
	if addr := strings.TrimSpace(cfg.Health.GRPCAddr); addr != "" {
		healthListener, err := net.Listen("tcp", addr)
		if err != nil {
			_ = listener.Close()
			fmt.Fprintf(r.Stderr, "error: listen %s: %v\n", addr, err)
			return 1
		}
		r.announce("health", healthListener.Addr())

		healthServer := health.New(miner, cfg.Health.ProbeInterval,
			health.WithLogger(logger),
			health.WithProbeHook(observability.SetMinerUp),
		)
		go func() {
			healthDone <- healthServer.Run(ctx, healthListener)
		}()
		logger.Info("health server listening", "addr", healthListener.Addr().String())
	} else {
		healthDone <- nil
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Handler:           api.NewRouter(miner, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	logger.Info("proxy listening", "addr", listener.Addr().String(), "miner", cfg.Miner.Addr())
	fmt.Fprintf(r.Stdout, "cgminer proxy on http://%s -> %s\n", listener.Addr(), cfg.Miner.Addr())

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(r.Stderr, "error: http server: %v\n", err)
			exitCode = 1
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err.Error())
	}
	if err := <-healthDone; err != nil {
		fmt.Fprintf(r.Stderr, "error: health server: %v\n", err)
		exitCode = 1
	}

	logger.Info("proxy stopped")
	return exitCode
}

func (r Runner) announce(name string, addr net.Addr) {
	if r.OnListen != nil {
		r.OnListen(name, addr)
	}
}

func splitListen(raw string) (string, int, error) {
	host, portText, err := net.SplitHostPort(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --listen %q: %w", raw, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid --listen port %q", portText)
	}
	return host, port, nil
}
