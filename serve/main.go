// Command inklingd is the inkling daemon.
// It listens on a Unix domain socket for editor events, keeps a suggestion
// session per editor view and streams ghost text back to the editor.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type options struct {
	verbose     bool
	socket      string
	codec       string
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "inklingd",
		Short:         "Inline ghost-text suggestion daemon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.SetVersionTemplate("inklingd {{.Version}}\n")

	flags := cmd.Flags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every event and message")
	flags.StringVar(&opts.socket, "socket", "", "socket path (default $INKLING_SOCKET, then $XDG_RUNTIME_DIR/inkling.sock)")
	flags.StringVar(&opts.codec, "codec", CodecJSON, "wire format: json or msgpack")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. localhost:9464")
	return cmd
}

func setupLogging(verbose bool) {
	level := charmlog.InfoLevel
	if verbose {
		level = charmlog.DebugLevel
	}
	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "inklingd",
	})
	slog.SetDefault(slog.New(logger))
}

func run(opts options) error {
	setupLogging(opts.verbose)

	socketPath := opts.socket
	if socketPath == "" {
		socketPath = resolveSocketPath()
	}

	slog.Info("starting", "socket", socketPath, "codec", opts.codec)

	srv, err := NewServer(socketPath, opts.codec)
	if err != nil {
		slog.Error("failed to start server", "error", err)
		return err
	}
	defer srv.Close()

	if opts.metricsAddr != "" {
		go serveMetrics(opts.metricsAddr)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutting down")
		srv.Close()
	}()

	slog.Info("ready")
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		return err
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics endpoint", "addr", addr, "path", "/metrics")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("metrics server stopped", "error", err)
	}
}

func resolveSocketPath() string {
	if path := os.Getenv("INKLING_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/inkling.sock"
	}
	return fmt.Sprintf("/tmp/inkling-%d.sock", os.Getuid())
}
