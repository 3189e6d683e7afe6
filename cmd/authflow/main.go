// Command authflow walks the registration, recovery and login flows against
// a running identityd from the terminal.
//
//	authflow -server http://127.0.0.1:8080
//	authflow -server http://127.0.0.1:8080 -locale zh-CN -metrics-addr :9091
//
// Step changes, field errors and the resend cooldown are printed on stdout;
// audit events go to stderr, or -audit-file, as JSON lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/gateway/httpgw"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type options struct {
	server      string
	configPath  string
	locale      string
	metricsAddr string
	logLevel    string
	noAudit     bool
	auditFile   string
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://127.0.0.1:8080", "identityd base URL")
	flag.StringVar(&opts.configPath, "config", "", "path to an authflow YAML config")
	flag.StringVar(&opts.locale, "locale", "en", "language for messages, e.g. en or zh-CN")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")
	flag.BoolVar(&opts.noAudit, "no-audit", false, "do not record audit events")
	flag.StringVar(&opts.auditFile, "audit-file", "", "append audit events to this file instead of stderr")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "authflow: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout, stderr io.Writer) error {
	logger, err := logging.NewWithWriter(stderr, opts.logLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	auditOut := stderr
	if opts.auditFile != "" {
		f, err := os.OpenFile(opts.auditFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("audit file: %w", err)
		}
		defer f.Close()
		auditOut = f
	}

	client, err := buildClient(opts, auditOut, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if opts.metricsAddr != "" {
		shutdown := serveMetrics(opts.metricsAddr, client, logger)
		defer shutdown()
	}

	ctx = authflow.WithLocale(ctx, opts.locale)
	ctx = authflow.WithRequestID(ctx, uuid.NewString())
	return newShell(client, stdin, stdout).run(ctx)
}

func buildClient(opts options, auditOut io.Writer, logger *zap.Logger) (*authflow.Client, error) {
	cfg := authflow.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := authflow.LoadConfigFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}
	cfg.Audit.Enabled = !opts.noAudit
	for _, w := range cfg.Lint() {
		logger.Warn("config lint", zap.String("code", w.Code), zap.String("message", w.Message))
	}

	gw, err := httpgw.New(opts.server,
		httpgw.WithLogger(logger.Named("gateway")),
		httpgw.WithUserAgent("authflow-cli/1"),
	)
	if err != nil {
		return nil, err
	}

	// At debug level audit events also show up in the log.
	var sink authflow.AuditSink = authflow.NewJSONWriterSink(auditOut)
	if logger.Core().Enabled(zap.DebugLevel) {
		sink = authflow.MultiSink{sink, authflow.NewZapSink(logger.Named("audit"))}
	}

	return authflow.New().
		WithConfig(cfg).
		WithGateway(gw).
		WithLogger(logger).
		WithAuditSink(sink).
		Build()
}

// serveMetrics exposes the client counters until the returned func runs.
func serveMetrics(addr string, client *authflow.Client, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewPrometheusExporter(client).Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
