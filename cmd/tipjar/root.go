package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vitwit/tipjar/logger"
	"github.com/vitwit/tipjar/metrics"
)

const (
	keyConfig      = "config"
	keyEnvFile     = "env-file"
	keyLogLevel    = "log-level"
	keyLogFormat   = "log-format"
	keyMetricsAddr = "metrics-addr"
)

// baseConfiguration is shared by all subcommands and filled in before any of
// them runs.
type baseConfiguration struct {
	CfgFile     string
	EnvFile     string
	LogLevel    string
	LogFormat   string
	MetricsAddr string

	config   *fileConfig
	logger   *logger.ZapLogger
	recorder metrics.Recorder

	shutdownFuncs []func(context.Context) error
}

type tipjarApp struct {
	baseCmd    *cobra.Command
	baseConfig *baseConfiguration
}

func newApp() *tipjarApp {
	base := &baseConfiguration{recorder: metrics.NoopRecorder{}}

	baseCmd := &cobra.Command{
		Use:           "tipjar",
		Short:         "Send USDC tips through your own wallet",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := base.initialize(); err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return nil
		},
	}

	flags := baseCmd.PersistentFlags()
	flags.StringVar(&base.CfgFile, keyConfig, "", "config file (yaml, json or toml); TIPJAR_* env vars override it")
	flags.StringVar(&base.EnvFile, keyEnvFile, ".env", "dotenv file with TIPJAR_* variables; a missing file is ignored")
	flags.StringVar(&base.LogLevel, keyLogLevel, "info", "log level (debug, info, warn, error)")
	flags.StringVar(&base.LogFormat, keyLogFormat, "console", "log format (json or console)")
	flags.StringVar(&base.MetricsAddr, keyMetricsAddr, "", "serve prometheus metrics on this address while running")

	baseCmd.AddCommand(newSendCmd(base))
	baseCmd.AddCommand(newEncodeCmd(base))
	baseCmd.AddCommand(newBalanceCmd(base))

	return &tipjarApp{baseCmd: baseCmd, baseConfig: base}
}

// Execute runs the command line and releases everything initialize set up.
func (a *tipjarApp) Execute(ctx context.Context) (err error) {
	defer func() {
		if serr := a.baseConfig.shutdown(); serr != nil {
			err = errors.Join(err, serr)
		}
	}()
	return a.baseCmd.ExecuteContext(ctx)
}

func (b *baseConfiguration) initialize() error {
	// variables already in the environment win over the file
	if b.EnvFile != "" {
		if err := godotenv.Load(b.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", b.EnvFile, err)
		}
	}

	cfg, err := loadConfig(b.CfgFile)
	if err != nil {
		return err
	}
	b.config = cfg

	log, err := logger.NewZapLogger(b.LogLevel, b.LogFormat)
	if err != nil {
		return err
	}
	b.logger = log
	b.shutdownFuncs = append(b.shutdownFuncs, func(context.Context) error {
		// stderr cannot be synced on some platforms
		_ = log.Sync()
		return nil
	})

	if b.MetricsAddr != "" {
		if err := b.serveMetrics(); err != nil {
			return err
		}
	}

	return nil
}

func (b *baseConfiguration) serveMetrics() error {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	b.recorder = rec

	ln, err := net.Listen("tcp", b.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.MetricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("metrics server stopped", map[string]any{"error": err.Error()})
		}
	}()
	b.logger.Info("serving metrics", map[string]any{"addr": ln.Addr().String()})

	b.shutdownFuncs = append(b.shutdownFuncs, srv.Shutdown)
	return nil
}

func (b *baseConfiguration) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	// reverse order, the logger goes last
	for i := len(b.shutdownFuncs) - 1; i >= 0; i-- {
		if err := b.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.shutdownFuncs = nil
	return errors.Join(errs...)
}
