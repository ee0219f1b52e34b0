package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/config"
	"github.com/core-tools/hsu-rmq-launcher/pkg/launcher"
	"github.com/core-tools/hsu-rmq-launcher/pkg/logging"
	"github.com/core-tools/hsu-rmq-launcher/pkg/metrics"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config         string        `long:"config" short:"c" description:"YAML or TOML configuration file"`
	ErlangHome     string        `long:"erlang-home" description:"Erlang installation directory"`
	RabbitMQHome   string        `long:"rabbitmq-home" description:"RabbitMQ installation directory"`
	BaseDir        string        `long:"base-dir" description:"directory below which instance directories are created"`
	Listen         string        `long:"listen" description:"IPv4 address the broker listens on"`
	PortAllocation string        `long:"port-allocation" choice:"fixed" choice:"free" description:"how the four instance ports are chosen"`
	PortBase       int           `long:"port-base" description:"first port of the fixed allocation"`
	StopTimeout    time.Duration `long:"stop-timeout" description:"grace period before the broker is killed on shutdown"`
	IsolateEPMD    bool          `long:"isolate-epmd" description:"run a private Erlang port mapper on the peer discovery port"`
	RemoveOnExit   bool          `long:"remove-on-exit" description:"delete the instance directory when the broker ends"`
	LogLevel       string        `long:"log-level" description:"debug, info, warn or error"`
	LogFormat      string        `long:"log-format" choice:"console" choice:"json" description:"log encoding"`
	MetricsAddr    string        `long:"metrics-addr" description:"serve Prometheus metrics on this address"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var opts flagOptions
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return 0
		}
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		return 1
	}

	cfg := config.DefaultConfig()
	if opts.Config != "" {
		cfg, err = config.LoadConfigFromFile(opts.Config)
		if err != nil {
			fmt.Printf("Failed to load configuration: %v\n", err)
			return 1
		}
	}
	applyFlags(cfg, opts)

	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		return 1
	}

	zapLogger, err := logging.NewZapLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		return 1
	}
	defer zapLogger.Sync()

	logger := logging.NewLogger(
		logPrefix("rmq-launcher"), logging.LogFuncs{
			Debugf: zapLogger.Debugf,
			Infof:  zapLogger.Infof,
			Warnf:  zapLogger.Warnf,
			Errorf: zapLogger.Errorf,
		})

	logger.Infof("opts: %+v", opts)

	var collector metrics.Collector = metrics.NewNoopCollector()
	if cfg.Metrics.Address != "" {
		prometheusCollector := metrics.NewPrometheusCollector(cfg.Metrics.Namespace)
		collector = prometheusCollector

		server := serveMetrics(cfg.Metrics.Address, prometheusCollector, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
	}

	allocator, err := config.NewAllocator(cfg)
	if err != nil {
		logger.Errorf("Failed to create port allocator: %v", err)
		return 1
	}

	spec, err := config.BuildInstanceSpec(cfg, allocator)
	if err != nil {
		logger.Errorf("Failed to build instance spec: %v", err)
		return 1
	}

	l, err := launcher.New(spec, launcher.Options{
		Logger:           logger,
		Sink:             launcher.NewWriterSink(os.Stdout, os.Stderr),
		Metrics:          collector,
		StopTimeout:      cfg.Launcher.StopTimeout,
		KillTimeout:      cfg.Launcher.KillTimeout,
		IsolateEPMD:      cfg.Launcher.IsolateEPMD,
		RemoveOnClose:    cfg.Launcher.RemoveOnExit,
		StrippedPrefixes: cfg.Launcher.StrippedPrefixes,
		ExtraArgs:        cfg.Launcher.ExtraArgs,
		PortAllocator:    allocator,
	})
	if err != nil {
		logger.Errorf("Failed to create launcher: %v", err)
		return 1
	}
	defer func() {
		if err := l.Close(); err != nil {
			logger.Errorf("Failed to close launcher: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting %s, directory: %s, run: %s", l.NodeName(), l.Directory(), l.RunID())

	status, err := l.Run(ctx)
	if err != nil {
		logger.Errorf("Broker instance failed: %v", err)
		return 1
	}

	logger.Infof("Exit Code %d", status.Code)
	return exitCode(status)
}

// applyFlags overrides configuration values given on the command line
func applyFlags(cfg *config.LauncherConfig, opts flagOptions) {
	if opts.ErlangHome != "" {
		cfg.Instance.ErlangHome = opts.ErlangHome
	}
	if opts.RabbitMQHome != "" {
		cfg.Instance.RabbitMQHome = opts.RabbitMQHome
	}
	if opts.BaseDir != "" {
		cfg.Instance.BaseDir = opts.BaseDir
	}
	if opts.Listen != "" {
		cfg.Instance.ListenAddress = opts.Listen
	}
	if opts.PortAllocation != "" {
		cfg.Instance.PortAllocation = opts.PortAllocation
	}
	if opts.PortBase != 0 {
		cfg.Instance.PortBase = opts.PortBase
	}
	if opts.StopTimeout != 0 {
		cfg.Launcher.StopTimeout = opts.StopTimeout
	}
	if opts.IsolateEPMD {
		cfg.Launcher.IsolateEPMD = true
	}
	if opts.RemoveOnExit {
		cfg.Launcher.RemoveOnExit = true
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Address = opts.MetricsAddr
	}
}

func serveMetrics(address string, collector *metrics.PrometheusCollector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("Serving metrics, address: %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()

	return server
}

// exitCode maps the broker status onto this process's exit code
func exitCode(status launcher.ExitStatus) int {
	if status.Code < 0 || status.Code > 255 {
		return 1
	}
	return status.Code
}
