package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SebampitakoDuncan/order-lifecycle-system/activities"
	"github.com/SebampitakoDuncan/order-lifecycle-system/activity"
	"github.com/SebampitakoDuncan/order-lifecycle-system/buildinfo"
	"github.com/SebampitakoDuncan/order-lifecycle-system/config"
	"github.com/SebampitakoDuncan/order-lifecycle-system/engine"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/logging"
	"github.com/SebampitakoDuncan/order-lifecycle-system/metrics"
	"github.com/SebampitakoDuncan/order-lifecycle-system/server"
)

type Args struct {
	ConfigPath  string
	ShowVersion bool
	Validate    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		showVersion()
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if args.Validate {
		fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		return nil
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	props := buildinfo.Get()
	logger.Info("order lifecycle server starting",
		"build_time", props.BuildTime,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
	)

	store, err := newStore(cfg.Storage, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create state store: %w", err)
	}

	registry, err := metrics.NewScrapeRegistry()
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}

	set := newActivitySet(cfg.Activities, logger.Logger)
	activityRegistry := activity.NewRegistry()
	if err := set.Register(activityRegistry); err != nil {
		return fmt.Errorf("failed to register activities: %w", err)
	}

	collector := logging.NewLogCollector()

	eng, err := engine.New(store, activityRegistry,
		engine.WithLogger(logger.Logger),
		engine.WithMetrics(registry),
		engine.WithLogCollector(collector),
		engine.WithDeadline(cfg.Engine.Deadline),
		engine.WithActivityTimeout(cfg.Engine.ActivityTimeout),
		engine.WithChildBudgetFloor(cfg.Engine.ChildBudgetFloor),
		engine.WithRetryPolicy(cfg.Engine.Retry),
		engine.WithWorkers(cfg.Workers.Order, cfg.Workers.Shipping),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	// Set up signal handling before recovery so a quick Ctrl-C still exits
	// cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	resumed, err := eng.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover in-flight executions: %w", err)
	}
	if resumed > 0 {
		logger.Info("resumed in-flight executions", "count", resumed)
	}

	srv, err := server.New(cfg.Listener.Addr, eng, logger.Logger,
		server.WithMetricsHandler(registry.Handler()),
		server.WithRetention(cfg.Retention.Schedule, cfg.Retention.MaxAge),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}

func newStore(cfg config.StorageConfig, logger *slog.Logger) (execution.StateStore, error) {
	switch cfg.Backend {
	case "memory":
		return execution.NewMemoryStore(), nil
	case "disk":
		return execution.NewDiskStore(cfg.Dir, logger)
	case "postgres":
		return execution.NewPGStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newActivitySet(cfg config.ActivitiesConfig, logger *slog.Logger) *activities.Set {
	opts := []activities.Option{
		activities.WithLogger(logger),
		activities.WithReviewDelay(cfg.ReviewDelay),
	}
	if cfg.FaultsEnabled {
		opts = append(opts, activities.WithFaults(cfg.Faults, cfg.Seed))
	}
	return activities.NewSet(opts...)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to server config file")
	configPathShort := flag.String("c", "", "Path to server config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	validate := flag.Bool("validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOrder Lifecycle Server - Durable Order Fulfillment Engine\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/order-lifecycle/config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		ShowVersion: *showVersion,
		Validate:    *validate,
	}
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("order-lifecycle-server\n")
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
}
