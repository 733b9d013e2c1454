package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/activities"
	"github.com/SebampitakoDuncan/order-lifecycle-system/activity"
	"github.com/SebampitakoDuncan/order-lifecycle-system/buildinfo"
	"github.com/SebampitakoDuncan/order-lifecycle-system/config"
	"github.com/SebampitakoDuncan/order-lifecycle-system/engine"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/logging"
	"github.com/SebampitakoDuncan/order-lifecycle-system/metrics"
	"github.com/SebampitakoDuncan/order-lifecycle-system/orchestrator"
	"github.com/SebampitakoDuncan/order-lifecycle-system/signal"
)

type Args struct {
	ConfigPath  string
	ShowVersion bool

	OrderID     string
	City        string
	CancelAfter time.Duration
	NewCity     string
	UpdateAfter time.Duration
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

	if args.OrderID == "" {
		return fmt.Errorf("order flag is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
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

	engineOpts := []engine.Option{
		engine.WithLogger(logger.Logger),
		engine.WithDeadline(cfg.Engine.Deadline),
		engine.WithActivityTimeout(cfg.Engine.ActivityTimeout),
		engine.WithChildBudgetFloor(cfg.Engine.ChildBudgetFloor),
		engine.WithRetryPolicy(cfg.Engine.Retry),
		engine.WithWorkers(cfg.Workers.Order, cfg.Workers.Shipping),
	}

	// One-shot runs push their metrics out rather than waiting to be
	// scraped.
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		registry := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
		})
		engineOpts = append(engineOpts, engine.WithMetrics(registry))
	}

	set := activities.NewSet(
		activities.WithLogger(logger.Logger),
		activities.WithReviewDelay(cfg.Activities.ReviewDelay),
	)
	registry := activity.NewRegistry()
	if err := set.Register(registry); err != nil {
		return fmt.Errorf("failed to register activities: %w", err)
	}

	eng, err := engine.New(execution.NewMemoryStore(), registry, engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	var address execution.Address
	if args.City != "" {
		address = execution.Address{"city": args.City}
	}

	handle, err := eng.Start(args.OrderID, address)
	if err != nil {
		return fmt.Errorf("failed to start order: %w", err)
	}

	if args.CancelAfter > 0 {
		time.AfterFunc(args.CancelAfter, func() {
			_ = eng.Signal(args.OrderID, signal.Cancel{
				Reason: "cancelled from command line",
				Actor:  "cli",
			})
		})
	}
	if args.NewCity != "" {
		time.AfterFunc(args.UpdateAfter, func() {
			_ = eng.Signal(args.OrderID, signal.UpdateAddress{
				Address: execution.Address{"city": args.NewCity},
				Actor:   "cli",
			})
		})
	}

	<-handle.Done()
	result := handle.Result()

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))

	if result.Status == orchestrator.StatusFailed {
		return fmt.Errorf("order %s failed at step %s: %s", result.OrderID, result.FailedStep, result.Error)
	}
	return nil
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file (optional, defaults apply)")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information and exit")

	orderID := flag.String("order", "", "Order id to run")
	city := flag.String("city", "", "Shipping city for the order address")
	cancelAfter := flag.Duration("cancel-after", 0, "Send a cancel signal after this delay")
	newCity := flag.String("new-city", "", "Send an address update with this city")
	updateAfter := flag.Duration("update-after", 0, "Delay before the address update")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOrder Lifecycle CLI - run a single order to completion\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --order order-1 --city Kampala\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --order order-2 --cancel-after 2s\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		ShowVersion: *showVersion,
		OrderID:     *orderID,
		City:        *city,
		CancelAfter: *cancelAfter,
		NewCity:     *newCity,
		UpdateAfter: *updateAfter,
	}
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("order-lifecycle-cli\n")
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
}
