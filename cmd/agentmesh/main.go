// Package main is the entry point for the agentmesh demo command.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentmesh/agentmesh/internal/agentsystem"
	"github.com/agentmesh/agentmesh/internal/buildinfo"
	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/demo"
	"github.com/agentmesh/agentmesh/internal/events"
	"github.com/agentmesh/agentmesh/internal/ticker"
	"github.com/agentmesh/agentmesh/internal/transport/mqtt"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showEvents := flag.Bool("events", false, "log lifecycle events published on the events bus")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "subject":
		runSubject(logger, *configPath, *showEvents)
	case "observer":
		runObserver(logger, *configPath, *showEvents)
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("agentmesh - distributed agent message routing")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  subject   Run the subject-system half of the demo walkthrough")
	fmt.Println("  observer  Run the observer-system half of the demo walkthrough")
	fmt.Println("  version   Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// watchEvents logs every event published on bus until ctx is
// cancelled. It runs in its own goroutine and unsubscribes on exit.
func watchEvents(ctx context.Context, bus *events.Bus, logger *slog.Logger) {
	ch := bus.Subscribe(64)
	go func() {
		defer bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				logger.Info("event", "source", e.Source, "kind", e.Kind, "data", e.Data)
			}
		}
	}()
}

func loadConfig(logger *slog.Logger, configPath string) *config.Config {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		return config.Default()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	logger.Info("config loaded", "path", cfgPath)
	return cfg
}

func reconfigureLogger(logger *slog.Logger, level string) *slog.Logger {
	if level == "" {
		return logger
	}
	parsed, err := config.ParseLogLevel(level)
	if err != nil {
		logger.Error("invalid log_level in config", "error", err)
		os.Exit(1)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       parsed,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// runSubject runs the SUBJECT_SYSTEM_ID half of the demo: a single
// Subject agent that emits an incrementing event to the observer
// system every tick.
func runSubject(logger *slog.Logger, configPath string, showEvents bool) {
	cfg := loadConfig(logger, configPath)
	logger = reconfigureLogger(logger, cfg.LogLevel)
	logger.Info("starting agentmesh subject", "version", buildinfo.Version)

	bus := events.New()

	pub := mqtt.NewPublisher(cfg.BindAddr, fmt.Sprintf("agentmesh-subject-%d", demo.SubjectSystemID), logger)
	ctx, cancel := signalContext()
	defer cancel()

	if showEvents {
		watchEvents(ctx, bus, logger)
	}

	if err := pub.Start(ctx); err != nil {
		logger.Error("publisher start failed", "error", err)
		os.Exit(1)
	}
	defer pub.Stop(context.Background())

	sys, err := agentsystem.New[demo.Protocol](agentsystem.Config{
		SystemID:      demo.SubjectSystemID,
		InboxCapacity: cfg.InboxCapacity,
		Broadcaster:   pub,
		Events:        bus,
		Logger:        logger,
	}, demo.SubjectFactory{}, demo.DecodeProtocol)
	if err != nil {
		logger.Error("system init failed", "error", err)
		os.Exit(1)
	}
	sys.SpawnAgent()

	drive(ctx, sys, logger)
}

// runObserver runs the OBSERVER_SYSTEM_ID half of the demo: a single
// Observer agent subscribed to the subject system, logging every event
// it receives.
func runObserver(logger *slog.Logger, configPath string, showEvents bool) {
	cfg := loadConfig(logger, configPath)
	logger = reconfigureLogger(logger, cfg.LogLevel)
	logger.Info("starting agentmesh observer", "version", buildinfo.Version)

	bus := events.New()

	ctx, cancel := signalContext()
	defer cancel()

	if showEvents {
		watchEvents(ctx, bus, logger)
	}

	sys, err := agentsystem.New[demo.Protocol](agentsystem.Config{
		SystemID:      demo.ObserverSystemID,
		InboxCapacity: cfg.InboxCapacity,
		Events:        bus,
		Logger:        logger,
	}, demo.ObserverFactory{Logger: logger}, demo.DecodeProtocol)
	if err != nil {
		logger.Error("system init failed", "error", err)
		os.Exit(1)
	}
	sys.SpawnAgent()

	sub := mqtt.NewSubscriber(demo.ObserverSystemID, cfg.BindAddr, fmt.Sprintf("agentmesh-observer-%d", demo.ObserverSystemID), 256, logger)
	if err := sub.Start(ctx); err != nil {
		logger.Error("subscriber start failed", "error", err)
		os.Exit(1)
	}
	defer sub.Stop(context.Background())
	sys.AddRemoteObserver(sub)

	for _, r := range cfg.RemoteObservers {
		extra := mqtt.NewSubscriber(demo.ObserverSystemID, r.BrokerURL, fmt.Sprintf("agentmesh-observer-remote-%d", r.SystemID), 256, logger)
		if err := extra.Start(ctx); err != nil {
			logger.Warn("remote observer subscriber start failed", "system_id", r.SystemID, "error", err)
			continue
		}
		defer extra.Stop(context.Background())
		sys.AddRemoteObserver(extra)
	}

	drive(ctx, sys, logger)
}

// drive runs sys on a fixed tick interval until ctx is cancelled.
func drive(ctx context.Context, sys *agentsystem.System[demo.Protocol], logger *slog.Logger) {
	tk := ticker.New(time.Second, sys, logger)
	tk.Start(ctx)

	<-ctx.Done()
	tk.Stop()
	if err := sys.Close(); err != nil {
		logger.Warn("system close failed", "error", err)
	}
	logger.Info("agentmesh stopped")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
