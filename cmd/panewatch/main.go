package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/asheshgoplani/panewatch/internal/config"
	"github.com/asheshgoplani/panewatch/internal/logging"
	"github.com/asheshgoplani/panewatch/internal/monitor"
	"github.com/asheshgoplani/panewatch/internal/tmuxc"
)

const Version = "0.3.1"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", config.Path(), "path to config.toml")
		session    = flag.String("session", "", "tmux session to supervise (default: attached session)")
		debug      = flag.Bool("debug", false, "enable debug logging")
		logDir     = flag.String("log-dir", config.Dir(), "directory for log files")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Println("panewatch", Version)
		return 0
	}

	command := flag.Arg(0)
	if command == "" {
		command = "monitor"
	}

	cfgWatcher, err := config.NewWatcher(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "panewatch: %v\n", err)
		return 1
	}
	defer cfgWatcher.Close()

	cfg := cfgWatcher.Current()
	if *session != "" {
		cfg.Monitor.Session = *session
	}

	level := cfg.Log.Level
	if *debug {
		level = "debug"
	}
	logging.Init(logging.Config{
		LogDir:     *logDir,
		Level:      level,
		Format:     cfg.Log.Format,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Debug:      *debug,
	})
	defer logging.Shutdown()

	log := logging.ForComponent(logging.CompMonitor)
	log.Info("starting", slog.String("version", Version), slog.String("command", command))

	client := tmuxc.NewClient(tmuxc.ExecRunner{}, cfg.Monitor.CaptureLines)
	cancel := monitor.NewCancelFlag()
	sched := monitor.New(client, cfgWatcher, cancel)

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	go func() {
		<-ctx.Done()
		cancel.Cancel("signal")
	}()

	stopKeys := startCancelKeyListener(cancel)
	defer stopKeys()

	switch command {
	case "monitor":
		err = sched.Monitor(ctx)
	case "continuous":
		err = sched.StartContinuousMonitoring(ctx)
	case "once":
		err = sched.OneTimeMonitor(ctx)
	case "diagnose":
		err = sched.OneTimeMonitor(ctx)
		printDiagnostics(sched)
	default:
		fmt.Fprintf(os.Stderr, "panewatch: unknown command %q\n\n", command)
		usage()
		return 2
	}

	// Nothing escapes this entry point: failures degrade to a logged stop.
	if err != nil {
		log.Error("stopped_with_error", slog.String("error", err.Error()))
		return 1
	}
	if reason := cancel.Reason(); reason != "" {
		log.Info("stopped", slog.String("reason", reason))
	}
	return 0
}

func printDiagnostics(sched *monitor.Scheduler) {
	data, err := json.MarshalIndent(sched.Diagnostics(), "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(data))
}

func usage() {
	fmt.Fprintf(os.Stderr, `panewatch - unattended tmux pane supervision

Usage:
  panewatch [flags] [command]

Commands:
  monitor      run monitoring until cancelled or the runtime ceiling (default)
  continuous   like monitor, but failed cycles are retried instead of fatal
  once         run a single monitoring cycle and exit
  diagnose     run one cycle and print diagnostics as JSON

Flags:
`)
	flag.PrintDefaults()
}
