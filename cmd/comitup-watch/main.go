package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kylerisse/comitup-watch/pkg/config"
	"github.com/kylerisse/comitup-watch/pkg/display"
	"github.com/kylerisse/comitup-watch/pkg/server"
	"github.com/sirupsen/logrus"
)

// overrides are command-line values that take precedence over the
// config file when set.
type overrides struct {
	logFile  string
	logLevel string
	api      string
	probe    string
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	var o overrides
	flag.StringVar(&o.logFile, "log-file", "", "Log file (default comitup-watch.log)")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&o.api, "api", "", "Listen address for the HTTP status API, e.g. :1982")
	flag.StringVar(&o.probe, "probe", "", "Probe method: ping, icmp or http")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, logFile, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if err := run(cfg, logger); err != nil {
		logger.Errorf("Exiting: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	renderer := display.NewRenderer()

	srv, err := server.NewServer(cfg, renderer, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := tea.NewProgram(display.New(), tea.WithAltScreen())

	srv.Start(ctx)
	go renderer.Forward(ctx, p)
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	logger.Info("comitup-watch is running.")
	_, err = p.Run()

	logger.Info("Shutting down...")
	stop()
	srv.Stop()
	return err
}

// apply copies every non-empty override into cfg.
func (o overrides) apply(cfg *config.Config) {
	if o.logFile != "" {
		cfg.Log.File = o.logFile
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.api != "" {
		cfg.API.Listen = o.api
	}
	if o.probe != "" {
		cfg.Probe.Method = o.probe
	}
}

// setupLogging sends all logs to the configured file; the terminal belongs
// to the dashboard.
func setupLogging(c config.LogConfig) (*logrus.Logger, *os.File, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	logFile, err := os.OpenFile(c.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(logFile)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.Infof("Logging initialized. All logs will be written to %s", c.File)

	return logger, logFile, nil
}
