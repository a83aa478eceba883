// Package server wires the producers, the aggregation engine and the
// optional HTTP status API into one process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/check"
	httpcheck "github.com/kylerisse/comitup-watch/pkg/check/http"
	"github.com/kylerisse/comitup-watch/pkg/check/icmp"
	"github.com/kylerisse/comitup-watch/pkg/check/ping"
	"github.com/kylerisse/comitup-watch/pkg/config"
	"github.com/kylerisse/comitup-watch/pkg/discovery"
	"github.com/kylerisse/comitup-watch/pkg/engine"
	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/kylerisse/comitup-watch/pkg/host"
	"github.com/kylerisse/comitup-watch/pkg/netmon"
	"github.com/kylerisse/comitup-watch/pkg/scheduler"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	eventBuffer   = 256
	requestBuffer = 16
)

// runner is a long-lived producer or consumer.
type runner interface {
	Run(ctx context.Context) error
}

// Server owns every goroutine of a running comitup-watch.
type Server struct {
	cfg    *config.Config
	logger *logrus.Logger

	events   chan event.Event
	requests chan string

	engine    *engine.Engine
	status    *check.Status
	scheduler *scheduler.Scheduler
	browser   *discovery.Browser
	monitor   *netmon.Monitor

	httpServer *http.Server
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds the pipeline described by cfg. Rows are handed to
// renderer, which may be nil when nothing is displayed.
func NewServer(cfg *config.Config, renderer engine.Renderer, logger *logrus.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		events:   make(chan event.Event, eventBuffer),
		requests: make(chan string, requestBuffer),
		status:   check.NewStatus(),
		now:      time.Now,
	}

	s.engine = engine.New(engine.Options{
		Freshness: host.Freshness{
			Window: cfg.FreshnessWindow,
			Grace:  cfg.StartupGrace,
		},
		Renderer:      renderer,
		Requests:      s.requests,
		SweepInterval: cfg.SweepInterval,
		Logger:        logger,
	})

	checks, err := newCheckRegistry()
	if err != nil {
		return nil, err
	}

	s.scheduler, err = scheduler.New(scheduler.Options{
		Hosts:       s.engine,
		Requests:    s.requests,
		Events:      s.events,
		Checks:      checks,
		Method:      cfg.Probe.Method,
		CheckConfig: probeConfig(cfg.Probe),
		Period:      cfg.Probe.Period,
		Timeout:     cfg.Probe.Timeout,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.Probe.Rate), cfg.Probe.Burst),
		Status:      s.status,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s.browser, err = discovery.NewBrowser(discovery.Options{
		ServiceType:   cfg.ServiceType,
		Interface:     cfg.Discovery.Interface,
		QueryInterval: cfg.Discovery.QueryInterval,
		Events:        s.events,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s.monitor, err = netmon.New(netmon.Options{
		Scanner:        netmon.NMCLIScanner{Binary: cfg.Network.NMCLI},
		Watcher:        netmon.NMCLIWatcher{Binary: cfg.Network.NMCLI},
		Events:         s.events,
		Debounce:       cfg.Network.Debounce,
		RescanInterval: cfg.Network.RescanInterval,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	return s, nil
}

// newCheckRegistry registers every probe method the scheduler can use.
func newCheckRegistry() (*check.Registry, error) {
	reg := check.NewRegistry()
	if err := reg.Register(ping.TypeName, ping.Factory); err != nil {
		return nil, err
	}
	if err := reg.Register(icmp.TypeName, icmp.Factory); err != nil {
		return nil, err
	}
	if err := reg.Register(httpcheck.TypeName, httpcheck.Factory); err != nil {
		return nil, err
	}
	return reg, nil
}

// probeConfig is the base factory config for the configured method.
func probeConfig(p config.ProbeConfig) map[string]any {
	cfg := make(map[string]any)
	switch p.Method {
	case config.MethodPing:
		if p.Binary != "" {
			cfg["binary"] = p.Binary
		}
	case config.MethodICMP:
		cfg["privileged"] = p.Privileged
	case config.MethodHTTP:
		if p.Port != 0 {
			cfg["port"] = p.Port
		}
	}
	return cfg
}

// Engine returns the aggregation engine.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Start launches every component. They all stop when ctx is cancelled or
// Stop is called.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Starting comitup-watch components...")
	s.engine.AnchorFreshness(s.now())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.engine.Run(ctx, s.events); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorf("Aggregation engine stopped: %v", err)
		}
	}()

	s.start(ctx, "scheduler", s.scheduler)
	s.start(ctx, "discovery", s.browser)
	s.start(ctx, "network monitor", s.monitor)

	if s.cfg.API.Listen != "" {
		s.startAPI()
	}
}

// start runs r until ctx is done. A producer that fails is logged and
// left stopped; the rest of the pipeline keeps running.
func (s *Server) start(ctx context.Context, name string, r runner) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := r.Run(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			s.logger.Infof("%s stopped.", name)
		default:
			s.logger.Errorf("%s failed: %v", name, err)
		}
	}()
}

// Stop cancels every component and waits for them to exit.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Close(); err != nil {
			s.logger.Errorf("Error closing API server: %v", err)
		}
	}
	s.wg.Wait()
	s.logger.Info("All components stopped.")
}
