// Package scheduler probes every known host for reachability.
//
// A Sequence decides which hostname is due next: a round-robin pass over the
// registry once per period, interleaved with priority requests the engine
// sends when a host is first discovered. The Scheduler resolves each
// hostname to its IPv4 address, runs a bounded-time probe from the check
// registry, and reports the outcome as a reachability event on the engine's
// inbound channel.
package scheduler

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/check"
	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultPeriod is the round-robin pass interval.
	DefaultPeriod = 10 * time.Second

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 400 * time.Millisecond
)

// Options configures a Scheduler.
type Options struct {
	Hosts    HostSource
	Requests <-chan string
	Events   chan<- event.Event

	// Checks supplies the probe implementation named by Method.
	Checks *check.Registry
	Method string

	// CheckConfig is passed to the probe factory with "target" and
	// "timeout" filled in per probe.
	CheckConfig map[string]any

	Period  time.Duration
	Timeout time.Duration

	// Limiter paces probes. Nil means unlimited.
	Limiter *rate.Limiter

	// Status, if set, records the latest result per hostname.
	Status *check.Status

	Logger *logrus.Logger
}

// Scheduler runs reachability probes.
type Scheduler struct {
	hosts    HostSource
	requests <-chan string
	events   chan<- event.Event
	checks   *check.Registry
	method   string
	config   map[string]any
	period   time.Duration
	timeout  time.Duration
	limiter  *rate.Limiter
	status   *check.Status
	logger   *logrus.Logger
}

// New validates opts and creates a Scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Hosts == nil {
		return nil, fmt.Errorf("scheduler: host source is required")
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("scheduler: events channel is required")
	}
	if opts.Checks == nil || !opts.Checks.Has(opts.Method) {
		return nil, fmt.Errorf("scheduler: probe method %q is not registered", opts.Method)
	}

	period := opts.Period
	if period == 0 {
		period = DefaultPeriod
	}
	if period < 0 {
		return nil, fmt.Errorf("scheduler: period must be positive, got %v", period)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout < 0 {
		return nil, fmt.Errorf("scheduler: timeout must be positive, got %v", timeout)
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	config := maps.Clone(opts.CheckConfig)
	if config == nil {
		config = make(map[string]any)
	}
	config["timeout"] = timeout

	return &Scheduler{
		hosts:    opts.Hosts,
		requests: opts.Requests,
		events:   opts.Events,
		checks:   opts.Checks,
		method:   opts.Method,
		config:   config,
		period:   period,
		timeout:  timeout,
		limiter:  limiter,
		status:   opts.Status,
		logger:   logger,
	}, nil
}

// Run probes hosts until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	seq, err := NewSequence(s.period, s.hosts, s.requests)
	if err != nil {
		return err
	}
	if s.status != nil {
		seq.OnPass = s.status.Retain
	}

	s.logger.Infof("Reachability scheduler started: method=%s period=%v timeout=%v", s.method, s.period, s.timeout)

	for {
		hostname, err := seq.Next(ctx)
		if err != nil {
			s.logger.Info("Reachability scheduler received shutdown signal.")
			return err
		}
		s.Probe(ctx, hostname)
	}
}

// Probe checks one host and reports the outcome. A host with no known IPv4
// address is skipped without an event.
func (s *Scheduler) Probe(ctx context.Context, hostname string) {
	ip, ok := s.hosts.IPv4(hostname)
	if !ok || ip == "" {
		s.logger.Debugf("Skipping probe of %s: no IPv4 address", hostname)
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	result := s.run(ctx, hostname, ip)
	if ctx.Err() != nil {
		// A probe cut short by shutdown says nothing about the host.
		return
	}

	if s.status != nil {
		s.status.SetResult(hostname, result)
	}

	action := event.Removed
	if result.Success {
		action = event.Added
		s.logger.Debugf("Probe of %s (%s) succeeded in %v", hostname, ip, result.Latency)
	} else {
		s.logger.Debugf("Probe of %s (%s) failed: %v", hostname, ip, result.Err)
	}

	select {
	case s.events <- event.NewReachability(action, hostname):
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(ctx context.Context, hostname, ip string) check.Result {
	chk, err := s.checks.Create(s.method, check.BuildConfig(s.config, ip))
	if err != nil {
		s.logger.Warnf("Cannot probe %s at %q: %v", hostname, ip, err)
		return check.Failed(time.Now(), err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return chk.Run(probeCtx)
}
