// Package engine implements the aggregation loop at the centre of
// comitup-watch.
//
// Every producer (discovery browser, network monitor, reachability
// scheduler) writes event.Event values onto one inbound channel. A single
// goroutine running Engine.Run drains that channel in arrival order and is
// the only code that ever mutates the registry or its records, so neither
// needs locking. Once a second the same goroutine sweeps the registry for
// expired highlights and, if anything changed, hands fresh rows to the
// Renderer.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/kylerisse/comitup-watch/pkg/host"
	"github.com/kylerisse/comitup-watch/pkg/registry"
	"github.com/sirupsen/logrus"
)

// DefaultSweepInterval is how often Run checks freshness and redraws.
const DefaultSweepInterval = time.Second

// Renderer receives the table whenever a redraw is due.
// Render is called on the engine goroutine and must not block.
type Renderer interface {
	Render(rows []Row)
}

// Options configures an Engine.
type Options struct {
	// Freshness is the highlight policy. A zero Window selects the defaults
	// anchored at the engine's creation time.
	Freshness host.Freshness

	// Renderer is told about redraws. Optional.
	Renderer Renderer

	// Requests receives best-effort "probe this host soon" hints when a host
	// is discovered. Optional; sends never block.
	Requests chan<- string

	// SweepInterval is the period of the freshness sweep in Run.
	SweepInterval time.Duration

	// Clock overrides time.Now.
	Clock func() time.Time

	Logger *logrus.Logger
}

// Engine owns the host registry.
type Engine struct {
	registry      *registry.Registry
	freshness     host.Freshness
	renderer      Renderer
	requests      chan<- string
	sweepInterval time.Duration
	now           func() time.Time
	logger        *logrus.Logger

	// structural is set when a record is inserted or removed, since a removed
	// record can no longer carry its own dirty flag.
	structural bool

	directory atomic.Pointer[Directory]
	snapshot  atomic.Pointer[Snapshot]
}

// New creates an Engine with an empty registry.
func New(opts Options) *Engine {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	freshness := opts.Freshness
	if freshness.Window <= 0 {
		freshness = host.NewFreshness(now())
	}
	if freshness.Start.IsZero() {
		freshness.Start = now()
	}

	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	e := &Engine{
		registry:      registry.New(),
		freshness:     freshness,
		renderer:      opts.Renderer,
		requests:      opts.Requests,
		sweepInterval: interval,
		now:           now,
		logger:        logger,
	}
	e.directory.Store(&Directory{})
	e.snapshot.Store(&Snapshot{})
	return e
}

// AnchorFreshness restarts the start-up grace period at start. It must be
// called before Run.
func (e *Engine) AnchorFreshness(start time.Time) {
	e.freshness.Start = start
}

// Registry exposes the registry for inspection. Callers must not mutate it
// and must only use it from the engine goroutine or after Run has returned.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Run consumes events until ctx is cancelled or events is closed, sweeping
// freshness every SweepInterval.
func (e *Engine) Run(ctx context.Context, events <-chan event.Event) error {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	e.logger.Infof("Aggregation engine started, sweeping every %v", e.sweepInterval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Aggregation engine received shutdown signal.")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				e.logger.Info("Event channel closed, aggregation engine stopping.")
				return nil
			}
			e.ProcessEvent(ev)
		case <-ticker.C:
			e.SweepFreshness(e.now())
		}
	}
}

// ProcessEvent applies one event to the registry. Malformed events are
// logged and dropped.
func (e *Engine) ProcessEvent(ev event.Event) {
	if err := ev.Validate(); err != nil {
		e.logger.Warnf("Dropping event %+v: %v", ev, err)
		return
	}

	now := e.now()

	switch ev.Kind {
	case event.KindDiscovery:
		e.processDiscovery(ev, now)
	case event.KindNetwork:
		e.processNetwork(ev, now)
	case event.KindReachability:
		e.processReachability(ev, now)
	}

	e.publishDirectory()
}

func (e *Engine) processDiscovery(ev event.Event, now time.Time) {
	hostname := ev.Hostname()

	switch ev.Action {
	case event.Added:
		rec := e.getOrCreate(hostname, now)
		rec.SetDiscovery(host.DiscoveryAttrs{
			ServiceKey: ev.Discovery.Key,
			Domain:     ev.Discovery.Domain,
			IPv4:       ev.Discovery.PickIPv4(),
			IPv6:       ev.Discovery.PickIPv6(),
		}, now)
		e.logger.Debugf("Discovered %s (ipv4=%s)", hostname, rec.Discovery.IPv4)
		e.requestProbe(hostname)
	case event.Removed:
		rec := e.registry.Get(hostname)
		if rec == nil {
			e.logger.Debugf("Ignoring discovery removal for unknown host %s", hostname)
			return
		}
		rec.ClearDiscovery(now)
		e.removeIfEmpty(rec)
	}
}

func (e *Engine) processNetwork(ev event.Event, now time.Time) {
	hostname := ev.Hostname()

	switch ev.Action {
	case event.Added:
		rec := e.getOrCreate(hostname, now)
		rec.SetNetwork(host.NetworkAttrs{SSID: ev.Network.SSID}, now)
	case event.Removed:
		rec := e.registry.Get(hostname)
		if rec == nil {
			e.logger.Debugf("Ignoring network removal for unknown host %s", hostname)
			return
		}
		rec.ClearNetwork(now)
		e.removeIfEmpty(rec)
	}
}

func (e *Engine) processReachability(ev event.Event, now time.Time) {
	hostname := ev.Hostname()

	state := host.Up
	if ev.Action == event.Removed {
		state = host.Down
	}

	// Only hosts with a known address are probed. The host may have vanished
	// or lost its address while a probe was in flight; a late result must
	// not resurrect it or mark an unprobeable host.
	rec := e.registry.Get(hostname)
	if rec == nil || rec.Discovery.IPv4 == "" {
		e.logger.Debugf("Ignoring %s reachability for %s, no address", state, hostname)
		return
	}

	if rec.SetReachability(state, now) {
		e.logger.Debugf("Host %s is now %s", hostname, state)
	}
}

// getOrCreate wraps the registry call. A duplicate-key error here means the
// registry's lookup and insert disagree, which is unrecoverable.
func (e *Engine) getOrCreate(hostname string, now time.Time) *host.Record {
	rec, created, err := e.registry.GetOrCreate(hostname, now)
	if err != nil {
		panic("engine: registry invariant violated: " + err.Error())
	}
	if created {
		e.structural = true
	}
	return rec
}

func (e *Engine) removeIfEmpty(rec *host.Record) {
	if rec.HasData() {
		return
	}
	if err := e.registry.Remove(rec.Hostname); err != nil {
		panic("engine: registry invariant violated: " + err.Error())
	}
	e.structural = true
	e.logger.Debugf("Removed %s, no data left", rec.Hostname)
}

// requestProbe asks the scheduler to probe hostname soon, dropping the
// request if the scheduler is saturated.
func (e *Engine) requestProbe(hostname string) {
	if e.requests == nil {
		return
	}
	select {
	case e.requests <- hostname:
	default:
		e.logger.Debugf("Probe request queue full, dropping request for %s", hostname)
	}
}

// SweepFreshness turns off expired highlights and triggers a redraw if
// anything is dirty.
func (e *Engine) SweepFreshness(now time.Time) {
	redraw := e.structural

	for rec := range e.registry.All() {
		for _, g := range host.Groups {
			if e.freshness.Expired(rec, g, rec.LastCheckedAt, now) {
				rec.Dirty = true
			}
		}
		rec.LastCheckedAt = now
		if rec.Dirty {
			redraw = true
		}
	}

	if !redraw {
		return
	}

	if err := e.registry.CheckSorted(); err != nil {
		panic("engine: " + err.Error())
	}

	rows := e.Rows(now)
	e.snapshot.Store(&Snapshot{Rows: rows, Generated: now})
	if e.renderer != nil {
		e.renderer.Render(rows)
	}

	for rec := range e.registry.All() {
		rec.Dirty = false
	}
	e.structural = false
}
