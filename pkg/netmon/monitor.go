// Package netmon watches the set of visible Wi-Fi networks and reports
// SSIDs appearing and disappearing as network events.
package netmon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultDebounce coalesces bursts of change notifications.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultRescanInterval refreshes even without notifications.
	DefaultRescanInterval = 30 * time.Second
)

// Options configures a Monitor.
type Options struct {
	Scanner Scanner

	// Watcher is optional; without it only periodic rescans happen.
	Watcher Watcher

	Events         chan<- event.Event
	Debounce       time.Duration
	RescanInterval time.Duration
	Logger         *logrus.Logger
}

// Monitor tracks the visible SSID set.
type Monitor struct {
	scanner  Scanner
	watcher  Watcher
	events   chan<- event.Event
	debounce time.Duration
	rescan   time.Duration
	logger   *logrus.Logger

	// mu serialises refreshes and guards known.
	mu      sync.Mutex
	known   map[string]bool
	waiting atomic.Bool
}

// New creates a Monitor with an empty known set.
func New(opts Options) (*Monitor, error) {
	if opts.Scanner == nil {
		return nil, fmt.Errorf("netmon: scanner is required")
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("netmon: events channel is required")
	}

	debounce := opts.Debounce
	if debounce < 0 {
		return nil, fmt.Errorf("netmon: debounce must not be negative, got %v", debounce)
	}
	if debounce == 0 {
		debounce = DefaultDebounce
	}

	rescan := opts.RescanInterval
	if rescan <= 0 {
		rescan = DefaultRescanInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Monitor{
		scanner:  opts.Scanner,
		watcher:  opts.Watcher,
		events:   opts.Events,
		debounce: debounce,
		rescan:   rescan,
		logger:   logger,
		known:    make(map[string]bool),
	}, nil
}

// Refresh rescans after the debounce delay and reports the difference from
// the known set. If another refresh is already waiting out its debounce the
// call returns immediately; it will observe the same changes. At most one
// scan is in flight at a time.
func (m *Monitor) Refresh(ctx context.Context) error {
	if !m.waiting.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	timer := time.NewTimer(m.debounce)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		m.waiting.Store(false)
		return ctx.Err()
	}
	m.waiting.Store(false)

	ssids, err := m.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("netmon: scan: %w", err)
	}

	current := make(map[string]bool, len(ssids))
	for _, ssid := range ssids {
		current[ssid] = true
	}

	for _, ssid := range ssids {
		if m.known[ssid] {
			continue
		}
		if err := m.emit(ctx, event.NewNetwork(event.Added, ssid)); err != nil {
			return err
		}
		m.known[ssid] = true
	}

	for ssid := range m.known {
		if current[ssid] {
			continue
		}
		if err := m.emit(ctx, event.NewNetwork(event.Removed, ssid)); err != nil {
			return err
		}
		delete(m.known, ssid)
	}

	return nil
}

func (m *Monitor) emit(ctx context.Context, ev event.Event) error {
	m.logger.Debugf("Network: %s", ev)
	select {
	case m.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Known returns the SSIDs currently believed visible.
func (m *Monitor) Known() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.known))
	for ssid := range m.known {
		out = append(out, ssid)
	}
	return out
}

// Run performs an initial refresh, then refreshes on every watcher
// notification and every rescan interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	refresh := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warnf("Wi-Fi refresh failed: %v", err)
			}
		}()
	}

	m.logger.Infof("Network monitor started, rescanning every %v", m.rescan)
	refresh()

	if m.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.watcher.Watch(ctx, refresh); err != nil && ctx.Err() == nil {
				m.logger.Warnf("Network change watcher stopped, relying on periodic rescans: %v", err)
			}
		}()
	}

	ticker := time.NewTicker(m.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Network monitor received shutdown signal.")
			return ctx.Err()
		case <-ticker.C:
			refresh()
		}
	}
}
