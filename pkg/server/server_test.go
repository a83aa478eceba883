package server

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/check"
	"github.com/kylerisse/comitup-watch/pkg/config"
	"github.com/kylerisse/comitup-watch/pkg/engine"
	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/kylerisse/comitup-watch/pkg/host"
	"github.com/sirupsen/logrus"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// newTestServer returns a server whose engine and API share a fake clock
// one minute past start, so new updates are highlighted.
func newTestServer(t *testing.T) (*Server, *fakeClock) {
	t.Helper()
	s, err := NewServer(config.Default(), nil, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	clock := &fakeClock{now: start.Add(time.Minute)}
	s.engine = engine.New(engine.Options{
		Freshness: host.NewFreshness(start),
		Clock:     clock.Now,
		Logger:    testLogger(),
	})
	s.now = clock.Now
	return s, clock
}

// apply feeds events to the engine and publishes a snapshot.
func apply(s *Server, clock *fakeClock, evs ...event.Event) {
	for _, ev := range evs {
		s.engine.ProcessEvent(ev)
	}
	s.engine.SweepFreshness(clock.now)
}

func discovered(key, ipv4 string) event.Event {
	return event.NewDiscovery(event.Added, event.Discovery{
		Key:    key,
		Domain: event.HostnameFromKey(key) + ".local",
		IPv4:   ipv4,
	})
}

func TestNewServer_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Probe.Method = "carrier-pigeon"
	if _, err := NewServer(cfg, nil, testLogger()); err == nil {
		t.Fatal("expected error for unknown probe method")
	}
}

func TestNewServer_BadServiceType(t *testing.T) {
	cfg := config.Default()
	cfg.ServiceType = "not a domain.."
	if _, err := NewServer(cfg, nil, testLogger()); err == nil {
		t.Fatal("expected error for invalid service type")
	}
}

func TestNewCheckRegistry(t *testing.T) {
	reg, err := newCheckRegistry()
	if err != nil {
		t.Fatalf("newCheckRegistry failed: %v", err)
	}
	got := reg.Types()
	slices.Sort(got)
	if !slices.Equal(got, []string{"http", "icmp", "ping"}) {
		t.Errorf("unexpected types %v", got)
	}
}

func TestProbeConfig(t *testing.T) {
	tests := []struct {
		name  string
		probe config.ProbeConfig
		want  map[string]any
	}{
		{"ping default", config.ProbeConfig{Method: config.MethodPing}, map[string]any{}},
		{"ping binary", config.ProbeConfig{Method: config.MethodPing, Binary: "/bin/ping"}, map[string]any{"binary": "/bin/ping"}},
		{"icmp", config.ProbeConfig{Method: config.MethodICMP, Privileged: true}, map[string]any{"privileged": true}},
		{"http default", config.ProbeConfig{Method: config.MethodHTTP}, map[string]any{}},
		{"http port", config.ProbeConfig{Method: config.MethodHTTP, Port: 8080}, map[string]any{"port": 8080}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := probeConfig(tt.probe)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestProbeConfig_BuildsWorkingCheck(t *testing.T) {
	reg, err := newCheckRegistry()
	if err != nil {
		t.Fatal(err)
	}
	for _, method := range []string{config.MethodPing, config.MethodICMP, config.MethodHTTP} {
		cfg := check.BuildConfig(probeConfig(config.ProbeConfig{Method: method}), "127.0.0.1")
		c, err := reg.Create(method, cfg)
		if err != nil {
			t.Errorf("%s: Create failed: %v", method, err)
			continue
		}
		if c.Type() != method {
			t.Errorf("expected type %q, got %q", method, c.Type())
		}
	}
}

func TestStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("opens a multicast socket")
	}

	cfg := config.Default()
	cfg.Network.NMCLI = "/nonexistent/nmcli"
	s, err := NewServer(cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.events <- discovered("alpha.local", "")

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStop_WithoutStart(t *testing.T) {
	s, _ := newTestServer(t)
	s.Stop()
}

func TestStart_ParentCancelStopsEverything(t *testing.T) {
	if testing.Short() {
		t.Skip("opens a multicast socket")
	}

	cfg := config.Default()
	cfg.Network.NMCLI = "/nonexistent/nmcli"
	s, err := NewServer(cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("components still running after parent cancel")
	}
}

type errRunner struct{ err error }

func (r errRunner) Run(context.Context) error { return r.err }

func TestStart_FailingComponentIsIsolated(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.start(ctx, "broken", errRunner{err: errors.New("boom")})
	s.start(ctx, "clean", errRunner{})
	s.wg.Wait()
}
