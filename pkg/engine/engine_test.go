package engine

import (
	"context"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/kylerisse/comitup-watch/pkg/host"
	"github.com/sirupsen/logrus"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingRenderer keeps every table it is handed.
type recordingRenderer struct {
	renders [][]Row
}

func (r *recordingRenderer) Render(rows []Row) {
	r.renders = append(r.renders, rows)
}

func (r *recordingRenderer) last() []Row {
	if len(r.renders) == 0 {
		return nil
	}
	return r.renders[len(r.renders)-1]
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type harness struct {
	engine   *Engine
	clock    *fakeClock
	renderer *recordingRenderer
	requests chan string
}

// newHarness builds an engine whose clock starts past the start-up grace
// period so updates are highlighted.
func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: start}
	renderer := &recordingRenderer{}
	requests := make(chan string, 4)
	e := New(Options{
		Freshness: host.NewFreshness(start),
		Renderer:  renderer,
		Requests:  requests,
		Clock:     clock.Now,
		Logger:    testLogger(),
	})
	clock.Advance(time.Minute)
	return &harness{engine: e, clock: clock, renderer: renderer, requests: requests}
}

func (h *harness) send(evs ...event.Event) {
	for _, ev := range evs {
		h.engine.ProcessEvent(ev)
	}
}

func (h *harness) assertHasData(t *testing.T) {
	t.Helper()
	for rec := range h.engine.Registry().All() {
		if !rec.HasData() {
			t.Errorf("record %q has no data but is still registered", rec.Hostname)
		}
	}
}

func discoveryAdded(key, ipv4 string) event.Event {
	return event.NewDiscovery(event.Added, event.Discovery{
		Key:    key,
		Domain: event.HostnameFromKey(key) + ".local",
		IPv4:   ipv4,
	})
}

func discoveryRemoved(key string) event.Event {
	return event.NewDiscovery(event.Removed, event.Discovery{Key: key})
}

func TestScenario_AllThreeSourcesMerge(t *testing.T) {
	h := newHarness(t)
	h.send(
		discoveryAdded("alpha.local", "10.0.0.5"),
		event.NewNetwork(event.Added, "alpha"),
		event.NewReachability(event.Added, "alpha"),
	)

	reg := h.engine.Registry()
	if reg.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", reg.Len())
	}
	rec := reg.Get("alpha")
	if rec == nil {
		t.Fatal("expected record alpha")
	}
	if rec.Discovery.Domain == "" {
		t.Error("expected domain to be populated")
	}
	if rec.Discovery.IPv4 != "10.0.0.5" {
		t.Errorf("expected ipv4 10.0.0.5, got %q", rec.Discovery.IPv4)
	}
	if rec.Network.SSID != "alpha" {
		t.Errorf("expected ssid alpha, got %q", rec.Network.SSID)
	}
	if rec.Reachability != host.Up {
		t.Errorf("expected reachability up, got %s", rec.Reachability)
	}
}

func TestScenario_DiscoveryAddThenRemove(t *testing.T) {
	h := newHarness(t)
	h.send(discoveryAdded("bravo.local", "10.0.0.6"), discoveryRemoved("bravo.local"))

	if rec := h.engine.Registry().Get("bravo"); rec != nil {
		t.Errorf("expected bravo to be removed, got %+v", rec)
	}
}

func TestScenario_NetworkSurvivesDiscoveryRemoval(t *testing.T) {
	h := newHarness(t)
	h.send(event.NewNetwork(event.Added, "charlie"), discoveryRemoved("charlie.local"))

	rec := h.engine.Registry().Get("charlie")
	if rec == nil {
		t.Fatal("expected charlie to survive")
	}
	if rec.Network.SSID != "charlie" {
		t.Errorf("expected ssid charlie, got %q", rec.Network.SSID)
	}
	if rec.Reachability != host.Unknown {
		t.Errorf("expected reachability unknown, got %s", rec.Reachability)
	}
}

func TestScenario_RepeatedUpDoesNotFlicker(t *testing.T) {
	h := newHarness(t)
	h.send(discoveryAdded("delta.local", "10.0.0.7"), event.NewReachability(event.Added, "delta"))

	rec := h.engine.Registry().Get("delta")
	first := rec.LastUpdate[host.GroupReachability]

	h.clock.Advance(10 * time.Second)
	h.engine.SweepFreshness(h.clock.Now())
	h.send(event.NewReachability(event.Added, "delta"))

	if got := rec.LastUpdate[host.GroupReachability]; !got.Equal(first) {
		t.Errorf("repeated up moved timestamp from %v to %v", first, got)
	}
	if rec.Dirty {
		t.Error("repeated up should not mark the record dirty")
	}
}

func TestRemovedTwiceIsIdempotent(t *testing.T) {
	type outcome struct {
		hostnames   []string
		dirty       bool
		renders     int
		domainFresh bool
	}

	run := func(removals int) outcome {
		h := newHarness(t)
		h.send(
			discoveryAdded("echo.local", "10.0.0.8"),
			event.NewNetwork(event.Added, "echo"),
			event.NewNetwork(event.Added, "foxtrot"),
		)
		h.engine.SweepFreshness(h.clock.Now())
		h.send(event.NewNetwork(event.Removed, "foxtrot"), discoveryRemoved("echo.local"))
		h.engine.SweepFreshness(h.clock.Now())
		before := len(h.renderer.renders)

		h.clock.Advance(20 * time.Second)
		for i := 1; i < removals; i++ {
			h.send(event.NewNetwork(event.Removed, "foxtrot"), discoveryRemoved("echo.local"))
		}
		h.assertHasData(t)

		var out outcome
		out.dirty = h.engine.Registry().Get("echo").Dirty
		h.engine.SweepFreshness(h.clock.Now())
		out.renders = len(h.renderer.renders) - before

		h.clock.Advance(15 * time.Second)
		rows := h.engine.Rows(h.clock.Now())
		out.domainFresh = rows[0].Cells[ColDomain].Fresh
		out.hostnames = h.engine.Registry().Hostnames()
		return out
	}

	once, twice := run(1), run(2)
	if !slices.Equal(once.hostnames, twice.hostnames) {
		t.Errorf("hostnames: once=%v twice=%v", once.hostnames, twice.hostnames)
	}
	if len(once.hostnames) != 1 || once.hostnames[0] != "echo" {
		t.Errorf("expected only echo to remain, got %v", once.hostnames)
	}
	if twice.dirty || twice.dirty != once.dirty {
		t.Errorf("dirty: once=%v twice=%v", once.dirty, twice.dirty)
	}
	if twice.renders != once.renders {
		t.Errorf("renders: once=%d twice=%d", once.renders, twice.renders)
	}
	if twice.domainFresh || twice.domainFresh != once.domainFresh {
		t.Errorf("domain fresh 35s after removal: once=%v twice=%v", once.domainFresh, twice.domainFresh)
	}
}

func TestDiscoveryRemovalOfNetworkOnlyHost(t *testing.T) {
	h := newHarness(t)
	h.send(event.NewNetwork(event.Added, "charlie"))
	h.engine.SweepFreshness(h.clock.Now())
	h.clock.Advance(10 * time.Second)

	h.send(discoveryRemoved("charlie.local"))

	rec := h.engine.Registry().Get("charlie")
	if rec == nil {
		t.Fatal("charlie should survive on its network data")
	}
	if !rec.LastUpdate[host.GroupDiscovery].Equal(host.Stale) {
		t.Errorf("discovery group was never populated but got stamped %v", rec.LastUpdate[host.GroupDiscovery])
	}
	if rec.Dirty {
		t.Error("removing absent discovery data should not mark the record dirty")
	}
}

func TestRemovedUnknownIsNoop(t *testing.T) {
	h := newHarness(t)
	h.send(
		discoveryRemoved("ghost.local"),
		event.NewNetwork(event.Removed, "ghost"),
		event.NewReachability(event.Removed, "ghost"),
	)

	if h.engine.Registry().Len() != 0 {
		t.Errorf("expected empty registry, got %v", h.engine.Registry().Hostnames())
	}
}

func TestMalformedEventsDropped(t *testing.T) {
	h := newHarness(t)
	h.send(
		event.NewDiscovery(event.Added, event.Discovery{}),
		event.NewDiscovery(event.Added, event.Discovery{Key: ".local"}),
		event.NewNetwork(event.Added, ""),
		event.Event{Kind: event.Kind(99), Action: event.Added},
		event.Event{Kind: event.KindNetwork, Network: event.Network{SSID: "x"}},
	)

	if h.engine.Registry().Len() != 0 {
		t.Errorf("malformed events changed the registry: %v", h.engine.Registry().Hostnames())
	}
}

func TestHasDataInvariant_Sequence(t *testing.T) {
	h := newHarness(t)
	evs := []event.Event{
		discoveryAdded("a.local", "10.0.0.1"),
		event.NewNetwork(event.Added, "a"),
		event.NewReachability(event.Added, "a"),
		discoveryRemoved("a.local"),
		event.NewNetwork(event.Removed, "a"),
		event.NewReachability(event.Added, "b"),
		event.NewReachability(event.Removed, "b"),
		discoveryAdded("b.local", "10.0.0.2"),
		discoveryRemoved("b.local"),
		event.NewNetwork(event.Added, "c"),
		event.NewNetwork(event.Removed, "c"),
	}

	for _, ev := range evs {
		h.send(ev)
		h.assertHasData(t)
		if err := h.engine.Registry().CheckSorted(); err != nil {
			t.Fatal(err)
		}
	}

	if h.engine.Registry().Len() != 0 {
		t.Errorf("expected empty registry at the end, got %v", h.engine.Registry().Hostnames())
	}
}

func TestDiscoveryRemovalResetsReachability(t *testing.T) {
	h := newHarness(t)
	h.send(
		discoveryAdded("kilo.local", "10.0.0.9"),
		event.NewNetwork(event.Added, "kilo"),
		event.NewReachability(event.Added, "kilo"),
		discoveryRemoved("kilo.local"),
	)

	rec := h.engine.Registry().Get("kilo")
	if rec == nil {
		t.Fatal("expected kilo to survive on network data")
	}
	if rec.Reachability != host.Unknown {
		t.Errorf("expected reachability reset to unknown, got %s", rec.Reachability)
	}
	if _, ok := h.engine.IPv4("kilo"); ok {
		t.Error("directory should no longer carry an address for kilo")
	}
}

func TestLateProbeFailureDoesNotResurrect(t *testing.T) {
	h := newHarness(t)
	h.send(discoveryAdded("lima.local", "10.0.0.10"), discoveryRemoved("lima.local"))
	h.send(event.NewReachability(event.Removed, "lima"))

	if rec := h.engine.Registry().Get("lima"); rec != nil {
		t.Errorf("late probe failure recreated %+v", rec)
	}
}

func TestLateReachableDoesNotResurrect(t *testing.T) {
	h := newHarness(t)
	h.send(discoveryAdded("kilo.local", "10.0.0.9"), discoveryRemoved("kilo.local"))
	h.send(event.NewReachability(event.Added, "kilo"))

	if rec := h.engine.Registry().Get("kilo"); rec != nil {
		t.Errorf("late reachable result recreated %+v", rec)
	}
}

func TestReachabilityIgnoredWithoutAddress(t *testing.T) {
	h := newHarness(t)
	h.send(
		discoveryAdded("november.local", "10.0.0.12"),
		event.NewNetwork(event.Added, "november"),
		discoveryRemoved("november.local"),
		event.NewReachability(event.Added, "november"),
	)

	rec := h.engine.Registry().Get("november")
	if rec == nil {
		t.Fatal("november should survive on its network data")
	}
	if rec.Reachability != host.Unknown {
		t.Errorf("host without an address must stay unknown, got %s", rec.Reachability)
	}

	h.send(event.NewReachability(event.Added, "oscar"))
	if rec := h.engine.Registry().Get("oscar"); rec != nil {
		t.Errorf("reachability alone created %+v", rec)
	}
}

func TestAnchorFreshness_RestartsGrace(t *testing.T) {
	h := newHarness(t)
	h.engine.AnchorFreshness(h.clock.Now())

	tests := []struct {
		name    string
		advance time.Duration
		host    string
		want    bool
	}{
		{"within grace", 2 * time.Second, "papa", false},
		{"after grace", 10 * time.Second, "quebec", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.clock.Advance(tt.advance)
			h.send(event.NewNetwork(event.Added, tt.host))
			found := false
			for _, row := range h.engine.Rows(h.clock.Now()) {
				if row.Host != tt.host {
					continue
				}
				found = true
				if row.Cells[ColNetwork].Fresh != tt.want {
					t.Errorf("%s fresh = %v, want %v", tt.host, row.Cells[ColNetwork].Fresh, tt.want)
				}
			}
			if !found {
				t.Fatalf("no row for %s", tt.host)
			}
		})
	}
}

func TestDiscoveryRequestsPriorityProbe(t *testing.T) {
	h := newHarness(t)
	h.send(discoveryAdded("mike.local", "10.0.0.11"))

	select {
	case got := <-h.requests:
		if got != "mike" {
			t.Errorf("expected request for mike, got %q", got)
		}
	default:
		t.Fatal("expected a priority probe request")
	}
}

func TestPriorityRequestDroppedWhenFull(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < cap(h.requests)+3; i++ {
		h.send(discoveryAdded("n"+string(rune('a'+i))+".local", "10.0.1.1"))
	}

	if len(h.requests) != cap(h.requests) {
		t.Errorf("expected a full request queue, got %d", len(h.requests))
	}
	if h.engine.Registry().Len() != cap(h.requests)+3 {
		t.Errorf("dropped requests must not drop events, got %d hosts", h.engine.Registry().Len())
	}
}

func TestDirectory(t *testing.T) {
	h := newHarness(t)
	h.send(
		discoveryAdded("oscar.local", "10.0.0.12"),
		event.NewNetwork(event.Added, "papa"),
	)

	names := h.engine.Hostnames()
	if len(names) != 2 || names[0] != "oscar" || names[1] != "papa" {
		t.Errorf("unexpected hostnames %v", names)
	}
	if ip, ok := h.engine.IPv4("oscar"); !ok || ip != "10.0.0.12" {
		t.Errorf("expected oscar at 10.0.0.12, got %q %v", ip, ok)
	}
	if _, ok := h.engine.IPv4("papa"); ok {
		t.Error("papa has no address")
	}

	names[0] = "mutated"
	if h.engine.Hostnames()[0] != "oscar" {
		t.Error("Hostnames must return a copy")
	}
}

func TestFreshnessExpiry_ViaSweep(t *testing.T) {
	h := newHarness(t)
	h.send(event.NewNetwork(event.Added, "quebec"))
	updated := h.clock.Now()

	h.engine.SweepFreshness(updated)
	if rows := h.renderer.last(); len(rows) != 1 || !rows[0].Cells[ColNetwork].Fresh {
		t.Fatalf("expected fresh network cell after update, got %+v", rows)
	}

	// Tick every second with no new events.
	for s := 1; s <= 29; s++ {
		h.engine.SweepFreshness(updated.Add(time.Duration(s) * time.Second))
	}
	renders := len(h.renderer.renders)
	if rows := h.engine.Rows(updated.Add(29 * time.Second)); !rows[0].Cells[ColNetwork].Fresh {
		t.Error("expected network cell still fresh at t=29s")
	}
	if renders != 1 {
		t.Errorf("expected no redraw while nothing changed, got %d renders", renders)
	}

	h.engine.SweepFreshness(updated.Add(30 * time.Second))
	h.engine.SweepFreshness(updated.Add(31 * time.Second))

	if len(h.renderer.renders) != 2 {
		t.Fatalf("expected exactly one expiry redraw, got %d renders", len(h.renderer.renders))
	}
	if rows := h.renderer.last(); rows[0].Cells[ColNetwork].Fresh {
		t.Error("expected network cell no longer fresh after 30s")
	}
}

func TestSweep_ClearsDirtyAndRendersOnce(t *testing.T) {
	h := newHarness(t)
	h.send(event.NewNetwork(event.Added, "romeo"), event.NewNetwork(event.Added, "sierra"))

	h.engine.SweepFreshness(h.clock.Now())
	if len(h.renderer.renders) != 1 {
		t.Fatalf("expected one render, got %d", len(h.renderer.renders))
	}
	for rec := range h.engine.Registry().All() {
		if rec.Dirty {
			t.Errorf("%s still dirty after sweep", rec.Hostname)
		}
		if !rec.LastCheckedAt.Equal(h.clock.Now()) {
			t.Errorf("%s LastCheckedAt not updated", rec.Hostname)
		}
	}

	h.engine.SweepFreshness(h.clock.Now().Add(time.Second))
	if len(h.renderer.renders) != 1 {
		t.Errorf("expected no second render, got %d", len(h.renderer.renders))
	}
}

func TestSweep_RedrawsOnRemoval(t *testing.T) {
	h := newHarness(t)
	h.send(event.NewNetwork(event.Added, "tango"))
	h.engine.SweepFreshness(h.clock.Now())

	h.send(event.NewNetwork(event.Removed, "tango"))
	h.engine.SweepFreshness(h.clock.Now().Add(time.Second))

	if len(h.renderer.renders) != 2 {
		t.Fatalf("expected a redraw after removal, got %d renders", len(h.renderer.renders))
	}
	if rows := h.renderer.last(); len(rows) != 0 {
		t.Errorf("expected empty table, got %+v", rows)
	}
}

func TestStartupGrace_NoHighlight(t *testing.T) {
	clock := &fakeClock{now: start}
	renderer := &recordingRenderer{}
	e := New(Options{Renderer: renderer, Clock: clock.Now, Logger: testLogger()})

	clock.Advance(2 * time.Second)
	e.ProcessEvent(event.NewNetwork(event.Added, "uniform"))
	e.SweepFreshness(clock.Now())

	rows := renderer.last()
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].Cells[ColNetwork].Fresh {
		t.Error("host seen during the start-up grace period should not be highlighted")
	}
}

func TestRows_Columns(t *testing.T) {
	h := newHarness(t)
	h.send(
		event.NewDiscovery(event.Added, event.Discovery{
			Key:       "victor._comitup._tcp.local.",
			Domain:    "victor.local",
			Addresses: []string{"fe80::1", "10.0.0.13"},
		}),
		event.NewNetwork(event.Added, "victor"),
		event.NewReachability(event.Removed, "victor"),
	)

	rows := h.engine.Rows(h.clock.Now())
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	want := [NumColumns]string{"victor", "victor.local", "10.0.0.13", "fe80::1", "○"}
	for i, cell := range rows[0].Cells {
		if cell.Value != want[i] {
			t.Errorf("column %s = %q, want %q", ColumnTitles[i], cell.Value, want[i])
		}
		if !cell.Fresh {
			t.Errorf("column %s should be fresh", ColumnTitles[i])
		}
	}
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	if snap := h.engine.Snapshot(); len(snap.Rows) != 0 {
		t.Errorf("expected empty initial snapshot, got %+v", snap)
	}

	h.send(event.NewNetwork(event.Added, "whiskey"))
	h.engine.SweepFreshness(h.clock.Now())

	snap := h.engine.Snapshot()
	if len(snap.Rows) != 1 || snap.Rows[0].Host != "whiskey" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if !snap.Generated.Equal(h.clock.Now()) {
		t.Errorf("expected generated at %v, got %v", h.clock.Now(), snap.Generated)
	}
}

func TestRun_ConsumesUntilCancelled(t *testing.T) {
	renderer := &recordingRenderer{}
	e := New(Options{
		Renderer:      renderer,
		SweepInterval: time.Hour,
		Logger:        testLogger(),
	})

	events := make(chan event.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	events <- event.NewNetwork(event.Added, "xray")
	events <- event.NewNetwork(event.Added, "yankee")
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := e.Registry().Hostnames(); len(got) != 2 {
		t.Errorf("expected two hosts, got %v", got)
	}
}

func TestRun_StopsOnClosedChannel(t *testing.T) {
	e := New(Options{SweepInterval: time.Hour, Logger: testLogger()})
	events := make(chan event.Event, 1)
	events <- event.NewNetwork(event.Added, "zulu")
	close(events)

	if err := e.Run(context.Background(), events); err != nil {
		t.Errorf("expected nil error on closed channel, got %v", err)
	}
	if e.Registry().Get("zulu") == nil {
		t.Error("expected buffered event to be processed before stopping")
	}
}
