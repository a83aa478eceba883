// Package host holds the per-host record that the aggregation engine builds
// from discovery, network and reachability events, along with the freshness
// policy used to highlight recently changed attributes.
package host

import (
	"time"
)

// Group identifies one of the attribute groups a Record carries. Each group
// is fed by exactly one producer and tracks its own last-update time.
type Group int

const (
	GroupDiscovery Group = iota
	GroupNetwork
	GroupReachability

	numGroups
)

// Groups lists every attribute group in display order.
var Groups = [numGroups]Group{GroupDiscovery, GroupNetwork, GroupReachability}

func (g Group) String() string {
	switch g {
	case GroupDiscovery:
		return "discovery"
	case GroupNetwork:
		return "network"
	case GroupReachability:
		return "reachability"
	default:
		return "unknown"
	}
}

// Stale is the last-update sentinel for a group that has never changed.
var Stale = time.Time{}

// Reachability is the tri-state result of liveness probing.
type Reachability int

const (
	Unknown Reachability = iota
	Up
	Down
)

func (r Reachability) String() string {
	switch r {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// Glyph is the single-character table representation.
func (r Reachability) Glyph() string {
	switch r {
	case Up:
		return "●"
	case Down:
		return "○"
	default:
		return ""
	}
}

// DiscoveryAttrs are set together by a discovery announcement and cleared
// together when the announcement is withdrawn.
type DiscoveryAttrs struct {
	ServiceKey string
	Domain     string
	IPv4       string
	IPv6       string
}

// Empty reports whether no discovery attribute is set.
func (d DiscoveryAttrs) Empty() bool {
	return d == DiscoveryAttrs{}
}

// NetworkAttrs are set by network-change notifications.
type NetworkAttrs struct {
	SSID string
}

// Empty reports whether no network attribute is set.
func (n NetworkAttrs) Empty() bool {
	return n.SSID == ""
}

// Record is the merged view of one host. Hostname never changes after New.
type Record struct {
	Hostname string

	Discovery    DiscoveryAttrs
	Network      NetworkAttrs
	Reachability Reachability

	// LastUpdate holds, per group, the time the group last changed.
	LastUpdate [numGroups]time.Time

	// Dirty marks changes not yet consumed by a redraw.
	Dirty bool

	// LastCheckedAt is the last time the freshness sweep looked at the record.
	LastCheckedAt time.Time
}

// New returns an empty record for hostname.
func New(hostname string, now time.Time) *Record {
	r := &Record{
		Hostname:      hostname,
		LastCheckedAt: now,
	}
	for _, g := range Groups {
		r.LastUpdate[g] = Stale
	}
	return r
}

// HasData reports whether any attribute group is populated.
func (r *Record) HasData() bool {
	return !r.Discovery.Empty() || !r.Network.Empty() || r.Reachability != Unknown
}

func (r *Record) touch(g Group, now time.Time) {
	r.LastUpdate[g] = now
	r.Dirty = true
}

// SetDiscovery replaces the discovery attributes.
func (r *Record) SetDiscovery(attrs DiscoveryAttrs, now time.Time) {
	r.Discovery = attrs
	r.touch(GroupDiscovery, now)
}

// ClearDiscovery empties the discovery attributes. A host with no known
// address cannot be meaningfully reachable, so reachability returns to
// Unknown as well. Clearing an empty group is a no-op.
func (r *Record) ClearDiscovery(now time.Time) {
	if r.Discovery.Empty() {
		return
	}
	r.Discovery = DiscoveryAttrs{}
	r.touch(GroupDiscovery, now)
	if r.Reachability != Unknown {
		r.Reachability = Unknown
		r.touch(GroupReachability, now)
	}
}

// SetNetwork replaces the network attributes.
func (r *Record) SetNetwork(attrs NetworkAttrs, now time.Time) {
	r.Network = attrs
	r.touch(GroupNetwork, now)
}

// ClearNetwork empties the network attributes. Clearing an empty group is a
// no-op.
func (r *Record) ClearNetwork(now time.Time) {
	if r.Network.Empty() {
		return
	}
	r.Network = NetworkAttrs{}
	r.touch(GroupNetwork, now)
}

// SetReachability records a probe outcome. Only a transition marks the record
// dirty and refreshes its timestamp; repeated confirmations are ignored.
// It returns whether the state changed.
func (r *Record) SetReachability(state Reachability, now time.Time) bool {
	if r.Reachability == state {
		return false
	}
	r.Reachability = state
	r.touch(GroupReachability, now)
	return true
}
