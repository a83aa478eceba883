// Package event defines the messages that producers send to the aggregation
// engine.
//
// An Event is a closed tagged union: Kind selects which of the three payloads
// is meaningful and Action says whether the producer is reporting that data
// appeared or went away. Consumers dispatch with a switch over Kind rather
// than inspecting dynamic types.
package event

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformed is returned by Validate for events that cannot be applied.
var ErrMalformed = errors.New("malformed event")

// Kind identifies the producer an Event came from.
type Kind int

const (
	// KindDiscovery events come from the service-discovery browser.
	KindDiscovery Kind = iota + 1
	// KindNetwork events come from the Wi-Fi network monitor.
	KindNetwork
	// KindReachability events come from the reachability scheduler.
	KindReachability
)

func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "discovery"
	case KindNetwork:
		return "network"
	case KindReachability:
		return "reachability"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action says whether data was added or removed.
type Action int

const (
	Added Action = iota + 1
	Removed
)

func (a Action) String() string {
	switch a {
	case Added:
		return "ADDED"
	case Removed:
		return "REMOVED"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Discovery is the payload of a service announcement.
type Discovery struct {
	// Key is the announced instance name, e.g. "alpha._comitup._tcp.local.".
	// Its leading label is the hostname.
	Key string

	// Domain is the host's advertised domain name.
	Domain string

	// Addresses lists every address literal the announcement carried.
	Addresses []string

	// IPv4 and IPv6 are explicit property values, used only when Addresses
	// holds no literal of the matching family.
	IPv4 string
	IPv6 string
}

// Network is the payload of a Wi-Fi network change. The SSID doubles as the
// hostname key.
type Network struct {
	SSID string
}

// Reachability is the payload of a probe result.
type Reachability struct {
	Hostname string
}

// Event is a single message on the engine's inbound channel.
type Event struct {
	Kind   Kind
	Action Action

	Discovery    Discovery
	Network      Network
	Reachability Reachability
}

// NewDiscovery builds a discovery event.
func NewDiscovery(action Action, d Discovery) Event {
	return Event{Kind: KindDiscovery, Action: action, Discovery: d}
}

// NewNetwork builds a network-change event for ssid.
func NewNetwork(action Action, ssid string) Event {
	return Event{Kind: KindNetwork, Action: action, Network: Network{SSID: ssid}}
}

// NewReachability builds a probe-result event for hostname.
func NewReachability(action Action, hostname string) Event {
	return Event{Kind: KindReachability, Action: action, Reachability: Reachability{Hostname: hostname}}
}

// Hostname returns the registry key the event applies to.
func (e Event) Hostname() string {
	switch e.Kind {
	case KindDiscovery:
		return HostnameFromKey(e.Discovery.Key)
	case KindNetwork:
		return e.Network.SSID
	case KindReachability:
		return e.Reachability.Hostname
	default:
		return ""
	}
}

// Validate reports whether the event can be applied to the registry.
// The returned error wraps ErrMalformed.
func (e Event) Validate() error {
	if e.Action != Added && e.Action != Removed {
		return fmt.Errorf("%w: unknown action %v", ErrMalformed, e.Action)
	}

	switch e.Kind {
	case KindDiscovery:
		if e.Discovery.Key == "" {
			return fmt.Errorf("%w: discovery event has no key", ErrMalformed)
		}
		if HostnameFromKey(e.Discovery.Key) == "" {
			return fmt.Errorf("%w: discovery key %q has an empty leading label", ErrMalformed, e.Discovery.Key)
		}
	case KindNetwork:
		if e.Network.SSID == "" {
			return fmt.Errorf("%w: network event has no ssid", ErrMalformed)
		}
	case KindReachability:
		if e.Reachability.Hostname == "" {
			return fmt.Errorf("%w: reachability event has no hostname", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrMalformed, e.Kind)
	}
	return nil
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s", e.Kind, e.Action, e.Hostname())
}

// HostnameFromKey returns the leading label of an announced key, i.e. the
// substring before the first '.'.
func HostnameFromKey(key string) string {
	if i := strings.IndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return key
}

var (
	ipv4Literal = regexp.MustCompile(`^(?:[0-9]{1,3}\.){3}[0-9]{1,3}$`)
	ipv6Literal = regexp.MustCompile(`^[0-9a-fA-F:]+$`)
)

// FirstIPv4 returns the first dotted-quad literal in addrs.
func FirstIPv4(addrs []string) (string, bool) {
	for _, a := range addrs {
		if ipv4Literal.MatchString(a) {
			return a, true
		}
	}
	return "", false
}

// FirstIPv6 returns the first colon-hex literal in addrs.
func FirstIPv6(addrs []string) (string, bool) {
	for _, a := range addrs {
		if strings.Contains(a, ":") && ipv6Literal.MatchString(a) {
			return a, true
		}
	}
	return "", false
}

// PickIPv4 applies the discovery address rule: the first IPv4 literal among
// the announced addresses, else the explicit property value.
func (d Discovery) PickIPv4() string {
	if a, ok := FirstIPv4(d.Addresses); ok {
		return a
	}
	return d.IPv4
}

// PickIPv6 is PickIPv4 for IPv6.
func (d Discovery) PickIPv6() string {
	if a, ok := FirstIPv6(d.Addresses); ok {
		return a
	}
	return d.IPv6
}
