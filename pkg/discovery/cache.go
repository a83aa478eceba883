package discovery

import (
	"slices"
	"strings"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/miekg/dns"
)

// instance is one announced service instance.
type instance struct {
	name    string
	target  string
	txt     map[string]string
	hasSRV  bool
	expires time.Time

	// announced is the payload last reported as ADDED, nil if none.
	announced *event.Discovery
}

// addrSet holds the address records of one target host.
type addrSet struct {
	v4, v6 map[string]time.Time
}

// cache is the browser's view of the service instances on the link.
// It is only used from the browser goroutine.
type cache struct {
	service   string
	instances map[string]*instance
	addrs     map[string]*addrSet
}

func newCache(service string) *cache {
	return &cache{
		service:   canonical(service),
		instances: make(map[string]*instance),
		addrs:     make(map[string]*addrSet),
	}
}

// canonical lower-cases a DNS name and makes it fully qualified.
func canonical(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

// ttlExpiry converts a record TTL into an absolute expiry time.
func ttlExpiry(rr dns.RR, now time.Time) time.Time {
	return now.Add(time.Duration(rr.Header().Ttl) * time.Second)
}

// isGoodbye reports whether rr withdraws a previous announcement.
func isGoodbye(rr dns.RR) bool {
	return rr.Header().Ttl == 0
}

func (c *cache) ownsInstance(name string) bool {
	n := canonical(name)
	return strings.HasSuffix(n, "."+c.service) && n != c.service
}

func (c *cache) instance(name string) *instance {
	key := canonical(name)
	inst, ok := c.instances[key]
	if !ok {
		inst = &instance{name: dns.Fqdn(name), txt: map[string]string{}}
		c.instances[key] = inst
	}
	return inst
}

func (c *cache) addrSet(host string) *addrSet {
	key := canonical(host)
	set, ok := c.addrs[key]
	if !ok {
		set = &addrSet{v4: map[string]time.Time{}, v6: map[string]time.Time{}}
		c.addrs[key] = set
	}
	return set
}

// HandleMessage folds an mDNS response into the cache and returns the
// discovery events it causes.
func (c *cache) HandleMessage(msg *dns.Msg, now time.Time) []event.Event {
	if msg == nil || !msg.Response {
		return nil
	}

	records := make([]dns.RR, 0, len(msg.Answer)+len(msg.Ns)+len(msg.Extra))
	records = append(records, msg.Answer...)
	records = append(records, msg.Ns...)
	records = append(records, msg.Extra...)

	var gone []string

	for _, rr := range records {
		switch r := rr.(type) {
		case *dns.PTR:
			if canonical(r.Hdr.Name) != c.service || !c.ownsInstance(r.Ptr) {
				continue
			}
			if isGoodbye(r) {
				gone = append(gone, canonical(r.Ptr))
				continue
			}
			inst := c.instance(r.Ptr)
			inst.expires = later(inst.expires, ttlExpiry(r, now))
		case *dns.SRV:
			if !c.ownsInstance(r.Hdr.Name) {
				continue
			}
			if isGoodbye(r) {
				gone = append(gone, canonical(r.Hdr.Name))
				continue
			}
			inst := c.instance(r.Hdr.Name)
			inst.target = r.Target
			inst.hasSRV = true
			inst.expires = later(inst.expires, ttlExpiry(r, now))
		case *dns.TXT:
			if !c.ownsInstance(r.Hdr.Name) || isGoodbye(r) {
				continue
			}
			inst := c.instance(r.Hdr.Name)
			inst.txt = parseTXT(r.Txt)
			inst.expires = later(inst.expires, ttlExpiry(r, now))
		case *dns.A:
			set := c.addrSet(r.Hdr.Name)
			ip := r.A.String()
			if isGoodbye(r) {
				delete(set.v4, ip)
				continue
			}
			set.v4[ip] = ttlExpiry(r, now)
		case *dns.AAAA:
			set := c.addrSet(r.Hdr.Name)
			ip := r.AAAA.String()
			if isGoodbye(r) {
				delete(set.v6, ip)
				continue
			}
			set.v6[ip] = ttlExpiry(r, now)
		}
	}

	var events []event.Event
	for _, key := range gone {
		events = append(events, c.remove(key)...)
	}
	return append(events, c.reconcile()...)
}

// Expire drops instances and addresses whose TTL has run out.
func (c *cache) Expire(now time.Time) []event.Event {
	var events []event.Event

	for key, inst := range c.instances {
		if !inst.expires.IsZero() && !now.Before(inst.expires) {
			events = append(events, c.remove(key)...)
		}
	}

	for host, set := range c.addrs {
		for ip, exp := range set.v4 {
			if !now.Before(exp) {
				delete(set.v4, ip)
			}
		}
		for ip, exp := range set.v6 {
			if !now.Before(exp) {
				delete(set.v6, ip)
			}
		}
		if len(set.v4) == 0 && len(set.v6) == 0 {
			delete(c.addrs, host)
		}
	}

	return append(events, c.reconcile()...)
}

func (c *cache) remove(key string) []event.Event {
	inst, ok := c.instances[key]
	if !ok {
		return nil
	}
	delete(c.instances, key)
	if inst.announced == nil {
		return nil
	}
	return []event.Event{event.NewDiscovery(event.Removed, event.Discovery{Key: inst.name})}
}

// reconcile announces every complete instance whose payload differs from
// what was last reported.
func (c *cache) reconcile() []event.Event {
	keys := make([]string, 0, len(c.instances))
	for k := range c.instances {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var events []event.Event
	for _, k := range keys {
		inst := c.instances[k]
		if !inst.hasSRV {
			continue
		}
		d := c.payload(inst)
		if inst.announced != nil && sameDiscovery(*inst.announced, d) {
			continue
		}
		inst.announced = &d
		events = append(events, event.NewDiscovery(event.Added, d))
	}
	return events
}

// payload builds the discovery event body for inst.
func (c *cache) payload(inst *instance) event.Discovery {
	domain := inst.txt["hostname"]
	if domain == "" {
		domain = strings.TrimSuffix(inst.target, ".")
	}

	var addrs []string
	if set, ok := c.addrs[canonical(inst.target)]; ok {
		v4 := sortedKeys(set.v4)
		v6 := sortedKeys(set.v6)
		addrs = append(v4, v6...)
	}

	return event.Discovery{
		Key:       inst.name,
		Domain:    domain,
		Addresses: addrs,
		IPv4:      inst.txt["ipv4"],
		IPv6:      inst.txt["ipv6"],
	}
}

func sameDiscovery(a, b event.Discovery) bool {
	return a.Key == b.Key && a.Domain == b.Domain && a.IPv4 == b.IPv4 &&
		a.IPv6 == b.IPv6 && slices.Equal(a.Addresses, b.Addresses)
}

func sortedKeys(m map[string]time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// parseTXT splits DNS-SD key=value strings. Keys are case-insensitive.
func parseTXT(txt []string) map[string]string {
	props := make(map[string]string, len(txt))
	for _, s := range txt {
		k, v, _ := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		props[strings.ToLower(k)] = v
	}
	return props
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
