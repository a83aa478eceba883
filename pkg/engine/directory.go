package engine

// Directory is an immutable view of the registry for readers on other
// goroutines, chiefly the reachability scheduler.
type Directory struct {
	hostnames []string
	ipv4      map[string]string
}

// Hostnames returns every known hostname in registry order.
func (d *Directory) Hostnames() []string {
	out := make([]string, len(d.hostnames))
	copy(out, d.hostnames)
	return out
}

// IPv4 returns the last known IPv4 address of hostname.
func (d *Directory) IPv4(hostname string) (string, bool) {
	ip, ok := d.ipv4[hostname]
	return ip, ok && ip != ""
}

// Len returns the number of hosts.
func (d *Directory) Len() int {
	return len(d.hostnames)
}

// publishDirectory rebuilds the directory after a mutation.
func (e *Engine) publishDirectory() {
	d := &Directory{
		hostnames: e.registry.Hostnames(),
		ipv4:      make(map[string]string, e.registry.Len()),
	}
	for rec := range e.registry.All() {
		if rec.Discovery.IPv4 != "" {
			d.ipv4[rec.Hostname] = rec.Discovery.IPv4
		}
	}
	e.directory.Store(d)
}

// Directory returns the current read-only view. Safe for concurrent use.
func (e *Engine) Directory() *Directory {
	return e.directory.Load()
}

// Hostnames implements scheduler.HostSource.
func (e *Engine) Hostnames() []string {
	return e.Directory().Hostnames()
}

// IPv4 implements scheduler.HostSource.
func (e *Engine) IPv4(hostname string) (string, bool) {
	return e.Directory().IPv4(hostname)
}
