package host

import "time"

const (
	// DefaultWindow is how long a changed group stays highlighted.
	DefaultWindow = 30 * time.Second

	// DefaultGrace suppresses highlights for updates right after start-up,
	// when every host already on the network is discovered at once.
	DefaultGrace = 5 * time.Second
)

// Freshness decides whether a group counts as recently changed.
type Freshness struct {
	Window time.Duration
	Grace  time.Duration
	Start  time.Time
}

// NewFreshness returns the default policy anchored at start.
func NewFreshness(start time.Time) Freshness {
	return Freshness{Window: DefaultWindow, Grace: DefaultGrace, Start: start}
}

// Fresh reports whether group g of r changed within the window before now,
// ignoring updates that fell inside the start-up grace period.
func (f Freshness) Fresh(r *Record, g Group, now time.Time) bool {
	updated := r.LastUpdate[g]
	if updated.Equal(Stale) {
		return false
	}
	if updated.Sub(f.Start) < f.Grace {
		return false
	}
	return now.Sub(updated) < f.Window
}

// Expired reports whether the end of the freshness window for group g fell
// in the interval (since, now], meaning a highlight must be turned off.
func (f Freshness) Expired(r *Record, g Group, since, now time.Time) bool {
	updated := r.LastUpdate[g]
	if updated.Equal(Stale) {
		return false
	}
	boundary := updated.Add(f.Window)
	return boundary.After(since) && !boundary.After(now)
}
