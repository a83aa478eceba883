// Package check defines the liveness probe framework used by the
// reachability scheduler.
//
// A Check is a single bounded-time probe against one target. Different
// probe methods (the system ping binary, an ICMP datagram socket) implement
// the Check interface with their own logic and configuration, and register a
// Factory under their type name so the method can be chosen from config at
// runtime.
package check

import (
	"context"
	"time"
)

// Check is the interface that all probe types must implement.
type Check interface {
	// Type returns the registered name of this check type (e.g. "ping").
	Type() string

	// Run executes the probe and returns a Result. Implementations must
	// return once ctx is done.
	Run(ctx context.Context) Result
}

// Result captures the outcome of a single probe.
type Result struct {
	// Timestamp is when the probe was started.
	Timestamp time.Time

	// Success indicates whether the target answered.
	Success bool

	// Latency is the measured round-trip time. Zero unless Success.
	Latency time.Duration

	// Err holds any error encountered. A timeout or an unreachable target
	// is reported here with Success false; it is an ordinary outcome.
	Err error
}

// Failed builds an unsuccessful Result.
func Failed(ts time.Time, err error) Result {
	return Result{Timestamp: ts, Err: err}
}
