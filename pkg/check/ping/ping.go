// Package ping implements a reachability probe that shells out to the
// system ping command and parses the round-trip time from its output.
package ping

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "ping"

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 400 * time.Millisecond

	// DefaultCount is the default number of ping packets.
	DefaultCount = 1

	// DefaultBinary is the ping executable looked up on PATH.
	DefaultBinary = "ping"
)

// Ping implements check.Check using the system ping binary.
type Ping struct {
	target  string
	timeout time.Duration
	count   int
	binary  string
}

// New creates a Ping check with the given target and options.
func New(target string, opts ...Option) (*Ping, error) {
	if target == "" {
		return nil, fmt.Errorf("ping: target must not be empty")
	}

	p := &Ping{
		target:  target,
		timeout: DefaultTimeout,
		count:   DefaultCount,
		binary:  DefaultBinary,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
	}

	return p, nil
}

// Option is a functional option for configuring a Ping check.
type Option func(*Ping) error

// WithTimeout sets the ping timeout duration.
func WithTimeout(d time.Duration) Option {
	return func(p *Ping) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithCount sets the number of ping packets to send.
func WithCount(n int) Option {
	return func(p *Ping) error {
		if n < 1 {
			return fmt.Errorf("count must be at least 1, got %d", n)
		}
		p.count = n
		return nil
	}
}

// WithBinary overrides the ping executable.
func WithBinary(path string) Option {
	return func(p *Ping) error {
		if path == "" {
			return fmt.Errorf("binary must not be empty")
		}
		p.binary = path
		return nil
	}
}

// Type returns the check type name.
func (p *Ping) Type() string {
	return TypeName
}

// Run executes the ping check and returns a Result.
//
// ping only accepts whole seconds for -W, so the per-reply wait is the
// timeout rounded up and the context deadline enforces the real bound.
func (p *Ping) Run(ctx context.Context) check.Result {
	now := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, p.args()...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return check.Failed(now, fmt.Errorf("ping %s: %w", p.target, err))
	}

	latency, err := parseOutput(out.String())
	if err != nil {
		return check.Failed(now, fmt.Errorf("ping %s: %w", p.target, err))
	}

	return check.Result{
		Timestamp: now,
		Success:   true,
		Latency:   latency,
	}
}

// args builds the ping command line.
func (p *Ping) args() []string {
	return []string{"-c", strconv.Itoa(p.count), "-W", waitSeconds(p.timeout), p.target}
}

// waitSeconds rounds d up to whole seconds, minimum one.
func waitSeconds(d time.Duration) string {
	sec := int(math.Ceil(d.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return strconv.Itoa(sec)
}

// Factory creates a Ping check from a config map.
// Required key: "target" (string).
// Optional keys: "timeout" (duration), "count" (number), "binary" (string).
func Factory(config map[string]any) (check.Check, error) {
	target, ok := config["target"]
	if !ok {
		return nil, fmt.Errorf("ping: config missing required key 'target'")
	}
	targetStr, ok := target.(string)
	if !ok {
		return nil, fmt.Errorf("ping: 'target' must be a string, got %T", target)
	}

	var opts []Option

	timeout, ok, err := check.DurationOption(config, "timeout")
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if ok {
		opts = append(opts, WithTimeout(timeout))
	}

	if v, ok := config["count"]; ok {
		switch c := v.(type) {
		case float64:
			opts = append(opts, WithCount(int(c)))
		case int:
			opts = append(opts, WithCount(c))
		default:
			return nil, fmt.Errorf("ping: 'count' must be a number, got %T", v)
		}
	}

	if v, ok := config["binary"]; ok {
		path, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("ping: 'binary' must be a string, got %T", v)
		}
		opts = append(opts, WithBinary(path))
	}

	return New(targetStr, opts...)
}

// parseOutput extracts the round-trip time from ping command output.
func parseOutput(output string) (time.Duration, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "time=") {
			continue
		}

		start := strings.Index(line, "time=") + len("time=")
		end := strings.IndexAny(line[start:], " ")
		if end == -1 {
			end = len(line[start:])
		}
		rttStr := line[start : start+end]

		unitStart := start + end
		unit := strings.TrimSpace(line[unitStart:])

		rtt, err := strconv.ParseFloat(strings.TrimSpace(rttStr), 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse RTT %q: %w", rttStr, err)
		}

		switch {
		case strings.Contains(unit, "ms"):
			return time.Duration(rtt * float64(time.Millisecond)), nil
		case strings.Contains(unit, "us") || strings.Contains(unit, "Âµs"):
			return time.Duration(rtt * float64(time.Microsecond)), nil
		case unit == "s":
			return time.Duration(rtt * float64(time.Second)), nil
		}

		return 0, fmt.Errorf("could not determine time unit from %q", unit)
	}
	return 0, fmt.Errorf("RTT not found in ping output")
}
