// Package icmp implements a reachability probe that sends a single ICMP
// echo request from the process itself, without shelling out.
//
// By default it uses the unprivileged datagram ICMP sockets Linux offers
// ("udp4"/"udp6"), which require net.ipv4.ping_group_range to include the
// process's group. WithPrivileged switches to raw sockets.
package icmp

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/check"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "icmp"

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 400 * time.Millisecond

	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// ICMP implements check.Check with one echo request.
type ICMP struct {
	target     net.IP
	timeout    time.Duration
	privileged bool
}

// Option is a functional option for configuring an ICMP check.
type Option func(*ICMP) error

// WithTimeout sets how long to wait for the echo reply.
func WithTimeout(d time.Duration) Option {
	return func(c *ICMP) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithPrivileged uses raw ICMP sockets instead of datagram sockets.
func WithPrivileged(privileged bool) Option {
	return func(c *ICMP) error {
		c.privileged = privileged
		return nil
	}
}

// New creates an ICMP check for target, which must be an IP literal.
func New(target string, opts ...Option) (*ICMP, error) {
	if target == "" {
		return nil, fmt.Errorf("icmp: target must not be empty")
	}
	ip := net.ParseIP(target)
	if ip == nil {
		return nil, fmt.Errorf("icmp: target %q is not an IP address", target)
	}

	c := &ICMP{
		target:  ip,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("icmp: %w", err)
		}
	}

	return c, nil
}

// Type returns the check type name.
func (c *ICMP) Type() string {
	return TypeName
}

// family holds the per-address-family socket parameters.
type family struct {
	network  string
	listen   string
	protocol int
	request  icmp.Type
	reply    icmp.Type
}

func (c *ICMP) family() family {
	if c.target.To4() != nil {
		f := family{network: "udp4", listen: "0.0.0.0", protocol: protocolICMP,
			request: ipv4.ICMPTypeEcho, reply: ipv4.ICMPTypeEchoReply}
		if c.privileged {
			f.network = "ip4:icmp"
		}
		return f
	}
	f := family{network: "udp6", listen: "::", protocol: protocolIPv6ICMP,
		request: ipv6.ICMPTypeEchoRequest, reply: ipv6.ICMPTypeEchoReply}
	if c.privileged {
		f.network = "ip6:ipv6-icmp"
	}
	return f
}

func (c *ICMP) destination(f family) net.Addr {
	if f.network == "udp4" || f.network == "udp6" {
		return &net.UDPAddr{IP: c.target}
	}
	return &net.IPAddr{IP: c.target}
}

// Run sends one echo request and waits for the matching reply.
func (c *ICMP) Run(ctx context.Context) check.Result {
	now := time.Now()

	f := c.family()
	conn, err := icmp.ListenPacket(f.network, f.listen)
	if err != nil {
		return check.Failed(now, fmt.Errorf("icmp %s: listen: %w", c.target, err))
	}
	defer conn.Close()

	deadline := now.Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return check.Failed(now, fmt.Errorf("icmp %s: %w", c.target, err))
	}

	// Unblock the read if ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	seq := rand.IntN(1 << 16)
	payload := []byte(fmt.Sprintf("comitup-watch %d", now.UnixNano()))
	wb, err := (&icmp.Message{
		Type: f.request,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: payload},
	}).Marshal(nil)
	if err != nil {
		return check.Failed(now, fmt.Errorf("icmp %s: marshal: %w", c.target, err))
	}

	sent := time.Now()
	if _, err := conn.WriteTo(wb, c.destination(f)); err != nil {
		return check.Failed(now, fmt.Errorf("icmp %s: write: %w", c.target, err))
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return check.Failed(now, fmt.Errorf("icmp %s: %w", c.target, err))
		}
		if !sameHost(peer, c.target) {
			continue
		}
		if matchReply(rb[:n], f, seq, payload) {
			return check.Result{
				Timestamp: now,
				Success:   true,
				Latency:   time.Since(sent),
			}
		}
	}
}

// matchReply reports whether b is the echo reply to our request. The ID is
// not compared because datagram sockets rewrite it to the local port.
func matchReply(b []byte, f family, seq int, payload []byte) bool {
	msg, err := icmp.ParseMessage(f.protocol, b)
	if err != nil || msg.Type != f.reply {
		return false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return false
	}
	return echo.Seq == seq && bytes.Equal(echo.Data, payload)
}

func sameHost(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}

// Factory creates an ICMP check from a config map.
// Required key: "target" (IP literal).
// Optional keys: "timeout" (duration), "privileged" (bool).
func Factory(config map[string]any) (check.Check, error) {
	target, ok := config["target"]
	if !ok {
		return nil, fmt.Errorf("icmp: config missing required key 'target'")
	}
	targetStr, ok := target.(string)
	if !ok {
		return nil, fmt.Errorf("icmp: 'target' must be a string, got %T", target)
	}

	var opts []Option

	timeout, ok, err := check.DurationOption(config, "timeout")
	if err != nil {
		return nil, fmt.Errorf("icmp: %w", err)
	}
	if ok {
		opts = append(opts, WithTimeout(timeout))
	}

	if v, ok := config["privileged"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("icmp: 'privileged' must be a bool, got %T", v)
		}
		opts = append(opts, WithPrivileged(b))
	}

	return New(targetStr, opts...)
}
