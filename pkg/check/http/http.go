// Package http implements a reachability probe that requests the web
// service a comitup device serves on its own address. Any HTTP response,
// whatever its status code, counts as reachable.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "http"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 400 * time.Millisecond

	// DefaultPort is the comitup web service port.
	DefaultPort = 80

	// DefaultPath is requested on the target.
	DefaultPath = "/"
)

// Check implements check.Check using one HTTP GET.
type Check struct {
	target  string
	port    int
	path    string
	timeout time.Duration
	client  *http.Client
}

// Option is a functional option for configuring an HTTP Check.
type Option func(*Check) error

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithPort sets the TCP port of the web service.
func WithPort(port int) Option {
	return func(c *Check) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
		c.port = port
		return nil
	}
}

// WithPath sets the requested path.
func WithPath(path string) Option {
	return func(c *Check) error {
		if path == "" || path[0] != '/' {
			return fmt.Errorf("path must start with '/', got %q", path)
		}
		c.path = path
		return nil
	}
}

// New creates an HTTP Check against target, a host name or IP address.
func New(target string, opts ...Option) (*Check, error) {
	if target == "" {
		return nil, fmt.Errorf("http: target must not be empty")
	}

	c := &Check{
		target:  target,
		port:    DefaultPort,
		path:    DefaultPath,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("http: %w", err)
		}
	}

	// Devices in hotspot mode redirect every request to their portal; the
	// redirect itself proves the device is up.
	c.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// URL returns the address the check requests.
func (c *Check) URL() string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(c.target, strconv.Itoa(c.port)),
		Path:   c.path,
	}
	return u.String()
}

// Run executes the request and returns a Result. Latency is the time until
// response headers arrived.
func (c *Check) Run(ctx context.Context) check.Result {
	now := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return check.Failed(now, fmt.Errorf("failed to create request for %s: %w", c.URL(), err))
	}

	resp, err := c.client.Do(req)
	elapsed := time.Since(now)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return check.Failed(now, fmt.Errorf("request to %s failed: %w", c.URL(), err))
	}
	resp.Body.Close()

	return check.Result{
		Timestamp: now,
		Success:   true,
		Latency:   elapsed,
	}
}

// Factory creates an HTTP Check from a config map.
//
// Required key: "target" (string).
// Optional keys:
//   - "timeout" (duration)
//   - "port" (number) default 80
//   - "path" (string) default "/"
func Factory(config map[string]any) (check.Check, error) {
	target, ok := config["target"]
	if !ok {
		return nil, fmt.Errorf("http: config missing required key 'target'")
	}
	targetStr, ok := target.(string)
	if !ok {
		return nil, fmt.Errorf("http: 'target' must be a string, got %T", target)
	}

	var opts []Option

	timeout, ok, err := check.DurationOption(config, "timeout")
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if ok {
		opts = append(opts, WithTimeout(timeout))
	}

	if v, ok := config["port"]; ok {
		switch p := v.(type) {
		case float64:
			opts = append(opts, WithPort(int(p)))
		case int:
			opts = append(opts, WithPort(p))
		default:
			return nil, fmt.Errorf("http: 'port' must be a number, got %T", v)
		}
	}

	if v, ok := config["path"]; ok {
		path, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("http: 'path' must be a string, got %T", v)
		}
		opts = append(opts, WithPath(path))
	}

	return New(targetStr, opts...)
}
