// Package discovery browses the local link for DNS-SD service announcements
// over multicast DNS and reports them as discovery events.
//
// The Browser periodically multicasts a PTR query for its service type and
// listens to every mDNS response on the link, so announcements triggered by
// other queriers are picked up too. Instances are announced once their SRV
// record is known, re-announced when their addresses or domain change, and
// withdrawn on goodbye packets or TTL expiry.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/event"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultServiceType is the DNS-SD service browsed for.
	DefaultServiceType = "_comitup._tcp.local."

	// DefaultQueryInterval is how often the PTR query is repeated.
	DefaultQueryInterval = 10 * time.Second

	expireInterval = time.Second
	maxPacketSize  = 9000
)

var mdnsGroup = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// Options configures a Browser.
type Options struct {
	ServiceType string

	// Interface restricts browsing to one network interface by name.
	// Empty means the system default multicast interface.
	Interface string

	QueryInterval time.Duration
	Events        chan<- event.Event
	Logger        *logrus.Logger
}

// Browser is an mDNS service browser.
type Browser struct {
	service  string
	iface    string
	interval time.Duration
	events   chan<- event.Event
	logger   *logrus.Logger
	cache    *cache
}

// NewBrowser validates opts and creates a Browser.
func NewBrowser(opts Options) (*Browser, error) {
	service := opts.ServiceType
	if service == "" {
		service = DefaultServiceType
	}
	if _, ok := dns.IsDomainName(service); !ok {
		return nil, fmt.Errorf("discovery: invalid service type %q", service)
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("discovery: events channel is required")
	}

	interval := opts.QueryInterval
	if interval <= 0 {
		interval = DefaultQueryInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Browser{
		service:  dns.Fqdn(service),
		iface:    opts.Interface,
		interval: interval,
		events:   opts.Events,
		logger:   logger,
		cache:    newCache(service),
	}, nil
}

// Query builds the PTR question for the browsed service type.
func (b *Browser) Query() *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(b.service, dns.TypePTR)
	msg.Id = 0
	msg.RecursionDesired = false
	return msg
}

// HandleMessage folds one mDNS response into the browser's cache and
// returns the resulting events without sending them.
func (b *Browser) HandleMessage(msg *dns.Msg, now time.Time) []event.Event {
	return b.cache.HandleMessage(msg, now)
}

// Expire drops entries whose TTL has elapsed and returns the resulting
// events without sending them.
func (b *Browser) Expire(now time.Time) []event.Event {
	return b.cache.Expire(now)
}

// Run browses until ctx is cancelled.
func (b *Browser) Run(ctx context.Context) error {
	var ifi *net.Interface
	if b.iface != "" {
		var err error
		ifi, err = net.InterfaceByName(b.iface)
		if err != nil {
			return fmt.Errorf("discovery: interface %q: %w", b.iface, err)
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, mdnsGroup)
	if err != nil {
		return fmt.Errorf("discovery: listen %s: %w", mdnsGroup, err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	msgs := make(chan *dns.Msg, 16)
	go b.read(ctx, conn, msgs)

	b.logger.Infof("Browsing for %s on %s", b.service, mdnsGroup)

	query := time.NewTicker(b.interval)
	defer query.Stop()
	expire := time.NewTicker(expireInterval)
	defer expire.Stop()

	b.send(conn)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Discovery browser received shutdown signal.")
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("discovery: multicast socket closed")
			}
			if !b.emit(ctx, b.HandleMessage(msg, time.Now())) {
				return ctx.Err()
			}
		case <-query.C:
			b.send(conn)
		case now := <-expire.C:
			if !b.emit(ctx, b.Expire(now)) {
				return ctx.Err()
			}
		}
	}
}

// read unpacks packets until the socket is closed.
func (b *Browser) read(ctx context.Context, conn *net.UDPConn, msgs chan<- *dns.Msg) {
	defer close(msgs)

	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			b.logger.Debugf("Ignoring malformed mDNS packet from %s: %v", from, err)
			continue
		}
		select {
		case msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Browser) send(conn *net.UDPConn) {
	wire, err := b.Query().Pack()
	if err != nil {
		b.logger.Errorf("Packing mDNS query: %v", err)
		return
	}
	if _, err := conn.WriteToUDP(wire, mdnsGroup); err != nil {
		b.logger.Warnf("Sending mDNS query: %v", err)
	}
}

// emit delivers events in order, giving up if ctx ends first.
func (b *Browser) emit(ctx context.Context, events []event.Event) bool {
	for _, ev := range events {
		b.logger.Debugf("Discovery: %s", ev)
		select {
		case b.events <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
