package scheduler

import (
	"context"
	"errors"
	"time"
)

// HostSource is the read-only view of the registry the scheduler needs.
type HostSource interface {
	// Hostnames returns the known hostnames in registry order.
	Hostnames() []string
	// IPv4 returns the last known IPv4 address of hostname.
	IPv4(hostname string) (string, bool)
}

// Sequence yields hostnames to probe: one round-robin pass over every known
// host per period, with priority requests yielded as soon as they arrive.
// A Sequence is not safe for concurrent use.
type Sequence struct {
	period   time.Duration
	hosts    HostSource
	requests <-chan string
	now      func() time.Time

	// OnPass, if set, is called with the hostnames of each new pass.
	OnPass func(hostnames []string)

	next time.Time
	pass []string
	idx  int
}

// NewSequence creates a Sequence. period must be positive.
func NewSequence(period time.Duration, hosts HostSource, requests <-chan string) (*Sequence, error) {
	if period <= 0 {
		return nil, errors.New("scheduler: period must be positive")
	}
	return &Sequence{
		period:   period,
		hosts:    hosts,
		requests: requests,
		now:      time.Now,
	}, nil
}

// Next blocks until the next hostname is due and returns it. It returns
// ctx.Err() once ctx is done. A closed or nil request channel leaves only the
// round-robin passes.
func (s *Sequence) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if s.pass != nil {
			// Pending priority requests go ahead of the rest of the pass.
			select {
			case h, ok := <-s.requests:
				if ok {
					return h, nil
				}
				s.requests = nil
			default:
			}

			if s.idx < len(s.pass) {
				h := s.pass[s.idx]
				s.idx++
				return h, nil
			}
			s.pass = nil
		}

		now := s.now()
		if s.next.IsZero() {
			s.next = now
		}

		if s.next.After(now) {
			h, ok, err := s.wait(ctx, s.next.Sub(now))
			if err != nil {
				return "", err
			}
			if ok {
				return h, nil
			}
			continue
		}

		s.next = s.next.Add(s.period)
		if s.next.Before(now) {
			s.next = now.Add(s.period)
		}

		s.pass = s.hosts.Hostnames()
		s.idx = 0
		if s.OnPass != nil {
			s.OnPass(s.pass)
		}
		if s.pass == nil {
			s.pass = []string{}
		}
	}
}

// wait blocks for at most d on the request channel.
func (s *Sequence) wait(ctx context.Context, d time.Duration) (string, bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case h, ok := <-s.requests:
		if !ok {
			s.requests = nil
			return "", false, nil
		}
		return h, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}
