package server

import (
	"time"

	"github.com/kylerisse/comitup-watch/pkg/check"
	"github.com/kylerisse/comitup-watch/pkg/engine"
	"github.com/kylerisse/comitup-watch/pkg/host"
)

// HostStatus summarises a host for API consumers. The string values are
// stable.
type HostStatus string

const (
	// HostStatusUnprobed means the host has no IPv4 address to probe.
	HostStatusUnprobed HostStatus = "unprobed"
	// HostStatusPending means the host is probeable but no probe has finished.
	HostStatusPending HostStatus = "pending"
	// HostStatusUp means the last probe succeeded within the staleness window.
	HostStatusUp HostStatus = "up"
	// HostStatusStale means the host was up but has not been probed recently.
	HostStatusStale HostStatus = "stale"
	// HostStatusDown means the last probe failed.
	HostStatusDown HostStatus = "down"
)

// stalenessPeriods is how many probe periods may pass before an up host
// is reported stale.
const stalenessPeriods = 3

// computeHostStatus derives a HostStatus from a table row and the latest
// probe result for that host, if any. A result is fresh if it is strictly
// newer than now minus window.
func computeHostStatus(row engine.Row, result check.Result, hasResult bool, now time.Time, window time.Duration) HostStatus {
	switch row.Reachability {
	case host.Down:
		return HostStatusDown
	case host.Up:
		if !hasResult || !result.Timestamp.After(now.Add(-window)) {
			return HostStatusStale
		}
		return HostStatusUp
	}

	if row.Cells[engine.ColIPv4].Value == "" {
		return HostStatusUnprobed
	}
	return HostStatusPending
}

// stalenessWindow is the configured probe period times stalenessPeriods.
func (s *Server) stalenessWindow() time.Duration {
	return stalenessPeriods * s.cfg.Probe.Period
}
