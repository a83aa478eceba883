package engine

import (
	"time"

	"github.com/kylerisse/comitup-watch/pkg/host"
)

// Column indexes into Row.Cells.
const (
	ColNetwork = iota
	ColDomain
	ColIPv4
	ColIPv6
	ColReachability

	NumColumns
)

// ColumnTitles are the table headings, in column order.
var ColumnTitles = [NumColumns]string{"SSID", "Domain", "IPv4", "IPv6", "Ping"}

// Cell is one table value and whether it changed recently.
type Cell struct {
	Value string `json:"value"`
	Fresh bool   `json:"fresh"`
}

// Row is the rendered form of one host record.
type Row struct {
	Host         string            `json:"host"`
	Reachability host.Reachability `json:"-"`
	Cells        [NumColumns]Cell  `json:"cells"`
}

// Snapshot is the most recently rendered table.
type Snapshot struct {
	Rows      []Row
	Generated time.Time
}

// Rows renders the registry in hostname order.
func (e *Engine) Rows(now time.Time) []Row {
	rows := make([]Row, 0, e.registry.Len())
	for rec := range e.registry.All() {
		rows = append(rows, e.row(rec, now))
	}
	return rows
}

func (e *Engine) row(rec *host.Record, now time.Time) Row {
	discovery := e.freshness.Fresh(rec, host.GroupDiscovery, now)
	network := e.freshness.Fresh(rec, host.GroupNetwork, now)
	reach := e.freshness.Fresh(rec, host.GroupReachability, now)

	r := Row{Host: rec.Hostname, Reachability: rec.Reachability}
	r.Cells[ColNetwork] = Cell{Value: rec.Network.SSID, Fresh: network}
	r.Cells[ColDomain] = Cell{Value: rec.Discovery.Domain, Fresh: discovery}
	r.Cells[ColIPv4] = Cell{Value: rec.Discovery.IPv4, Fresh: discovery}
	r.Cells[ColIPv6] = Cell{Value: rec.Discovery.IPv6, Fresh: discovery}
	r.Cells[ColReachability] = Cell{Value: rec.Reachability.Glyph(), Fresh: reach}
	return r
}

// Snapshot returns the last rendered table. It is safe to call from any
// goroutine.
func (e *Engine) Snapshot() Snapshot {
	return *e.snapshot.Load()
}
