package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kylerisse/comitup-watch/pkg/host"
)

// handlePrometheus writes Prometheus-formatted metrics for the host table.
func (s *Server) handlePrometheus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	rows := s.engine.Snapshot().Rows
	now := s.now()

	w.Write([]byte("# HELP comitup_hosts Number of hosts in the table.\n"))
	w.Write([]byte("# TYPE comitup_hosts gauge\n"))
	w.Write(fmt.Appendf([]byte{}, "comitup_hosts %d\n", len(rows)))

	w.Write([]byte("# HELP comitup_host_info Host attributes from discovery and network scans.\n"))
	w.Write([]byte("# TYPE comitup_host_info gauge\n"))
	for _, row := range rows {
		resp := s.hostResponse(row, now)
		w.Write(fmt.Appendf([]byte{},
			"comitup_host_info{host=\"%s\", ssid=\"%s\", domain=\"%s\", ipv4=\"%s\", ipv6=\"%s\"} 1\n",
			sanitizePrometheusLabel(row.Host),
			sanitizePrometheusLabel(resp.SSID),
			sanitizePrometheusLabel(resp.Domain),
			sanitizePrometheusLabel(resp.IPv4),
			sanitizePrometheusLabel(resp.IPv6),
		))
	}

	w.Write([]byte("# HELP comitup_host_reachable Whether the host answered its last probe (1=up, 0=down).\n"))
	w.Write([]byte("# TYPE comitup_host_reachable gauge\n"))
	for _, row := range rows {
		if row.Reachability == host.Unknown {
			continue
		}
		val := 0
		if row.Reachability == host.Up {
			val = 1
		}
		w.Write(fmt.Appendf([]byte{},
			"comitup_host_reachable{host=\"%s\"} %d\n",
			sanitizePrometheusLabel(row.Host),
			val,
		))
	}

	w.Write([]byte("# HELP comitup_probe_latency_seconds Round-trip time of the last successful probe.\n"))
	w.Write([]byte("# TYPE comitup_probe_latency_seconds gauge\n"))
	for _, row := range rows {
		result, ok := s.status.Result(row.Host)
		if !ok || !result.Success {
			continue
		}
		w.Write(fmt.Appendf([]byte{},
			"comitup_probe_latency_seconds{host=\"%s\"} %g\n",
			sanitizePrometheusLabel(row.Host),
			result.Latency.Seconds(),
		))
	}
}

// sanitizePrometheusLabel escapes backslash, double-quote, and newline
// characters in a Prometheus label value per the Prometheus exposition format.
func sanitizePrometheusLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
