package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kylerisse/comitup-watch/pkg/engine"
)

// HostAPIResponse is one host as reported by the API.
type HostAPIResponse struct {
	SSID         string         `json:"ssid,omitempty"`
	Domain       string         `json:"domain,omitempty"`
	IPv4         string         `json:"ipv4,omitempty"`
	IPv6         string         `json:"ipv6,omitempty"`
	Reachability string         `json:"reachability"`
	Status       HostStatus     `json:"status"`
	Fresh        []string       `json:"fresh,omitempty"`
	Probe        *ProbeResponse `json:"probe,omitempty"`
}

// ProbeResponse is the latest reachability probe for a host.
type ProbeResponse struct {
	Alive      bool   `json:"alive"`
	LatencyUS  int64  `json:"latency_us,omitempty"`
	LastUpdate int64  `json:"lastupdate"`
	Error      string `json:"error,omitempty"`
}

// SummaryResponse counts hosts by status.
type SummaryResponse struct {
	Total     int                `json:"total"`
	Statuses  map[HostStatus]int `json:"statuses"`
	Generated int64              `json:"generated"`
}

// hostResponse builds the API view of one row.
func (s *Server) hostResponse(row engine.Row, now time.Time) HostAPIResponse {
	resp := HostAPIResponse{
		SSID:         row.Cells[engine.ColNetwork].Value,
		Domain:       row.Cells[engine.ColDomain].Value,
		IPv4:         row.Cells[engine.ColIPv4].Value,
		IPv6:         row.Cells[engine.ColIPv6].Value,
		Reachability: row.Reachability.String(),
	}

	for i, c := range row.Cells {
		if c.Fresh {
			resp.Fresh = append(resp.Fresh, strings.ToLower(engine.ColumnTitles[i]))
		}
	}

	result, ok := s.status.Result(row.Host)
	if ok {
		probe := &ProbeResponse{
			Alive:      result.Success,
			LastUpdate: result.Timestamp.Unix(),
		}
		if result.Success {
			probe.LatencyUS = result.Latency.Microseconds()
		}
		if result.Err != nil {
			probe.Error = result.Err.Error()
		}
		resp.Probe = probe
	}

	resp.Status = computeHostStatus(row, result, ok, now, s.stalenessWindow())
	return resp
}

func (s *Server) handleAPI(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	snap := s.engine.Snapshot()

	hosts := make(map[string]HostAPIResponse, len(snap.Rows))
	for _, row := range snap.Rows {
		hosts[row.Host] = s.hostResponse(row, now)
	}

	writeJSON(w, hosts)
}

func (s *Server) handleHostAPI(w http.ResponseWriter, r *http.Request) {
	hostname := r.PathValue("hostname")
	now := s.now()

	for _, row := range s.engine.Snapshot().Rows {
		if row.Host == hostname {
			writeJSON(w, s.hostResponse(row, now))
			return
		}
	}
	http.Error(w, "host not found", http.StatusNotFound)
}

func (s *Server) handleSummaryAPI(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	snap := s.engine.Snapshot()

	summary := SummaryResponse{
		Total:    len(snap.Rows),
		Statuses: make(map[HostStatus]int),
	}
	if !snap.Generated.IsZero() {
		summary.Generated = snap.Generated.Unix()
	}
	for _, row := range snap.Rows {
		summary.Statuses[s.hostResponse(row, now).Status]++
	}

	writeJSON(w, summary)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
