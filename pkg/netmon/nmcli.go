package netmon

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// DefaultNMCLI is the NetworkManager CLI looked up on PATH.
const DefaultNMCLI = "nmcli"

// Scanner lists the SSIDs currently visible to the radio.
type Scanner interface {
	Scan(ctx context.Context) ([]string, error)
}

// Watcher blocks until ctx is done, signalling on notify whenever the
// network layer reports a change worth rescanning for.
type Watcher interface {
	Watch(ctx context.Context, notify func()) error
}

// NMCLIScanner reads NetworkManager's cached access point list.
type NMCLIScanner struct {
	Binary string
}

// Scan runs `nmcli -t -f SSID device wifi list --rescan no`.
func (s NMCLIScanner) Scan(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, binary(s.Binary), "-t", "-f", "SSID", "device", "wifi", "list", "--rescan", "no")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("nmcli wifi list: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseSSIDs(bytes.NewReader(out))
}

// NMCLIWatcher follows `nmcli monitor`, treating every output line as a
// change notification.
type NMCLIWatcher struct {
	Binary string
}

// Watch runs until ctx is done or nmcli exits.
func (w NMCLIWatcher) Watch(ctx context.Context, notify func()) error {
	cmd := exec.CommandContext(ctx, binary(w.Binary), "monitor")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("nmcli monitor: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("nmcli monitor: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			notify()
		}
	}

	err = cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("nmcli monitor: %w", err)
	}
	return fmt.Errorf("nmcli monitor exited")
}

func binary(path string) string {
	if path == "" {
		return DefaultNMCLI
	}
	return path
}

// parseSSIDs reads nmcli terse output with a single SSID field, one per
// line. Blank SSIDs (hidden networks) are skipped and duplicates collapsed.
func parseSSIDs(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	var ssids []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		ssid := unescapeTerse(strings.TrimRight(scanner.Text(), "\r"))
		if strings.TrimSpace(ssid) == "" || seen[ssid] {
			continue
		}
		seen[ssid] = true
		ssids = append(ssids, ssid)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading nmcli output: %w", err)
	}
	return ssids, nil
}

// unescapeTerse undoes nmcli's terse-mode escaping of ':' and '\'.
func unescapeTerse(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
