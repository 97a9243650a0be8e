package systemd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the typed health record derived from `systemctl show` output
type Status struct {
	ServiceName string     `json:"serviceName"`
	Active      bool       `json:"active"`
	ActiveState string     `json:"activeState"`
	SubState    string     `json:"subState"`
	Loaded      bool       `json:"loaded"`
	Healthy     bool       `json:"healthy"`
	PID         *int       `json:"pid"`
	Memory      string     `json:"memory,omitempty"`
	Restarts    int        `json:"restarts"`
	Uptime      string     `json:"uptime,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
}

// systemd renders timestamps like "Mon 2026-01-05 12:30:45 UTC";
// fallbacks cover locales and unit files that emit standard formats.
var timestampLayouts = []string{
	"Mon 2006-01-02 15:04:05 MST",
	time.RFC3339,
	time.RFC1123,
	"2006-01-02 15:04:05 MST",
}

// nowFunc is swapped out in tests
var nowFunc = time.Now

// Status runs `systemctl show` for the unit and parses the result
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	output, err := m.Execute(ctx, "show", m.timeouts.Default)
	if err != nil {
		return nil, err
	}
	return ParseShow(m.serviceName, output)
}

// ParseShow parses the line-oriented Key=Value output of `systemctl show`.
// Absence of both ActiveState and SubState is the only hard failure; it
// signals the output is not from systemctl at all. Everything else
// degrades to defaults.
func ParseShow(serviceName, output string) (*Status, error) {
	props := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !strings.Contains(trimmed, "=") {
			continue
		}
		// Values may themselves contain '='
		key, value, _ := strings.Cut(trimmed, "=")
		props[key] = value
	}

	if props["ActiveState"] == "" && props["SubState"] == "" {
		return nil, fmt.Errorf("%w: missing ActiveState and SubState", ErrParse)
	}

	activeState := props["ActiveState"]
	if activeState == "" {
		activeState = "unknown"
	}
	subState := props["SubState"]
	if subState == "" {
		subState = "unknown"
	}
	active := activeState == "active"

	status := &Status{
		ServiceName: serviceName,
		Active:      active,
		ActiveState: activeState,
		SubState:    subState,
		Loaded:      props["LoadState"] == "loaded",
		Healthy:     active && subState == "running",
		Memory:      formatBytes(parseInt64(props["MemoryCurrent"])),
		Restarts:    int(parseInt64(props["NRestarts"])),
	}

	if pid := int(parseInt64(props["MainPID"])); pid > 0 {
		status.PID = &pid
	}

	if ts := strings.TrimSpace(props["ExecMainStartTimestamp"]); ts != "" {
		if startTime, err := parseTimestamp(ts); err == nil {
			status.StartTime = &startTime
			status.Uptime = formatUptime(nowFunc().Sub(startTime))
		}
		// Unparseable timestamps are silently omitted
	}

	return status, nil
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// formatBytes renders a byte count with binary unit steps and one decimal
func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB"}
	value := float64(bytes)
	idx := 0
	for value >= 1024 && idx < len(units)-1 {
		value /= 1024
		idx++
	}

	return fmt.Sprintf("%.1f %s", value, units[idx])
}

// formatUptime renders a duration compactly, largest two components only
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	seconds := int64(d.Seconds())
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
