package systemd

import (
	"errors"
	"testing"
	"time"
)

const showOutputRunning = `Type=simple
Restart=on-failure
ActiveState=active
SubState=running
LoadState=loaded
MainPID=1234
MemoryCurrent=47398912
NRestarts=2
ExecMainStartTimestamp=Mon 2026-01-05 12:30:45 UTC
Description=Xray Service
Environment=XRAY_LOCATION_ASSET=/usr/local/share/xray
`

func TestParseShowHealthy(t *testing.T) {
	status, err := ParseShow("xray", showOutputRunning)
	if err != nil {
		t.Fatalf("ParseShow() error: %v", err)
	}

	if !status.Active {
		t.Error("Active = false, want true")
	}
	if !status.Healthy {
		t.Error("Healthy = false, want true for active/running")
	}
	if !status.Loaded {
		t.Error("Loaded = false, want true")
	}
	if status.PID == nil || *status.PID != 1234 {
		t.Errorf("PID = %v, want 1234", status.PID)
	}
	if status.Memory != "45.2 MB" {
		t.Errorf("Memory = %q, want \"45.2 MB\"", status.Memory)
	}
	if status.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", status.Restarts)
	}
	if status.StartTime == nil {
		t.Fatal("StartTime = nil, want parsed timestamp")
	}
	if status.StartTime.Year() != 2026 || status.StartTime.Month() != time.January {
		t.Errorf("StartTime = %v, want 2026-01-05", status.StartTime)
	}
	if status.Uptime == "" {
		t.Error("Uptime empty, want derived value")
	}
}

func TestParseShowMissingAnchorKeys(t *testing.T) {
	_, err := ParseShow("xray", "Description=whatever\nLoadState=loaded\n")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("ParseShow() error = %v, want ErrParse", err)
	}

	// Either anchor key alone is enough
	if _, err := ParseShow("xray", "ActiveState=inactive\n"); err != nil {
		t.Errorf("ParseShow() with only ActiveState errored: %v", err)
	}
	if _, err := ParseShow("xray", "SubState=dead\n"); err != nil {
		t.Errorf("ParseShow() with only SubState errored: %v", err)
	}
}

func TestParseShowInactiveAndDefaults(t *testing.T) {
	status, err := ParseShow("xray", "ActiveState=inactive\nSubState=dead\nMainPID=0\n")
	if err != nil {
		t.Fatalf("ParseShow() error: %v", err)
	}

	if status.Active || status.Healthy {
		t.Error("inactive unit should be neither active nor healthy")
	}
	if status.PID != nil {
		t.Errorf("PID = %v, want nil for MainPID=0", *status.PID)
	}
	if status.Restarts != 0 {
		t.Errorf("Restarts = %d, want default 0", status.Restarts)
	}
	if status.Memory != "0 B" {
		t.Errorf("Memory = %q, want \"0 B\"", status.Memory)
	}
	if status.Loaded {
		t.Error("Loaded = true, want false when LoadState absent")
	}
}

func TestParseShowActiveButNotRunning(t *testing.T) {
	status, err := ParseShow("xray", "ActiveState=active\nSubState=exited\n")
	if err != nil {
		t.Fatalf("ParseShow() error: %v", err)
	}
	if !status.Active {
		t.Error("Active = false, want true")
	}
	if status.Healthy {
		t.Error("Healthy = true, want false for sub-state exited")
	}
}

func TestParseShowBadTimestampOmitted(t *testing.T) {
	status, err := ParseShow("xray", "ActiveState=active\nSubState=running\nExecMainStartTimestamp=not a date\n")
	if err != nil {
		t.Fatalf("ParseShow() error: %v", err)
	}
	if status.StartTime != nil || status.Uptime != "" {
		t.Errorf("unparseable timestamp should be omitted, got start=%v uptime=%q", status.StartTime, status.Uptime)
	}
}

func TestParseShowValueWithEquals(t *testing.T) {
	status, err := ParseShow("xray", "ActiveState=active\nSubState=running\nEnvironment=FOO=bar BAZ=qux\n")
	if err != nil {
		t.Fatalf("ParseShow() error: %v", err)
	}
	if !status.Healthy {
		t.Error("values containing '=' must not break parsing")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{512, "512.0 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{47398912, "45.2 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
		{5 * 1024 * 1024 * 1024 * 1024, "5120.0 GB"}, // GB is the ceiling unit
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{12 * time.Minute, "12m"},
		{65 * time.Minute, "1h 5m"},
		{51 * time.Hour, "2d 3h"},
		{-time.Minute, "0s"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestUptimeDerivedFromNow(t *testing.T) {
	original := nowFunc
	nowFunc = func() time.Time {
		return time.Date(2026, 1, 5, 14, 30, 45, 0, time.UTC)
	}
	t.Cleanup(func() { nowFunc = original })

	status, err := ParseShow("xray", "ActiveState=active\nSubState=running\nExecMainStartTimestamp=Mon 2026-01-05 12:30:45 UTC\n")
	if err != nil {
		t.Fatalf("ParseShow() error: %v", err)
	}
	if status.Uptime != "2h 0m" {
		t.Errorf("Uptime = %q, want \"2h 0m\"", status.Uptime)
	}
}
