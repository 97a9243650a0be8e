package version

import (
	"strings"
	"testing"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.GoVersion == "" {
		t.Error("GoVersion should not be empty")
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q, want os/arch", info.Platform)
	}
}

func TestInfo(t *testing.T) {
	origVersion, origBuildTime, origCommit := Version, BuildTime, GitCommit
	t.Cleanup(func() {
		Version, BuildTime, GitCommit = origVersion, origBuildTime, origCommit
	})

	Version, BuildTime = "v1.2.3", "unknown"
	if got := Info(); got != "v1.2.3 (development build)" {
		t.Errorf("Info() = %q", got)
	}

	BuildTime = "2026-01-05T12:00:00Z"
	GitCommit = "abcdef1234567890"
	got := Info()
	if !strings.Contains(got, "v1.2.3") || !strings.Contains(got, "abcdef12") {
		t.Errorf("Info() = %q, want version and short commit", got)
	}

	BuildTime = "not-a-timestamp"
	if got := Info(); !strings.Contains(got, "not-a-timestamp") {
		t.Errorf("Info() = %q, want raw build time fallback", got)
	}
}
