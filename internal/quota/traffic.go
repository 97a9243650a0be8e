package quota

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// UnlimitedDisplay is how an absent ceiling renders
const UnlimitedDisplay = "unlimited"

// Binary (1024-step) traffic units, smallest to largest
var unitOrder = []string{"B", "KB", "MB", "GB", "TB"}

var unitBytes = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

var trafficPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(B|KB|MB|GB|TB)?$`)

// FormattedTraffic is a byte count rendered for display
type FormattedTraffic struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Display string  `json:"display"`
}

// FormatTraffic renders a byte count with binary unit steps and two
// decimals. Negative input reads as an unlimited quota.
func FormatTraffic(bytes int64) FormattedTraffic {
	if bytes < 0 {
		return FormattedTraffic{Value: 0, Unit: "B", Display: UnlimitedDisplay}
	}
	if bytes == 0 {
		return FormattedTraffic{Value: 0, Unit: "B", Display: "0 B"}
	}

	selected := "B"
	for _, unit := range unitOrder {
		if bytes >= unitBytes[unit] {
			selected = unit
		} else {
			break
		}
	}

	value := float64(bytes) / float64(unitBytes[selected])
	return FormattedTraffic{
		Value:   value,
		Unit:    selected,
		Display: fmt.Sprintf("%.2f %s", value, selected),
	}
}

// ParseTraffic parses human input like "10GB", "500 MB" or "unlimited"
// into a byte count. Unlimited parses to -1.
func ParseTraffic(input string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(input))

	if trimmed == strings.ToUpper(UnlimitedDisplay) || trimmed == "-1" {
		return -1, nil
	}

	match := trafficPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return 0, fmt.Errorf("invalid traffic value %q", input)
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid traffic value %q", input)
	}

	unit := match[2]
	if unit == "" {
		unit = "B"
	}

	return int64(math.Floor(value * float64(unitBytes[unit]))), nil
}

// UsagePercent computes used/quota as a percentage rounded to two
// decimals and clamped to [0,100]. Unlimited quotas read as 0.
func UsagePercent(used, quota int64) float64 {
	if quota <= 0 {
		return 0
	}
	percent := float64(used) / float64(quota) * 100
	return math.Min(100, math.Round(percent*100)/100)
}

// AlertLevelFor classifies a usage percentage. Because UsagePercent
// clamps at 100, any consumption at or past the ceiling reads as
// exactly 100 and lands in the exceeded bucket.
func AlertLevelFor(percent float64) AlertLevel {
	switch {
	case percent >= 100:
		return AlertExceeded
	case percent >= 80:
		return AlertWarning
	default:
		return AlertNormal
	}
}

// FormatRemaining renders the quota headroom left
func FormatRemaining(used, quota int64) string {
	if quota < 0 {
		return UnlimitedDisplay
	}
	remaining := quota - used
	if remaining < 0 {
		remaining = 0
	}
	return FormatTraffic(remaining).Display
}

// FormatUsageSummary renders "used / quota (percent%)" for display
func FormatUsageSummary(used, quota int64) string {
	usedStr := FormatTraffic(used).Display
	if quota < 0 {
		return fmt.Sprintf("%s / %s", usedStr, UnlimitedDisplay)
	}
	return fmt.Sprintf("%s / %s (%.2f%%)", usedStr, FormatTraffic(quota).Display, UsagePercent(used, quota))
}
