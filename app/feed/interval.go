package feed

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	secondsPerDay    = 86400
	secondsPerWeek   = 604800
	secondsPerMonth  = 2592000  // ~30 days
	secondsPerYear   = 31536000 // ~365 days
)

// ParseInterval converts an autoupdate spec (a magnitude followed by "h",
// "d", or "w") into seconds. The second return value is false when the spec
// is empty, has no recognized unit suffix, or has a non-numeric magnitude.
//
// Earlier versions of this product parsed the magnitude leniently, so a
// malformed spec containing a unit letter decayed to 0 seconds and made the
// feed permanently due. That turned configuration typos into tight fetch
// loops; malformed specs are now never auto-due and only refresh manually.
func ParseInterval(spec string) (int64, bool) {
	spec = strings.TrimSpace(spec)
	if len(spec) < 2 {
		return 0, false
	}

	var unit int64
	switch spec[len(spec)-1] {
	case 'h':
		unit = secondsPerHour
	case 'd':
		unit = secondsPerDay
	case 'w':
		unit = secondsPerWeek
	default:
		return 0, false
	}

	magnitude, err := strconv.ParseInt(spec[:len(spec)-1], 10, 64)
	if err != nil || magnitude < 0 {
		return 0, false
	}

	return magnitude * unit, true
}

// FormatSinceRefresh renders the age of the last successful fetch for the
// feed listing. Non-positive ages render as "up to date"; otherwise the
// largest whole unit is used, pluralized.
func FormatSinceRefresh(diffSeconds int64) string {
	if diffSeconds <= 0 {
		return "up to date"
	}

	units := []struct {
		seconds int64
		name    string
	}{
		{secondsPerYear, "year"},
		{secondsPerMonth, "month"},
		{secondsPerWeek, "week"},
		{secondsPerDay, "day"},
		{secondsPerHour, "hour"},
		{secondsPerMinute, "minute"},
		{1, "second"},
	}

	for _, u := range units {
		if diffSeconds < u.seconds {
			continue
		}
		n := diffSeconds / u.seconds
		name := u.name
		if n != 1 {
			name += "s"
		}
		return fmt.Sprintf("last update: %d %s ago", n, name)
	}

	return "up to date"
}
