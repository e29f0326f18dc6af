package upnp

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatClock renders a duration in seconds as the HH:MM:SS form AVTransport
// actions expect. Negative durations clamp to zero.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	seconds -= hours * 3600
	minutes := seconds / 60
	seconds -= minutes * 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// ParseClock converts an HH:MM:SS clock string back to seconds. Fractional
// seconds, which some renderers report, are truncated.
func ParseClock(clock string) (int, error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("upnp: malformed clock value %q", clock)
	}
	secPart, _, _ := strings.Cut(parts[2], ".")
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("upnp: malformed clock value %q", clock)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("upnp: malformed clock value %q", clock)
	}
	seconds, err := strconv.Atoi(secPart)
	if err != nil {
		return 0, fmt.Errorf("upnp: malformed clock value %q", clock)
	}
	return hours*3600 + minutes*60 + seconds, nil
}

// normalizeSeekTarget accepts either an HH:MM:SS clock string or a bare
// integer number of seconds and returns the clock form.
func normalizeSeekTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if seconds, err := strconv.Atoi(target); err == nil {
		return FormatClock(seconds), nil
	}
	if _, err := ParseClock(target); err != nil {
		return "", err
	}
	return target, nil
}
