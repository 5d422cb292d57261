package utils

import (
	"strconv"
	"strings"
	"time"
)

// ParseDuration safely parses a duration string like "5m", falling back to def
func ParseDuration(d string, def time.Duration) time.Duration {
	if d == "" {
		return def
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return def
	}
	return duration
}

// ParseFloat parses a numeric cell. Blank cells, "NA"-style markers and
// anything unparseable report ok=false. A lone decimal comma is accepted.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	switch strings.ToLower(s) {
	case "", "na", "nan", "n/a", "null", "..", ":", "-":
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ParseYear reads a year from cells such as "2015", "2015.0" or the SDMX
// school-year form "2015/2016" (the first year wins).
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if len(s) < 4 {
		return 0, false
	}
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	if f, ok := ParseFloat(s); ok && f == float64(int(f)) {
		return int(f), true
	}
	if y, err := strconv.Atoi(s[:4]); err == nil && (len(s) == 4 || !isDigit(s[4])) {
		return y, true
	}
	return 0, false
}

// ParseInt parses an integer cell, tolerating a trailing ".0".
func ParseInt(s string) (int, bool) {
	f, ok := ParseFloat(s)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
