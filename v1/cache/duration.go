package cache

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`(?i)^((?:\d+)?\.?\d+) *(ms|seconds?|s|minutes?|m|hours?|h|days?|d|years?|y)?$`)

// Unit sizes in milliseconds.
const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
	msPerYear   = 365.25 * msPerDay
)

// ParseDuration converts a human readable duration such as "5 minutes",
// "10s" or "1.5 hours" into a time.Duration.
//
// A string holding a plain non-zero number is taken as milliseconds. Besides
// decimals this covers exponent notation ("1e3"), 0x, 0o and 0b integers and
// "Infinity", which saturates. The unit defaults to milliseconds when absent
// and is matched case-insensitively. Input that cannot be parsed yields 0.
func ParseDuration(s string) time.Duration {
	if n, ok := numeric(strings.TrimSpace(s)); ok && n != 0 {
		return Milliseconds(n)
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	switch strings.ToLower(m[2]) {
	case "years", "year", "y":
		n *= msPerYear
	case "days", "day", "d":
		n *= msPerDay
	case "hours", "hour", "h":
		n *= msPerHour
	case "minutes", "minute", "m":
		n *= msPerMinute
	case "seconds", "second", "s":
		n *= msPerSecond
	}
	return Milliseconds(n)
}

// numeric parses s as a plain number: a decimal, a 0x, 0o or 0b integer, or
// a signed "Infinity".
func numeric(s string) (float64, bool) {
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if errors.Is(err, strconv.ErrRange) {
				return math.Inf(1), true
			}
			return float64(n), err == nil
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if errors.Is(err, strconv.ErrRange) && math.IsInf(n, 0) {
		return n, true
	}
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Milliseconds converts a possibly fractional number of milliseconds into a
// time.Duration, saturating at the bounds of time.Duration.
func Milliseconds(ms float64) time.Duration {
	ns := ms * float64(time.Millisecond)
	switch {
	case math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}
