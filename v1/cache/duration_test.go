package cache

import (
	"math"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"5 minutes":            5 * time.Minute,
		"10 minutes":           10 * time.Minute,
		"10000 ms":             10 * time.Second,
		"5ms":                  5 * time.Millisecond,
		"5 ms":                 5 * time.Millisecond,
		"250":                  250 * time.Millisecond,
		"1 second":             time.Second,
		"2 seconds":            2 * time.Second,
		"3s":                   3 * time.Second,
		"1m":                   time.Minute,
		"2 HOURS":              2 * time.Hour,
		"1h":                   time.Hour,
		"1.5h":                 90 * time.Minute,
		".5s":                  500 * time.Millisecond,
		"1 day":                24 * time.Hour,
		"2d":                   48 * time.Hour,
		"1 year":               31557600000 * time.Millisecond,
		"1y":                   31557600000 * time.Millisecond,
		"bogus":                0,
		"":                     0,
		"0":                    0,
		"5 weeks":              0,
		"-5 minutes":           0,
		"inf":                  0,
		"0x":                   0,
		"0x1p4":                0,
		"1000 years":           math.MaxInt64,
		"200000 days":          math.MaxInt64,
		"10000000000000":       math.MaxInt64,
		"0x10":                 16 * time.Millisecond,
		"0o10":                 8 * time.Millisecond,
		"0B11":                 3 * time.Millisecond,
		"Infinity":             math.MaxInt64,
		"-Infinity":            math.MinInt64,
		"1e400":                math.MaxInt64,
		"0xffffffffffffffffff": math.MaxInt64,
	}
	for in, want := range cases {
		if got := ParseDuration(in); got != want {
			t.Errorf("ParseDuration(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDurationNumericFastPath(t *testing.T) {
	if got := ParseDuration("-250"); got != -250*time.Millisecond {
		t.Fatalf("expected negative numeric input to pass through, got %v", got)
	}
	if got := ParseDuration("1e3"); got != time.Second {
		t.Fatalf("expected exponent notation to be numeric, got %v", got)
	}
}

func TestMilliseconds(t *testing.T) {
	cases := map[float64]time.Duration{
		1.5:          1500 * time.Microsecond,
		-2:           -2 * time.Millisecond,
		1e13:         math.MaxInt64,
		-1e13:        math.MinInt64,
		math.Inf(1):  math.MaxInt64,
		math.Inf(-1): math.MinInt64,
		math.NaN():   0,
	}
	for in, want := range cases {
		if got := Milliseconds(in); got != want {
			t.Errorf("Milliseconds(%v) = %v, want %v", in, got, want)
		}
	}
}
