package logging

import (
	"regexp"
	"testing"
	"time"
)

var timestampRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}[+-]\d{2}:\d{2}$`)

func TestTimestampFormat(t *testing.T) {
	t.Parallel()
	got := Timestamp(time.Now())
	if !timestampRE.MatchString(got) {
		t.Errorf("timestamp %q does not match ISO-8601 with millisecond precision and zone offset", got)
	}
}

func TestTimestampKnownValue(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("CST", 8*3600)
	ts := time.Date(2026, 8, 5, 13, 2, 3, 45_000_000, loc)
	if got, want := Timestamp(ts), "2026-08-05T13:02:03.045+08:00"; got != want {
		t.Errorf("Timestamp = %q, want %q", got, want)
	}
}
