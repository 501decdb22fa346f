package demux

import (
	"testing"
	"time"
)

func TestPaceDelay(t *testing.T) {
	t.Parallel()
	cases := []struct {
		rate float64
		want time.Duration
	}{
		{1.0, 10 * time.Millisecond},
		{0.5, 20 * time.Millisecond},
		{1.5, 10 * time.Millisecond * 2 / 3},
		{2.0, 0},
		{4.0, 0},
		{0, 10 * time.Millisecond},
		{-1, 10 * time.Millisecond},
	}
	for _, c := range cases {
		if got := paceDelay(c.rate); got != c.want {
			t.Errorf("paceDelay(%v) = %v, want %v", c.rate, got, c.want)
		}
	}
}

func TestRateBitsRoundTrip(t *testing.T) {
	t.Parallel()
	for _, r := range []float64{0.25, 0.5, 1.0, 1.5, 2.0, 8.0} {
		if got := bitsRate(rateBits(r)); got != r {
			t.Errorf("round trip %v = %v", r, got)
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	cases := map[State]string{
		StateIdle:        "idle",
		StateInitialized: "initialized",
		StateRunning:     "running",
		StateSeeking:     "seeking",
		StateStopped:     "stopped",
		StateError:       "error",
		State(99):        "invalid",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
