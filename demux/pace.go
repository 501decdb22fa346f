package demux

import (
	"math"
	"time"
)

// basePace is the reader's per-packet sleep at rate 1.0. Pacing is a coarse
// limiter, not a real-time scheduler; decoders and renderers do the actual
// timing.
const basePace = 10 * time.Millisecond

// paceDelay returns the reader sleep for the given playback rate. Rates at
// or above 2.0 disable pacing entirely.
func paceDelay(rate float64) time.Duration {
	if rate >= 2.0 {
		return 0
	}
	if rate <= 0 {
		rate = 1.0
	}
	return time.Duration(float64(basePace) / rate)
}

func rateBits(r float64) uint64 { return math.Float64bits(r) }

func bitsRate(b uint64) float64 { return math.Float64frombits(b) }
