// Package decode turns compressed packets into renderable frames: PCM in
// the canonical audio output format, pictures in one of the pixel formats
// the video renderer accepts. Each decoder owns its codec context and runs
// a single decode goroutine pulling from a packet queue and pushing into a
// frame queue.
package decode

import (
	"github.com/asticode/go-astiav"
)

// microsecondBase is the rational used to rescale stream timestamps into
// microseconds.
var microsecondBase = astiav.NewRational(1, 1_000_000)

// toMicroseconds rescales a stream timestamp into microseconds. Timestamps
// without a value map to zero.
func toMicroseconds(ts int64, tb astiav.Rational) int64 {
	if ts == astiav.NoPtsValue {
		return 0
	}
	return astiav.RescaleQ(ts, tb, microsecondBase)
}

// audioFrameDuration returns the presentation duration in microseconds of
// nbSamples at sampleRate.
func audioFrameDuration(nbSamples, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return 1_000_000 * int64(nbSamples) / int64(sampleRate)
}

// resampledSampleCount returns the destination sample count when rescaling
// srcSamples from srcRate to dstRate, rounding up.
func resampledSampleCount(srcSamples, srcRate, dstRate int) int {
	if srcRate <= 0 {
		return srcSamples
	}
	return int((int64(srcSamples)*int64(dstRate) + int64(srcRate) - 1) / int64(srcRate))
}

// deriveFrameDuration returns a video frame's duration in microseconds. The
// sample-aspect-ratio ratio wins when set, then the stream frame rate, then
// a 25 fps default.
func deriveFrameDuration(sarNum, sarDen, frNum, frDen int) int64 {
	if sarNum > 0 && sarDen > 0 {
		return 1_000_000 * int64(sarDen) / int64(sarNum)
	}
	if frNum > 0 && frDen > 0 {
		return 1_000_000 * int64(frDen) / int64(frNum)
	}
	return 40_000
}
