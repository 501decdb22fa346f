// Package clock tracks playback position for the player. The audio clock is
// authoritative whenever the source has audio; video and wall-clock time are
// fallbacks for silent sources.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock holds the playback clocks in microseconds. All fields are atomics:
// the audio device callback, the video pacing goroutine, and control calls
// read and write them concurrently.
type Clock struct {
	audio     atomic.Int64 // end PTS of the last rendered audio frame
	video     atomic.Int64 // end PTS of the last rendered video frame
	startWall atomic.Int64 // wall-clock µs corresponding to position 0
	rate      atomic.Uint64
}

// New returns a clock positioned at zero with rate 1.0.
func New() *Clock {
	c := &Clock{}
	c.SetRate(1.0)
	return c
}

// NowUS returns the current wall-clock time in microseconds.
func NowUS() int64 { return time.Now().UnixMicro() }

// Reset positions both clocks at pos and anchors the wall-clock start so
// elapsed wall time equals pos. Called at start and after seek.
func (c *Clock) Reset(pos int64) {
	c.audio.Store(pos)
	c.video.Store(pos)
	c.startWall.Store(NowUS() - pos)
}

// SetAudio advances the audio clock. Called by the audio renderer after each
// frame is consumed.
func (c *Clock) SetAudio(pts int64) { c.audio.Store(pts) }

// Audio returns the audio clock.
func (c *Clock) Audio() int64 { return c.audio.Load() }

// SetVideo advances the video clock. Called by the video renderer after each
// frame is presented.
func (c *Clock) SetVideo(pts int64) { c.video.Store(pts) }

// Video returns the video clock.
func (c *Clock) Video() int64 { return c.video.Load() }

// Elapsed returns wall-clock time since the start anchor, in microseconds.
func (c *Clock) Elapsed() int64 { return NowUS() - c.startWall.Load() }

// Position returns the current playback position: the audio clock when the
// media has audio, else the video clock, else zero.
func (c *Clock) Position(hasAudio, hasVideo bool) int64 {
	switch {
	case hasAudio:
		return c.audio.Load()
	case hasVideo:
		return c.video.Load()
	default:
		return 0
	}
}

// SetRate stores the playback rate.
func (c *Clock) SetRate(r float64) {
	c.rate.Store(floatBits(r))
}

// Rate returns the playback rate.
func (c *Clock) Rate() float64 { return bitsFloat(c.rate.Load()) }
