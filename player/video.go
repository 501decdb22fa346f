package player

import "time"

// videoLoop is the video pacing goroutine: pop a frame, sleep until its
// presentation time under the governing clock, render or drop, and detect
// completion for silent sources.
func (p *Player) videoLoop() {
	defer p.videoWG.Done()
	p.log.Debug("video loop started")

	for p.playing.Load() {
		if p.info.HasAudio && !p.hasAudio() {
			// Audio without a sink is discarded so its decoder and the
			// demuxer never stall on a full queue.
			p.audioFrames.Clear(nil)
		}

		frame, ok := p.videoFrames.TryPop()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}

		delay := p.syncDelay(frame.PTS)
		if delay > 0 {
			time.Sleep(time.Duration(delay) * time.Microsecond)
		} else if delay < -2*syncThresholdUS {
			// Too far behind the clock; drop instead of rendering late.
			p.log.Debug("dropping late video frame", "pts_us", frame.PTS, "delay_us", delay)
			continue
		}

		p.cb.OnVideoFrame(frame)
		if !p.videoSink.Render(frame) {
			p.log.Error("rendering video frame failed", "pts_us", frame.PTS)
		}

		p.maybeCompleteVideo(frame.PTS)
	}

	p.log.Debug("video loop exited")
}

// syncDelay returns how long the pacing loop should wait before presenting
// a frame with the given PTS, in microseconds. Negative values mean the
// frame is late.
func (p *Player) syncDelay(pts int64) int64 {
	if !p.hasAudio() {
		// No audio master; pace against wall-clock elapsed time.
		return pts - p.clk.Elapsed()
	}

	diff := pts - p.clk.Audio()
	if diff > maxSyncWaitUS {
		// A large positive skew is a clock anomaly; cap the catch-up wait.
		return maxSyncWaitUS
	}
	return diff
}

// maybeCompleteVideo transitions to COMPLETED after the last frame of a
// finite, silent source has been presented. Sources with audio complete
// through the audio consumption path instead.
func (p *Player) maybeCompleteVideo(pts int64) {
	if p.hasAudio() || p.isLive() {
		return
	}
	dur := p.info.DurationUS()
	if dur >= 0 && pts >= dur && p.videoFrames.Empty() {
		p.complete()
	}
}
