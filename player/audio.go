package player

import (
	"time"

	"github.com/zsiec/refract/media"
)

// playNextAudioFrame submits the next buffered frame to the audio sink.
// When the queue is momentarily empty it schedules a short retry so the
// submission chain survives decoder hiccups; the chain otherwise only
// advances from the sink's consumption callback.
func (p *Player) playNextAudioFrame() bool {
	if !p.hasAudio() {
		return false
	}
	if p.info.HasVideo && !p.hasVideo() {
		// Video without a sink is discarded so its decoder and the demuxer
		// never stall on a full queue.
		p.videoFrames.Clear(nil)
	}

	frame, ok := p.audioFrames.TryPop()
	if !ok {
		if p.playing.Load() {
			time.AfterFunc(pollInterval, func() { p.playNextAudioFrame() })
		}
		return false
	}

	p.cb.OnAudioFrame(frame)
	if !p.audioSink.Play(frame) {
		p.log.Error("submitting audio frame failed", "pts_us", frame.PTS)
		return false
	}
	return true
}

// OnAudioFrameRendered implements render.Notifier. The sink reports each
// consumed frame from its device goroutine; the player advances the audio
// clock, publishes progress, checks completion, and submits the next frame.
func (p *Player) OnAudioFrameRendered(f *media.AudioFrame) {
	if p.released.Load() {
		return
	}

	p.clk.SetAudio(f.EndPTS())
	p.emitProgress()
	p.maybeCompleteAudio(f.EndPTS())
	p.playNextAudioFrame()
}

// OnVideoFrameRendered implements render.Notifier. Advances the video clock
// and, for silent sources, publishes progress.
func (p *Player) OnVideoFrameRendered(f *media.VideoFrame) {
	if p.released.Load() {
		return
	}

	p.clk.SetVideo(f.EndPTS())
	if !p.hasAudio() {
		p.emitProgress()
	}
}

// maybeCompleteAudio transitions to COMPLETED after the last audio frame of
// a finite source has been consumed and no more are buffered. The audio
// clock is the master, so audio drives completion whenever it is present.
func (p *Player) maybeCompleteAudio(endPTS int64) {
	if p.isLive() {
		return
	}
	dur := p.info.DurationUS()
	if dur >= 0 && endPTS >= dur && p.audioFrames.Empty() {
		p.complete()
	}
}

// emitProgress publishes position and duration in seconds. Live sources
// report a zero duration.
func (p *Player) emitProgress() {
	position := float64(p.Position()) / 1e6
	duration := 0.0
	if !p.info.Live() {
		duration = float64(p.info.DurationMs) / 1000.0
	}
	p.cb.OnProgress(position, duration)
}

// OnSeekCompleted implements demux.Events.
func (p *Player) OnSeekCompleted(pos int64) {
	p.log.Info("demuxer seek completed", "pos_us", pos)
}

// OnEndOfFile implements demux.Events. Completion is driven by the
// renderers once the buffered tail has played out; EOF alone only means the
// reader has no more packets.
func (p *Player) OnEndOfFile() {
	p.log.Info("demuxer reached end of stream")
}

// OnDemuxerError implements demux.Events. Open failures inside the reader
// are fatal to the session; read errors are transient and already retried
// by the demuxer.
func (p *Player) OnDemuxerError(err media.Error) {
	p.cb.OnError(err)
	if err.Code == media.ErrDemuxerOpenFailed {
		// Called from the reader goroutine, which Stop joins while holding
		// the state mutex; a contended lock means a transition is already
		// in flight and the error state would be overwritten anyway.
		if p.stateMu.TryLock() {
			p.updateState(StateError)
			p.stateMu.Unlock()
		}
	}
}
