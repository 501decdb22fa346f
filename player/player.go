// Package player orchestrates the playback pipeline: it owns the frame
// queues, drives the demuxer and decoders through a session, paces video
// against the audio-master clock, and services the audio sink's pull
// callback. All control operations are validated against a single state
// machine.
package player

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/refract/clock"
	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/queue"
	"github.com/zsiec/refract/render"
)

const (
	// syncThresholdUS is the tolerated video-vs-clock skew. Frames more
	// than twice this late are dropped instead of rendered.
	syncThresholdUS = 5_000
	// maxSyncWaitUS caps a single catch-up sleep in the video pacing loop.
	maxSyncWaitUS = 100_000

	// prebufferFrames is the audio frame count accumulated before first
	// presentation.
	prebufferFrames = 30
	// prebufferTimeout bounds the wait for the prebuffer to fill.
	prebufferTimeout = time.Second

	pollInterval = 10 * time.Millisecond
)

// Config assembles a Player.
type Config struct {
	// Callback receives state, progress, error, and media-info events.
	// Defaults to NopCallback.
	Callback Callback
	// AudioSink renders PCM. May be nil; audio is then discarded and the
	// clock falls back to video or wall time.
	AudioSink render.AudioSink
	// VideoSink presents pictures. May be nil.
	VideoSink render.VideoSink
	// Loop restarts finite sources on EOF instead of completing.
	Loop bool
	// Open builds sessions. Defaults to the FFmpeg-backed DefaultOpen.
	Open OpenFunc
	Log  *slog.Logger
}

// Player is the pipeline orchestrator.
type Player struct {
	log       *slog.Logger
	cb        Callback
	audioSink render.AudioSink
	videoSink render.VideoSink
	openFn    OpenFunc

	audioFrames *queue.Queue[*media.AudioFrame]
	videoFrames *queue.Queue[*media.VideoFrame]
	clk         *clock.Clock

	// stateMu serializes compound transitions; state itself stays an
	// atomic so readers never block on a transition in progress.
	stateMu sync.Mutex
	state   atomic.Int32

	session  Session
	info     media.Info
	playing  atomic.Bool
	released atomic.Bool
	videoWG  sync.WaitGroup
}

// New creates a player. The frame queues and clock live for the player's
// whole lifetime; sessions come and go with open/close.
func New(cfg Config) *Player {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	cb := cfg.Callback
	if cb == nil {
		cb = NopCallback{}
	}
	p := &Player{
		log:         log.With("component", "player"),
		cb:          cb,
		audioSink:   cfg.AudioSink,
		videoSink:   cfg.VideoSink,
		audioFrames: queue.New[*media.AudioFrame](media.FrameQueueSize),
		videoFrames: queue.New[*media.VideoFrame](media.FrameQueueSize),
		clk:         clock.New(),
	}
	p.openFn = cfg.Open
	if p.openFn == nil {
		p.openFn = DefaultOpen(cfg.Loop, log)
	}
	return p
}

// State returns the current player state.
func (p *Player) State() State { return State(p.state.Load()) }

// Info returns the media snapshot of the open session.
func (p *Player) Info() media.Info { return p.info }

// Duration returns the total media duration in microseconds, negative for
// live sources.
func (p *Player) Duration() int64 { return p.info.DurationUS() }

// Position returns the current playback position in microseconds.
func (p *Player) Position() int64 {
	return p.clk.Position(p.hasAudio(), p.hasVideo())
}

// Open probes url, publishes media info, and prepares decoders and sinks.
// Valid from IDLE and STOPPED.
func (p *Player) Open(url string) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if s := p.State(); s != StateIdle && s != StateStopped {
		return p.reject("open", s)
	}
	p.updateState(StateInitialized)
	p.released.Store(false)

	session, err := p.openFn(url, p.audioFrames, p.videoFrames, p)
	if err != nil {
		me := asMediaError(err)
		p.cb.OnError(me)
		p.updateState(StateError)
		return me
	}
	p.session = session
	p.info = session.Info()
	p.cb.OnMediaInfo(p.info)

	if p.hasAudio() {
		if err := p.audioSink.Init(media.AudioTargetSampleRate, media.AudioTargetChannels,
			media.AudioTargetBitDepth, p); err != nil {
			p.failOpen("initializing audio sink", err)
			return err
		}
	}
	if p.hasVideo() {
		if err := p.videoSink.Init(p.info.VideoWidth, p.info.VideoHeight,
			p.session.VideoFormat(), p); err != nil {
			p.failOpen("initializing video sink", err)
			return err
		}
	}

	p.updateState(StatePrepared)
	p.log.Info("prepared", "url", url, "type", p.info.Type.String(),
		"duration_ms", p.info.DurationMs)
	return nil
}

// failOpen tears down a half-opened session. Caller holds stateMu.
func (p *Player) failOpen(what string, err error) {
	p.log.Error(what, "error", err)
	p.cb.OnError(asMediaError(err))
	p.closeSessionLocked()
	p.updateState(StateError)
}

// Start begins playback. Valid from PREPARED, PAUSED (acts as resume), and
// COMPLETED (restarts from the beginning).
func (p *Player) Start() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	switch s := p.State(); s {
	case StatePrepared:
		return p.startLocked(0)
	case StateCompleted:
		// The reader is parked at EOF; rewind before restarting.
		p.flushLocked()
		p.session.Seek(0)
		return p.startLocked(0)
	case StatePaused:
		p.resumeLocked()
		return nil
	default:
		return p.reject("start", s)
	}
}

// startLocked runs the start choreography from position pos. Caller holds
// stateMu.
func (p *Player) startLocked(pos int64) error {
	p.session.Start()
	if d := p.session.AudioDecoder(); d != nil {
		d.Start()
	}
	if d := p.session.VideoDecoder(); d != nil {
		d.Start()
	}

	p.clk.Reset(pos)
	p.playing.Store(true)

	if p.hasVideo() {
		p.videoWG.Add(1)
		go p.videoLoop()
	}

	if p.hasAudio() {
		if err := p.prebuffer(); err != nil {
			p.playing.Store(false)
			p.videoWG.Wait()
			if d := p.session.AudioDecoder(); d != nil {
				d.Stop()
			}
			if d := p.session.VideoDecoder(); d != nil {
				d.Stop()
			}
			p.session.Stop()
			p.flushLocked()
			return err
		}
		p.playNextAudioFrame()
	}

	p.updateState(StateStarted)
	p.log.Info("playback started")
	return nil
}

// prebuffer waits for the audio frame queue to fill before the first
// submission. An empty queue after the timeout fails the start; state stays
// PREPARED.
func (p *Player) prebuffer() error {
	deadline := time.Now().Add(prebufferTimeout)
	for p.audioFrames.Len() < prebufferFrames && p.playing.Load() {
		if time.Now().After(deadline) {
			p.log.Warn("audio prebuffer timed out",
				"buffered", p.audioFrames.Len(), "want", prebufferFrames)
			break
		}
		time.Sleep(pollInterval)
	}
	if p.audioFrames.Empty() {
		return fmt.Errorf("no audio frames buffered within %s", prebufferTimeout)
	}
	return nil
}

// Pause suspends playback. Valid from STARTED.
func (p *Player) Pause() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if s := p.State(); s != StateStarted {
		return p.reject("pause", s)
	}
	p.pauseLocked()
	return nil
}

func (p *Player) pauseLocked() {
	if p.hasAudio() {
		p.audioSink.Pause()
	}
	p.playing.Store(false)
	p.videoWG.Wait()
	p.updateState(StatePaused)
	p.log.Info("playback paused")
}

// Resume continues playback after Pause. Valid from PAUSED.
func (p *Player) Resume() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if s := p.State(); s != StatePaused {
		return p.reject("resume", s)
	}
	p.resumeLocked()
	return nil
}

func (p *Player) resumeLocked() {
	if p.hasAudio() {
		p.audioSink.Resume()
	}
	p.playing.Store(true)
	if p.hasVideo() {
		p.videoWG.Add(1)
		go p.videoLoop()
	}
	if p.hasAudio() {
		// Re-prime the submission chain in case it starved while paused.
		p.playNextAudioFrame()
	}
	p.updateState(StateStarted)
	p.log.Info("playback resumed")
}

// Stop halts the whole pipeline and joins every goroutine. Valid from any
// state; stopping an idle or stopped player is a no-op.
func (p *Player) Stop() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if s := p.State(); s == StateIdle || s == StateStopped {
		return
	}

	p.playing.Store(false)
	p.videoWG.Wait()

	if p.session != nil {
		if d := p.session.AudioDecoder(); d != nil {
			d.Stop()
		}
		if d := p.session.VideoDecoder(); d != nil {
			d.Stop()
		}
		p.session.Stop()
	}
	if p.hasAudio() {
		p.audioSink.Stop()
	}
	p.flushLocked()

	p.updateState(StateStopped)
	p.log.Info("playback stopped")
}

// Close stops playback, releases the session, decoders, and sinks, and
// returns the player to IDLE for reuse.
func (p *Player) Close() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.stopLocked()
	p.closeSessionLocked()

	if p.audioSink != nil {
		p.audioSink.Release()
	}
	if p.videoSink != nil {
		p.videoSink.Release()
	}

	p.released.Store(true)
	p.info = media.Info{}
	p.updateState(StateIdle)
	p.log.Info("player closed")
	return nil
}

func (p *Player) closeSessionLocked() {
	if p.session == nil {
		return
	}
	if d := p.session.AudioDecoder(); d != nil {
		d.Close()
	}
	if d := p.session.VideoDecoder(); d != nil {
		d.Close()
	}
	p.session.Close()
	p.session = nil
	p.flushLocked()
}

// Seek jumps to pos microseconds. Valid from STARTED, PAUSED, and
// COMPLETED; the state is unchanged afterwards.
func (p *Player) Seek(pos int64) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	s := p.State()
	if s != StateStarted && s != StatePaused && s != StateCompleted {
		return p.reject("seek", s)
	}

	wasPlaying := s == StateStarted
	if wasPlaying {
		p.pauseLocked()
	}

	p.flushLocked()
	p.session.Seek(pos)
	p.clk.Reset(pos)

	if wasPlaying {
		p.resumeLocked()
	}
	p.log.Info("seek", "pos_us", pos)
	return nil
}

// flushLocked empties all four pipeline queues, releasing every held
// buffer. Caller holds stateMu.
func (p *Player) flushLocked() {
	if p.session != nil {
		p.session.Flush()
	}
	p.audioFrames.Clear(nil)
	p.videoFrames.Clear(nil)
}

// SetVolume sets the audio gain in [0, 1].
func (p *Player) SetVolume(v float64) {
	if p.audioSink != nil {
		p.audioSink.SetVolume(v)
	}
}

// Volume returns the audio gain.
func (p *Player) Volume() float64 {
	if p.audioSink != nil {
		return p.audioSink.Volume()
	}
	return 0
}

// SetMute silences or restores audio output.
func (p *Player) SetMute(mute bool) {
	if p.audioSink != nil {
		p.audioSink.SetMute(mute)
	}
}

// Muted reports whether audio output is muted.
func (p *Player) Muted() bool {
	if p.audioSink != nil {
		return p.audioSink.Muted()
	}
	return false
}

// SetRate adjusts demuxer pacing. Renderers are not retimed; rates other
// than 1.0 are best-effort.
func (p *Player) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	p.clk.SetRate(rate)
	if p.session != nil {
		p.session.SetRate(rate)
	}
}

// Rate returns the configured playback rate.
func (p *Player) Rate() float64 { return p.clk.Rate() }

// hasAudio reports whether the session has audio that is actually being
// rendered; without a sink the clock falls back to video or wall time.
func (p *Player) hasAudio() bool { return p.info.HasAudio && p.audioSink != nil }

// hasVideo reports whether the session has video and a surface to put it on.
func (p *Player) hasVideo() bool { return p.info.HasVideo && p.videoSink != nil }

func (p *Player) isLive() bool { return p.session != nil && p.session.IsLive() }

func (p *Player) reject(op string, s State) error {
	err := fmt.Errorf("cannot %s in state %s", op, s)
	p.log.Error("invalid transition", "op", op, "state", s.String())
	return err
}

// updateState swaps the state atomically and publishes the change.
func (p *Player) updateState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.cb.OnStateChanged(s)
	}
	p.log.Debug("state", "from", old.String(), "to", s.String())
}

// complete transitions to COMPLETED once, from STARTED, and emits the final
// progress event. It is called from pipeline goroutines, so it must not
// block on a control operation already holding the state mutex (stop and
// pause join those same goroutines while holding it): if the lock is
// contended, a transition is in flight and completion is moot.
func (p *Player) complete() {
	if !p.stateMu.TryLock() {
		return
	}
	defer p.stateMu.Unlock()
	if p.State() != StateStarted {
		return
	}
	p.playing.Store(false)
	p.updateState(StateCompleted)
	p.cb.OnProgress(1.0, 1.0)
	p.log.Info("playback completed")
}

func asMediaError(err error) media.Error {
	if me, ok := err.(media.Error); ok {
		return me
	}
	return media.NewError(media.ErrUnknown, "%v", err)
}
