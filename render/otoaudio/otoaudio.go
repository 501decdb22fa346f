// Package otoaudio implements the render.AudioSink contract on top of the
// oto audio library. Oto pulls PCM through an io.Reader from its own device
// goroutine, which maps directly onto the player's pull-model contract: the
// sink feeds the device one frame at a time and reports each fully consumed
// frame back through the notifier.
package otoaudio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	oto "github.com/ebitengine/oto/v3"

	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/render"
)

// Renderer is an oto-backed audio sink. The zero value is unusable; create
// with New and call Init before Play.
type Renderer struct {
	log *slog.Logger

	mu       sync.Mutex
	player   *oto.Player
	feed     *frameFeed
	notifier render.Notifier
	started  bool
	volume   float64
	muted    bool
	done     chan struct{}
}

// New returns an uninitialized renderer. If log is nil, slog.Default() is
// used.
func New(log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{
		log:    log.With("component", "audio-sink"),
		volume: 1.0,
	}
}

// Init opens the audio device for the given PCM format. Oto allows a single
// context per process, so Init succeeds at most once per process; any later
// call, with any format, returns the context-creation error.
func (r *Renderer) Init(sampleRate, channels, bitsPerSample int, n render.Notifier) error {
	if bitsPerSample != 16 {
		return fmt.Errorf("unsupported bit depth %d, want 16", bitsPerSample)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("opening audio context: %w", err)
	}
	<-ready

	r.mu.Lock()
	defer r.mu.Unlock()
	r.feed = newFrameFeed()
	r.player = ctx.NewPlayer(r.feed)
	r.notifier = n
	r.done = make(chan struct{})

	// Consumption events are delivered from a dedicated goroutine so the
	// device read path never blocks on the player's callback work.
	go r.notifyLoop()

	r.log.Info("audio device ready", "sample_rate", sampleRate, "channels", channels)
	return nil
}

func (r *Renderer) notifyLoop() {
	for {
		select {
		case f := <-r.feed.consumed:
			if n := r.notifier; n != nil {
				n.OnAudioFrameRendered(f)
			}
		case <-r.done:
			return
		}
	}
}

// Play enqueues one frame for the device. It returns false when the device
// is not initialized or its one-frame slot is still occupied.
func (r *Renderer) Play(f *media.AudioFrame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return false
	}
	if !r.feed.submit(f) {
		return false
	}
	if !r.started {
		r.player.Play()
		r.started = true
	}
	return true
}

// Pause suspends device pulls.
func (r *Renderer) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player != nil && r.started {
		r.player.Pause()
	}
}

// Resume restarts device pulls after Pause.
func (r *Renderer) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player != nil && r.started {
		r.player.Play()
	}
}

// Stop suspends the device and discards any frame awaiting consumption.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return
	}
	if r.started {
		r.player.Pause()
		r.started = false
	}
	r.feed.reset()
}

// Release closes the device. The renderer cannot be reused afterwards.
func (r *Renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player == nil {
		return
	}
	close(r.done)
	r.feed.closed.Store(true)
	r.player.Close()
	r.player = nil
	r.notifier = nil
	r.log.Info("audio device released")
}

// SetVolume sets the output gain in [0, 1].
func (r *Renderer) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = v
	if r.player != nil && !r.muted {
		r.player.SetVolume(v)
	}
}

// Volume returns the configured gain.
func (r *Renderer) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// SetMute silences the output without losing the configured gain.
func (r *Renderer) SetMute(mute bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = mute
	if r.player == nil {
		return
	}
	if mute {
		r.player.SetVolume(0)
	} else {
		r.player.SetVolume(r.volume)
	}
}

// Muted reports whether the output is muted.
func (r *Renderer) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

// frameFeed adapts queued AudioFrames into the io.Reader oto pulls from. It
// holds the frame being consumed plus a one-frame pending slot; when the
// device starves it emits silence so the stream never underruns with noise.
type frameFeed struct {
	mu      sync.Mutex
	current *media.AudioFrame
	offset  int
	pending *media.AudioFrame

	closed   atomic.Bool
	consumed chan *media.AudioFrame
}

func newFrameFeed() *frameFeed {
	return &frameFeed{
		consumed: make(chan *media.AudioFrame, 8),
	}
}

// submit stores f in the pending slot. It fails when the slot is occupied.
func (ff *frameFeed) submit(f *media.AudioFrame) bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.pending != nil {
		return false
	}
	ff.pending = f
	return true
}

// reset discards the current and pending frames without notification.
func (ff *frameFeed) reset() {
	ff.mu.Lock()
	ff.current = nil
	ff.offset = 0
	ff.pending = nil
	ff.mu.Unlock()
}

// Read is the device pull callback. It streams the current frame's PCM,
// promotes the pending frame on exhaustion, and pads with silence when no
// data is queued.
func (ff *frameFeed) Read(p []byte) (int, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	n := 0
	for n < len(p) {
		if ff.current == nil {
			ff.current = ff.pending
			ff.pending = nil
			ff.offset = 0
		}
		if ff.current == nil {
			// Starved: pad with silence so the device keeps pulling.
			for i := n; i < len(p); i++ {
				p[i] = 0
			}
			return len(p), nil
		}

		copied := copy(p[n:], ff.current.Data[ff.offset:])
		n += copied
		ff.offset += copied

		if ff.offset >= len(ff.current.Data) {
			ff.notifyConsumed(ff.current)
			ff.current = nil
			ff.offset = 0
		}
	}
	return n, nil
}

func (ff *frameFeed) notifyConsumed(f *media.AudioFrame) {
	if ff.closed.Load() {
		return
	}
	select {
	case ff.consumed <- f:
	default:
		// Notification backlog; drop rather than stall the device.
	}
}
