package player

import (
	"sync"
	"sync/atomic"

	"github.com/zsiec/refract/demux"
	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/queue"
	"github.com/zsiec/refract/render"
)

// stubDecoder counts lifecycle calls.
type stubDecoder struct {
	started atomic.Int32
	stopped atomic.Int32
	closed  atomic.Int32
}

func (d *stubDecoder) Start() { d.started.Add(1) }
func (d *stubDecoder) Stop() { d.stopped.Add(1) }
func (d *stubDecoder) Close() { d.closed.Add(1) }

// stubSession is a Session whose demuxer does nothing but record calls.
type stubSession struct {
	info        media.Info
	live        bool
	audio       *stubDecoder
	video       *stubDecoder
	videoFormat media.PixelFormat

	started atomic.Int32
	stopped atomic.Int32
	flushes atomic.Int32
	closed  atomic.Int32

	mu    sync.Mutex
	seeks []int64
	rates []float64
}

func newStubSession(info media.Info) *stubSession {
	s := &stubSession{info: info, live: info.Live()}
	if info.HasAudio {
		s.audio = &stubDecoder{}
	}
	if info.HasVideo {
		s.video = &stubDecoder{}
	}
	return s
}

func (s *stubSession) Start() { s.started.Add(1) }
func (s *stubSession) Stop() { s.stopped.Add(1) }
func (s *stubSession) Seek(pos int64) {
	s.mu.Lock()
	s.seeks = append(s.seeks, pos)
	s.mu.Unlock()
}
func (s *stubSession) SetRate(r float64) {
	s.mu.Lock()
	s.rates = append(s.rates, r)
	s.mu.Unlock()
}
func (s *stubSession) Flush() { s.flushes.Add(1) }
func (s *stubSession) IsLive() bool { return s.live }
func (s *stubSession) Info() media.Info { return s.info }
func (s *stubSession) Close() { s.closed.Add(1) }

func (s *stubSession) AudioDecoder() Decoder {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

func (s *stubSession) VideoDecoder() Decoder {
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *stubSession) VideoFormat() media.PixelFormat { return s.videoFormat }

func (s *stubSession) seekTargets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seeks...)
}

func (s *stubSession) rateValues() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.rates...)
}

// stubOpen wires a stub session into the player and captures the frame
// queues so tests can feed decoded frames directly.
type stubOpen struct {
	session *stubSession
	openErr error

	mu          sync.Mutex
	audioFrames *queue.Queue[*media.AudioFrame]
	videoFrames *queue.Queue[*media.VideoFrame]
	events      demux.Events
	opens       int
}

func (o *stubOpen) fn(url string,
	af *queue.Queue[*media.AudioFrame],
	vf *queue.Queue[*media.VideoFrame],
	events demux.Events) (Session, error) {

	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.openErr != nil {
		return nil, o.openErr
	}
	o.audioFrames = af
	o.videoFrames = vf
	o.events = events
	return o.session, nil
}

func (o *stubOpen) feedAudio(frames ...*media.AudioFrame) {
	for _, f := range frames {
		o.audioFrames.Push(f)
	}
}

func (o *stubOpen) feedVideo(frames ...*media.VideoFrame) {
	for _, f := range frames {
		o.videoFrames.Push(f)
	}
}

// fakeAudioSink records sink interactions. Consumption is driven manually
// with consume, mimicking the device pull callback.
type fakeAudioSink struct {
	mu       sync.Mutex
	notifier render.Notifier
	inited   bool
	rate     int
	channels int
	bits     int
	played   []*media.AudioFrame
	next     int // index of the next unconsumed frame
	paused   int
	resumed  int
	stops    int
	releases int
	volume   float64
	muted    bool
}

func newFakeAudioSink() *fakeAudioSink { return &fakeAudioSink{volume: 1.0} }

func (s *fakeAudioSink) Init(rate, channels, bits int, n render.Notifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = true
	s.rate, s.channels, s.bits = rate, channels, bits
	s.notifier = n
	return nil
}

func (s *fakeAudioSink) Play(f *media.AudioFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, f)
	return true
}

func (s *fakeAudioSink) Pause() { s.mu.Lock(); s.paused++; s.mu.Unlock() }
func (s *fakeAudioSink) Resume() { s.mu.Lock(); s.resumed++; s.mu.Unlock() }
func (s *fakeAudioSink) Stop() { s.mu.Lock(); s.stops++; s.mu.Unlock() }
func (s *fakeAudioSink) Release() { s.mu.Lock(); s.releases++; s.mu.Unlock() }

func (s *fakeAudioSink) SetVolume(v float64) { s.mu.Lock(); s.volume = v; s.mu.Unlock() }
func (s *fakeAudioSink) Volume() float64 { s.mu.Lock(); defer s.mu.Unlock(); return s.volume }
func (s *fakeAudioSink) SetMute(m bool) { s.mu.Lock(); s.muted = m; s.mu.Unlock() }
func (s *fakeAudioSink) Muted() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.muted }

// consume reports the next submitted frame as rendered, like the device
// callback would.
func (s *fakeAudioSink) consume() bool {
	s.mu.Lock()
	if s.next >= len(s.played) {
		s.mu.Unlock()
		return false
	}
	f := s.played[s.next]
	s.next++
	n := s.notifier
	s.mu.Unlock()

	if n != nil {
		n.OnAudioFrameRendered(f)
	}
	return true
}

func (s *fakeAudioSink) playedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

// fakeVideoSink records presented frames and fires the notifier like a real
// surface.
type fakeVideoSink struct {
	mu       sync.Mutex
	notifier render.Notifier
	inited   bool
	width    int
	height   int
	format   media.PixelFormat
	rendered []*media.VideoFrame
	releases int
}

func (s *fakeVideoSink) Init(w, h int, format media.PixelFormat, n render.Notifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = true
	s.width, s.height, s.format = w, h, format
	s.notifier = n
	return nil
}

func (s *fakeVideoSink) Render(f *media.VideoFrame) bool {
	s.mu.Lock()
	s.rendered = append(s.rendered, f)
	n := s.notifier
	s.mu.Unlock()
	if n != nil {
		n.OnVideoFrameRendered(f)
	}
	return true
}

func (s *fakeVideoSink) Release() { s.mu.Lock(); s.releases++; s.mu.Unlock() }

func (s *fakeVideoSink) renderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rendered)
}

// recordingCallback captures every client event.
type recordingCallback struct {
	mu         sync.Mutex
	states     []State
	progresses [][2]float64
	errs       []media.Error
	infos      []media.Info
}

func (c *recordingCallback) OnStateChanged(s State) {
	c.mu.Lock()
	c.states = append(c.states, s)
	c.mu.Unlock()
}

func (c *recordingCallback) OnProgress(pos, dur float64) {
	c.mu.Lock()
	c.progresses = append(c.progresses, [2]float64{pos, dur})
	c.mu.Unlock()
}

func (c *recordingCallback) OnError(err media.Error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *recordingCallback) OnMediaInfo(info media.Info) {
	c.mu.Lock()
	c.infos = append(c.infos, info)
	c.mu.Unlock()
}

func (c *recordingCallback) OnAudioFrame(*media.AudioFrame) {}
func (c *recordingCallback) OnVideoFrame(*media.VideoFrame) {}

func (c *recordingCallback) lastState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.states) == 0 {
		return StateIdle
	}
	return c.states[len(c.states)-1]
}

func (c *recordingCallback) fullProgressCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, pr := range c.progresses {
		if pr[0] == 1.0 && pr[1] == 1.0 {
			n++
		}
	}
	return n
}

// Common media snapshots.
func avInfo() media.Info {
	return media.Info{
		Type: media.TypeAudioVideo, DurationMs: 10_000,
		HasAudio: true, HasVideo: true,
		VideoWidth: 1280, VideoHeight: 720,
		AudioChannels: 2, AudioSampleRate: 44100,
	}
}

func audioInfo() media.Info {
	return media.Info{
		Type: media.TypeAudio, DurationMs: 10_000,
		HasAudio: true, AudioChannels: 2, AudioSampleRate: 48000,
	}
}

func videoInfo(durationMs int64) media.Info {
	return media.Info{
		Type: media.TypeVideo, DurationMs: durationMs,
		HasVideo: true, VideoWidth: 640, VideoHeight: 360,
	}
}

func audioFrame(pts, duration int64) *media.AudioFrame {
	return &media.AudioFrame{
		Data: make([]byte, 16), Samples: 4, Channels: 2,
		SampleRate: 48000, BitDepth: 16, PTS: pts, Duration: duration,
	}
}

func videoFrame(pts, duration int64) *media.VideoFrame {
	return &media.VideoFrame{
		Width: 640, Height: 360, PTS: pts, Duration: duration,
		Format: media.PixelFormatYUV420P,
	}
}
