// Package demux opens a container source, selects the first audio and first
// video stream, and feeds compressed packets into the pipeline's packet
// queues from a dedicated reader goroutine.
package demux

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/queue"
)

// microsecondBase is the rational used to rescale stream timestamps into
// microseconds.
var microsecondBase = astiav.NewRational(1, 1_000_000)

// State tracks the demuxer lifecycle.
type State int32

const (
	StateIdle State = iota
	StateInitialized
	StateRunning
	StateSeeking
	StateStopped
	StateError
)

// String returns a short name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateSeeking:
		return "seeking"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}

// Events receives demuxer notifications. All methods are invoked from the
// reader goroutine and must not block.
type Events interface {
	OnSeekCompleted(pos int64)
	OnEndOfFile()
	OnDemuxerError(err media.Error)
}

// NopEvents is an Events implementation that ignores every notification.
// Embed it to implement only the callbacks of interest.
type NopEvents struct{}

func (NopEvents) OnSeekCompleted(int64) {}
func (NopEvents) OnEndOfFile() {}
func (NopEvents) OnDemuxerError(err media.Error) {}

// Config adjusts demuxer behavior.
type Config struct {
	// Loop restarts finite sources from the beginning on EOF instead of
	// parking the reader. Live sources never loop.
	Loop bool
	Log  *slog.Logger
}

// Stats is a snapshot of reader-session counters.
type Stats struct {
	PacketsRead  int64
	BytesRead    int64
	AudioPackets int64
	VideoPackets int64
}

// Demuxer reads a container source and dispatches its compressed packets to
// the audio and video packet queues. The format context lives inside the
// reader goroutine; control calls communicate through atomics.
type Demuxer struct {
	log    *slog.Logger
	events Events
	url    string
	reader io.Reader // non-nil for custom-IO (live ingest) sources
	loop   bool

	info      media.Info
	live      bool
	audioIdx  int
	videoIdx  int
	audioTB   astiav.Rational
	videoTB   astiav.Rational
	audioPar  *astiav.CodecParameters
	videoPar  *astiav.CodecParameters
	videoFR   astiav.Rational
	readerCtx *astiav.FormatContext // retained open context for reader sources
	ioCtx     *astiav.IOContext     // custom-IO context owned until the reader exits

	audioQ *queue.Queue[*astiav.Packet]
	videoQ *queue.Queue[*astiav.Packet]

	state   atomic.Int32
	running atomic.Bool
	seeking atomic.Bool
	seekPos atomic.Int64
	rate    atomic.Uint64

	packetsRead  atomic.Int64
	bytesRead    atomic.Int64
	audioPackets atomic.Int64
	videoPackets atomic.Int64

	wg sync.WaitGroup
}

// Open probes url, publishes media info, and prepares the reader. The probe
// context is closed before returning; the reader goroutine reopens the
// source when started.
func Open(url string, events Events, cfg Config) (*Demuxer, error) {
	d := newDemuxer(events, cfg)
	d.url = url

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, media.NewError(media.ErrDemuxerOpenFailed, "allocating format context")
	}
	if err := fc.OpenInput(url, nil, nil); err != nil {
		fc.Free()
		d.setState(StateError)
		return nil, media.NewError(media.ErrDemuxerOpenFailed, "opening %s: %v", url, err)
	}
	defer func() {
		fc.CloseInput()
		fc.Free()
	}()

	if err := d.probe(fc); err != nil {
		d.setState(StateError)
		return nil, err
	}

	d.setState(StateInitialized)
	d.log.Info("source opened", "url", url, "type", d.info.Type.String(),
		"duration_ms", d.info.DurationMs, "live", d.live)
	return d, nil
}

// OpenReader probes a byte stream delivered through r (for example an SRT
// ingest session) using FFmpeg custom IO. Reader sources are always treated
// as live: no seeking, no looping, no COMPLETED transition. The probed
// format context is retained for the reader goroutine since the stream
// cannot be reopened.
func OpenReader(r io.Reader, events Events, cfg Config) (*Demuxer, error) {
	d := newDemuxer(events, cfg)
	d.reader = r
	d.loop = false

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, media.NewError(media.ErrDemuxerOpenFailed, "allocating format context")
	}
	ioCtx, err := astiav.AllocIOContext(4096, false, func(b []byte) (int, error) {
		return r.Read(b)
	}, nil, nil)
	if err != nil {
		fc.Free()
		return nil, media.NewError(media.ErrDemuxerOpenFailed, "allocating io context: %v", err)
	}
	fc.SetPb(ioCtx)

	if err := fc.OpenInput("", nil, nil); err != nil {
		fc.Free()
		ioCtx.Free()
		d.setState(StateError)
		return nil, media.NewError(media.ErrDemuxerOpenFailed, "opening ingest stream: %v", err)
	}

	if err := d.probe(fc); err != nil {
		fc.CloseInput()
		fc.Free()
		ioCtx.Free()
		d.setState(StateError)
		return nil, err
	}

	d.live = true
	d.info.DurationMs = media.DurationLive
	d.readerCtx = fc
	d.ioCtx = ioCtx
	d.setState(StateInitialized)
	d.log.Info("ingest stream opened", "type", d.info.Type.String())
	return d, nil
}

func newDemuxer(events Events, cfg Config) *Demuxer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if events == nil {
		events = NopEvents{}
	}
	d := &Demuxer{
		log:      log.With("component", "demux"),
		events:   events,
		loop:     cfg.Loop,
		audioIdx: -1,
		videoIdx: -1,
		audioQ:   queue.New[*astiav.Packet](media.PacketQueueSize),
		videoQ:   queue.New[*astiav.Packet](media.PacketQueueSize),
	}
	d.rate.Store(rateBits(1.0))
	return d
}

// probe records stream selection, time bases, codec parameters, and media
// info from an opened format context.
func (d *Demuxer) probe(fc *astiav.FormatContext) error {
	if err := fc.FindStreamInfo(nil); err != nil {
		return media.NewError(media.ErrDemuxerFindStreamFail, "finding stream info: %v", err)
	}

	for _, s := range fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeAudio:
			if d.audioIdx < 0 {
				d.audioIdx = s.Index()
				d.audioTB = s.TimeBase()
				d.audioPar = astiav.AllocCodecParameters()
				if err := s.CodecParameters().Copy(d.audioPar); err != nil {
					return media.NewError(media.ErrDemuxerFindStreamFail, "copying audio codec parameters: %v", err)
				}
				d.info.AudioChannels = s.CodecParameters().ChannelLayout().Channels()
				d.info.AudioSampleRate = s.CodecParameters().SampleRate()
			}
		case astiav.MediaTypeVideo:
			if d.videoIdx < 0 {
				d.videoIdx = s.Index()
				d.videoTB = s.TimeBase()
				d.videoFR = fc.GuessFrameRate(s, nil)
				d.videoPar = astiav.AllocCodecParameters()
				if err := s.CodecParameters().Copy(d.videoPar); err != nil {
					return media.NewError(media.ErrDemuxerFindStreamFail, "copying video codec parameters: %v", err)
				}
				d.info.VideoWidth = s.CodecParameters().Width()
				d.info.VideoHeight = s.CodecParameters().Height()
			}
		}
	}

	d.info.HasAudio = d.audioIdx >= 0
	d.info.HasVideo = d.videoIdx >= 0
	d.info.Type = media.TypeFor(d.info.HasAudio, d.info.HasVideo)
	if d.info.Type == media.TypeUnknown {
		return media.NewError(media.ErrStreamNotFound, "no audio or video stream found")
	}

	if dur := fc.Duration(); dur == astiav.NoPtsValue {
		d.live = true
		d.info.DurationMs = media.DurationLive
	} else {
		d.info.DurationMs = dur / 1000 // AV_TIME_BASE (µs) to ms
	}
	return nil
}

// Info returns the media snapshot discovered at open.
func (d *Demuxer) Info() media.Info { return d.info }

// IsLive reports whether the source advertises no finite duration.
func (d *Demuxer) IsLive() bool { return d.live }

// State returns the current demuxer state.
func (d *Demuxer) State() State { return State(d.state.Load()) }

// AudioPackets returns the queue carrying compressed audio packets.
func (d *Demuxer) AudioPackets() *queue.Queue[*astiav.Packet] { return d.audioQ }

// VideoPackets returns the queue carrying compressed video packets.
func (d *Demuxer) VideoPackets() *queue.Queue[*astiav.Packet] { return d.videoQ }

// AudioCodecParameters returns a retained copy of the selected audio
// stream's codec parameters, or nil when the source has no audio.
func (d *Demuxer) AudioCodecParameters() *astiav.CodecParameters { return d.audioPar }

// VideoCodecParameters returns a retained copy of the selected video
// stream's codec parameters, or nil when the source has no video.
func (d *Demuxer) VideoCodecParameters() *astiav.CodecParameters { return d.videoPar }

// AudioTimeBase returns the selected audio stream's time base.
func (d *Demuxer) AudioTimeBase() astiav.Rational { return d.audioTB }

// VideoTimeBase returns the selected video stream's time base.
func (d *Demuxer) VideoTimeBase() astiav.Rational { return d.videoTB }

// VideoFrameRate returns the guessed frame rate of the video stream.
func (d *Demuxer) VideoFrameRate() astiav.Rational { return d.videoFR }

// Stats returns a snapshot of reader-session counters.
func (d *Demuxer) Stats() Stats {
	return Stats{
		PacketsRead:  d.packetsRead.Load(),
		BytesRead:    d.bytesRead.Load(),
		AudioPackets: d.audioPackets.Load(),
		VideoPackets: d.videoPackets.Load(),
	}
}

// Start spawns the reader goroutine. It is a no-op when already running.
func (d *Demuxer) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.setState(StateRunning)
	d.wg.Add(1)
	go d.readLoop()
	d.log.Info("reader started")
}

// Stop terminates the reader goroutine, joins it, and drops any queued
// packets. Safe to call repeatedly.
func (d *Demuxer) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.wg.Wait()
	d.Flush()
	d.setState(StateStopped)
	d.log.Info("reader stopped")
}

// Seek requests a jump to pos microseconds. The reader performs a backward
// (preceding keyframe) seek on its next iteration.
func (d *Demuxer) Seek(pos int64) {
	if d.live {
		d.log.Warn("seek ignored for live source")
		return
	}
	d.seekPos.Store(pos)
	d.seeking.Store(true)
	d.setState(StateSeeking)
	d.log.Info("seek requested", "pos_us", pos)
}

// SetRate adjusts the reader's pacing. Rates at or above 2.0 disable pacing.
func (d *Demuxer) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	d.rate.Store(rateBits(rate))
	d.log.Info("rate set", "rate", rate)
}

// Rate returns the current pacing rate.
func (d *Demuxer) Rate() float64 { return bitsRate(d.rate.Load()) }

// Flush drops every queued packet from both packet queues, releasing the
// underlying buffers.
func (d *Demuxer) Flush() {
	free := func(p *astiav.Packet) { p.Free() }
	d.audioQ.Clear(free)
	d.videoQ.Clear(free)
}

// Close releases the retained codec parameters and, when the reader never
// ran, the retained custom-IO contexts.
func (d *Demuxer) Close() {
	d.Stop()
	if d.readerCtx != nil {
		d.readerCtx.CloseInput()
		d.readerCtx.Free()
		d.readerCtx = nil
	}
	if d.ioCtx != nil {
		d.ioCtx.Free()
		d.ioCtx = nil
	}
	if d.audioPar != nil {
		d.audioPar.Free()
		d.audioPar = nil
	}
	if d.videoPar != nil {
		d.videoPar.Free()
		d.videoPar = nil
	}
}

func (d *Demuxer) setState(s State) {
	d.state.Store(int32(s))
}

func (d *Demuxer) notifyError(code media.ErrorCode, format string, args ...any) {
	err := media.NewError(code, format, args...)
	d.log.Error(err.Message)
	d.events.OnDemuxerError(err)
}

// readLoop is the reader goroutine body: open the source, then pump packets
// into the per-stream queues honoring seek requests, backpressure, pacing,
// and the EOF policy.
func (d *Demuxer) readLoop() {
	defer d.wg.Done()

	fc, err := d.openForReading()
	if err != nil {
		d.notifyError(media.ErrDemuxerOpenFailed, "reopening source: %v", err)
		d.setState(StateError)
		return
	}
	defer func() {
		fc.CloseInput()
		fc.Free()
		if d.ioCtx != nil {
			d.ioCtx.Free()
			d.ioCtx = nil
		}
	}()

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	for d.running.Load() {
		if d.seeking.Load() {
			d.performSeek(fc)
			continue
		}

		// Backpressure: decoders drain the queues, the reader waits.
		if d.audioQ.Full() || d.videoQ.Full() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := fc.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				switch d.handleEOF(fc) {
				case eofContinue:
					continue
				case eofPark:
					d.park()
					continue
				case eofExit:
					return
				}
			}
			d.notifyError(media.ErrDemuxerReadFailed, "reading frame: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		d.dispatch(pkt)
		pkt.Unref()
	}
}

// openForReading returns the format context the reader pumps from: the
// retained custom-IO context for reader sources, or a fresh open by URL.
func (d *Demuxer) openForReading() (*astiav.FormatContext, error) {
	if fc := d.readerCtx; fc != nil {
		d.readerCtx = nil
		return fc, nil
	}
	if d.reader != nil {
		return nil, fmt.Errorf("ingest stream cannot be reopened")
	}

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("allocating format context")
	}
	if err := fc.OpenInput(d.url, nil, nil); err != nil {
		fc.Free()
		return nil, err
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, err
	}
	return fc, nil
}

// performSeek translates the pending target into the primary stream's time
// base and requests a backward seek so decoding resumes at a keyframe.
// Seek failures are logged and cleared; playback resumes from the current
// position.
func (d *Demuxer) performSeek(fc *astiav.FormatContext) {
	target := d.seekPos.Load()

	idx, tb := d.primaryStream()
	ts := astiav.RescaleQ(target, microsecondBase, tb)
	if err := fc.SeekFrame(idx, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		d.log.Warn("seek failed", "pos_us", target, "error", err)
	}

	d.seeking.Store(false)
	d.log.Info("seek completed", "pos_us", target)
	d.events.OnSeekCompleted(target)
	d.setState(StateRunning)
}

// primaryStream returns the stream used for seeking: video when present,
// else audio.
func (d *Demuxer) primaryStream() (int, astiav.Rational) {
	if d.videoIdx >= 0 {
		return d.videoIdx, d.videoTB
	}
	return d.audioIdx, d.audioTB
}

// eofAction is what the reader does after end of stream.
type eofAction int

const (
	eofContinue eofAction = iota // looped back to the start, keep reading
	eofPark                      // finite source, wait for a seek request
	eofExit                      // live source, reader exits
)

// handleEOF applies the end-of-stream policy: live sources exit, looping
// sources rewind, and everything else parks so a later seek can resume
// reading.
func (d *Demuxer) handleEOF(fc *astiav.FormatContext) eofAction {
	d.log.Info("end of stream")
	d.events.OnEndOfFile()

	if d.live {
		return eofExit
	}
	if !d.loop {
		return eofPark
	}

	idx, _ := d.primaryStream()
	if err := fc.SeekFrame(idx, 0, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		d.log.Warn("loop seek failed", "error", err)
		return eofPark
	}
	d.log.Info("looping to start")
	return eofContinue
}

// park idles the reader after EOF until a seek request or shutdown arrives.
func (d *Demuxer) park() {
	for d.running.Load() && !d.seeking.Load() {
		time.Sleep(10 * time.Millisecond)
	}
}

// dispatch clones pkt into the matching stream queue and applies pacing.
// Clones that cannot be queued (full queue) are dropped and freed.
func (d *Demuxer) dispatch(pkt *astiav.Packet) {
	idx := pkt.StreamIndex()
	if idx != d.audioIdx && idx != d.videoIdx {
		return
	}

	d.packetsRead.Add(1)
	d.bytesRead.Add(int64(pkt.Size()))

	clone := pkt.Clone()
	if clone == nil {
		return
	}

	var ok bool
	if idx == d.audioIdx {
		ok = d.audioQ.TryPush(clone)
		if ok {
			d.audioPackets.Add(1)
		}
	} else {
		ok = d.videoQ.TryPush(clone)
		if ok {
			d.videoPackets.Add(1)
		}
	}
	if !ok {
		clone.Free()
	}

	if delay := paceDelay(d.Rate()); delay > 0 {
		time.Sleep(delay)
	}
}
