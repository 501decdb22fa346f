package decode

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/queue"
)

// AudioDecoder pulls compressed audio packets, decodes them, and resamples
// every frame to the canonical output format (48 kHz, stereo, S16LE) before
// pushing it into the frame queue.
type AudioDecoder struct {
	log       *slog.Logger
	cc        *astiav.CodecContext
	resampler *astiav.SoftwareResampleContext
	timeBase  astiav.Rational

	in  *queue.Queue[*astiav.Packet]
	out *queue.Queue[*media.AudioFrame]

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewAudioDecoder builds a decoder and resampler for the given codec
// parameters. timeBase is the source stream's time base, used to rescale
// frame timestamps into microseconds.
func NewAudioDecoder(params *astiav.CodecParameters, timeBase astiav.Rational,
	in *queue.Queue[*astiav.Packet], out *queue.Queue[*media.AudioFrame],
	log *slog.Logger) (*AudioDecoder, error) {

	if log == nil {
		log = slog.Default()
	}
	d := &AudioDecoder{
		log:      log.With("component", "audio-decoder"),
		timeBase: timeBase,
		in:       in,
		out:      out,
	}

	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return nil, media.NewError(media.ErrCodecNotFound, "no audio decoder for codec id %d", params.CodecID())
	}

	d.cc = astiav.AllocCodecContext(codec)
	if d.cc == nil {
		return nil, media.NewError(media.ErrDecoderInitFailed, "allocating audio codec context")
	}
	if err := params.ToCodecContext(d.cc); err != nil {
		d.cc.Free()
		return nil, media.NewError(media.ErrDecoderInitFailed, "applying audio codec parameters: %v", err)
	}
	if err := d.cc.Open(codec, nil); err != nil {
		d.cc.Free()
		return nil, media.NewError(media.ErrDecoderInitFailed, "opening audio decoder: %v", err)
	}

	d.resampler = astiav.AllocSoftwareResampleContext()
	if d.resampler == nil {
		d.cc.Free()
		return nil, media.NewError(media.ErrDecoderInitFailed, "allocating resample context")
	}

	d.log.Info("audio decoder ready", "codec", codec.Name())
	return d, nil
}

// Start spawns the decode goroutine. No-op when already running.
func (d *AudioDecoder) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.wg.Add(1)
	go d.decodeLoop()
	d.log.Info("decode loop started")
}

// Stop terminates the decode goroutine and joins it.
func (d *AudioDecoder) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.wg.Wait()
	d.log.Info("decode loop stopped")
}

// Close stops the decoder and releases the codec and resampler contexts.
func (d *AudioDecoder) Close() {
	d.Stop()
	if d.resampler != nil {
		d.resampler.Free()
		d.resampler = nil
	}
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	d.log.Info("audio decoder closed")
}

func (d *AudioDecoder) decodeLoop() {
	defer d.wg.Done()

	frame := astiav.AllocFrame()
	defer frame.Free()

	for d.running.Load() {
		if d.out.Full() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		pkt, ok := d.in.TryPop()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		err := d.cc.SendPacket(pkt)
		pkt.Free()
		if err != nil {
			d.log.Error("sending packet to decoder", "error", err)
			continue
		}

		d.drain(frame)
	}
}

// drain receives every frame the decoder has ready, resamples, and queues.
func (d *AudioDecoder) drain(frame *astiav.Frame) {
	for d.running.Load() && !d.out.Full() {
		if err := d.cc.ReceiveFrame(frame); err != nil {
			if !errors.Is(err, astiav.ErrEagain) && !errors.Is(err, astiav.ErrEof) {
				d.log.Error("receiving frame from decoder", "error", err)
			}
			return
		}

		af, err := d.resample(frame)
		frame.Unref()
		if err != nil {
			d.log.Error("resampling frame", "error", err)
			continue
		}

		if !d.out.TryPush(af) {
			// Queue filled while draining; drop and recheck backpressure.
			return
		}
	}
}

// resample converts a decoded frame into the canonical output format and
// wraps it as a media.AudioFrame with PTS and duration in microseconds.
func (d *AudioDecoder) resample(src *astiav.Frame) (*media.AudioFrame, error) {
	dst := astiav.AllocFrame()
	defer dst.Free()

	dst.SetChannelLayout(astiav.ChannelLayoutStereo)
	dst.SetSampleFormat(astiav.SampleFormatS16)
	dst.SetSampleRate(media.AudioTargetSampleRate)
	dst.SetNbSamples(resampledSampleCount(src.NbSamples(), src.SampleRate(), media.AudioTargetSampleRate))

	if err := d.resampler.ConvertFrame(src, dst); err != nil {
		return nil, err
	}

	samples := dst.NbSamples()
	size := samples * media.AudioTargetChannels * (media.AudioTargetBitDepth / 8)
	raw, err := dst.Data().Bytes(0)
	if err != nil {
		return nil, err
	}
	if size > len(raw) {
		size = len(raw)
	}
	data := make([]byte, size)
	copy(data, raw[:size])

	return &media.AudioFrame{
		Data:       data,
		Samples:    samples,
		Channels:   media.AudioTargetChannels,
		SampleRate: media.AudioTargetSampleRate,
		BitDepth:   media.AudioTargetBitDepth,
		PTS:        toMicroseconds(src.Pts(), d.timeBase),
		Duration:   audioFrameDuration(src.NbSamples(), src.SampleRate()),
	}, nil
}
