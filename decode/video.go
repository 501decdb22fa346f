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

// videoDecoderThreads is the worker thread count handed to the codec
// context.
const videoDecoderThreads = 4

// VideoDecoder pulls compressed video packets, decodes them, and delivers
// pictures in one of the renderer-supported pixel formats. Natively
// supported source formats pass through as packed plane copies; everything
// else is converted to RGB24 with bilinear scaling.
type VideoDecoder struct {
	log       *slog.Logger
	cc        *astiav.CodecContext
	timeBase  astiav.Rational
	frames    astiav.Rational // stream frame rate for duration fallback
	outFormat media.PixelFormat

	scaler     *astiav.SoftwareScaleContext
	scalerSrcW int
	scalerSrcH int
	scalerSrc  astiav.PixelFormat
	scalerDst  astiav.PixelFormat

	in  *queue.Queue[*astiav.Packet]
	out *queue.Queue[*media.VideoFrame]

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewVideoDecoder builds a decoder for the given codec parameters. timeBase
// is the source stream's time base; frameRate is the demuxer's guessed
// stream frame rate, used for duration derivation.
func NewVideoDecoder(params *astiav.CodecParameters, timeBase, frameRate astiav.Rational,
	in *queue.Queue[*astiav.Packet], out *queue.Queue[*media.VideoFrame],
	log *slog.Logger) (*VideoDecoder, error) {

	if log == nil {
		log = slog.Default()
	}
	d := &VideoDecoder{
		log:      log.With("component", "video-decoder"),
		timeBase: timeBase,
		frames:   frameRate,
		in:       in,
		out:      out,
	}

	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return nil, media.NewError(media.ErrCodecNotFound, "no video decoder for codec id %d", params.CodecID())
	}

	d.cc = astiav.AllocCodecContext(codec)
	if d.cc == nil {
		return nil, media.NewError(media.ErrDecoderInitFailed, "allocating video codec context")
	}
	if err := params.ToCodecContext(d.cc); err != nil {
		d.cc.Free()
		return nil, media.NewError(media.ErrDecoderInitFailed, "applying video codec parameters: %v", err)
	}
	d.cc.SetThreadCount(videoDecoderThreads)
	if err := d.cc.Open(codec, nil); err != nil {
		d.cc.Free()
		return nil, media.NewError(media.ErrDecoderInitFailed, "opening video decoder: %v", err)
	}

	d.outFormat, _, _ = destinationFormat(params.PixelFormat())

	d.log.Info("video decoder ready", "codec", codec.Name(),
		"threads", videoDecoderThreads, "output_format", d.outFormat.String())
	return d, nil
}

// OutputFormat returns the pixel format this decoder will deliver for the
// stream's declared source format. Frames still carry their own format, so
// a mid-stream format change reaches the renderer regardless.
func (d *VideoDecoder) OutputFormat() media.PixelFormat { return d.outFormat }

// Start spawns the decode goroutine. No-op when already running.
func (d *VideoDecoder) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.wg.Add(1)
	go d.decodeLoop()
	d.log.Info("decode loop started")
}

// Stop terminates the decode goroutine and joins it.
func (d *VideoDecoder) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.wg.Wait()
	d.log.Info("decode loop stopped")
}

// Close stops the decoder and releases the codec and scaler contexts.
func (d *VideoDecoder) Close() {
	d.Stop()
	if d.scaler != nil {
		d.scaler.Free()
		d.scaler = nil
	}
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	d.log.Info("video decoder closed")
}

func (d *VideoDecoder) decodeLoop() {
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

func (d *VideoDecoder) drain(frame *astiav.Frame) {
	for d.running.Load() && !d.out.Full() {
		if err := d.cc.ReceiveFrame(frame); err != nil {
			if !errors.Is(err, astiav.ErrEagain) && !errors.Is(err, astiav.ErrEof) {
				d.log.Error("receiving frame from decoder", "error", err)
			}
			return
		}

		vf, err := d.convert(frame)
		frame.Unref()
		if err != nil {
			d.log.Error("converting frame", "error", err)
			continue
		}

		if !d.out.TryPush(vf) {
			// Queue filled while draining; drop and recheck backpressure.
			return
		}
	}
}

// convert produces a media.VideoFrame from a decoded picture, passing
// through natively supported pixel formats and scaling the rest to RGB24.
func (d *VideoDecoder) convert(src *astiav.Frame) (*media.VideoFrame, error) {
	width, height := src.Width(), src.Height()
	sar := src.SampleAspectRatio()
	fr := d.frames

	vf := &media.VideoFrame{
		Width:    width,
		Height:   height,
		PTS:      toMicroseconds(src.Pts(), d.timeBase),
		Duration: deriveFrameDuration(sar.Num(), sar.Den(), fr.Num(), fr.Den()),
	}

	format, dstPF, passthrough := destinationFormat(src.PixelFormat())
	vf.Format = format

	if passthrough {
		packed, err := src.Data().Bytes(1)
		if err != nil {
			return nil, err
		}
		vf.Planes, vf.Linesize = splitPlanes(packed, format, width, height)
		return vf, nil
	}

	if err := d.ensureScaler(width, height, src.PixelFormat(), dstPF); err != nil {
		return nil, err
	}

	dst := astiav.AllocFrame()
	defer dst.Free()
	if err := d.scaler.ScaleFrame(src, dst); err != nil {
		return nil, err
	}

	packed, err := dst.Data().Bytes(1)
	if err != nil {
		return nil, err
	}
	vf.Planes, vf.Linesize = splitPlanes(packed, format, width, height)
	return vf, nil
}

// ensureScaler builds the scale context lazily and rebuilds it whenever the
// source geometry or either pixel format changes.
func (d *VideoDecoder) ensureScaler(w, h int, src, dst astiav.PixelFormat) error {
	if d.scaler != nil && d.scalerSrcW == w && d.scalerSrcH == h &&
		d.scalerSrc == src && d.scalerDst == dst {
		return nil
	}
	if d.scaler != nil {
		d.scaler.Free()
		d.scaler = nil
	}

	sc, err := astiav.CreateSoftwareScaleContext(w, h, src, w, h, dst,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
	if err != nil {
		return err
	}
	d.scaler = sc
	d.scalerSrcW, d.scalerSrcH = w, h
	d.scalerSrc, d.scalerDst = src, dst
	d.log.Info("scaler rebuilt", "width", w, "height", h,
		"src", src.String(), "dst", dst.String())
	return nil
}

// destinationFormat maps a source pixel format onto the renderer contract:
// natively supported formats pass through, everything else converts to
// RGB24.
func destinationFormat(src astiav.PixelFormat) (media.PixelFormat, astiav.PixelFormat, bool) {
	switch src {
	case astiav.PixelFormatYuv420P:
		return media.PixelFormatYUV420P, astiav.PixelFormatYuv420P, true
	case astiav.PixelFormatNv12:
		return media.PixelFormatNV12, astiav.PixelFormatNv12, true
	case astiav.PixelFormatRgb24:
		return media.PixelFormatRGB24, astiav.PixelFormatRgb24, true
	default:
		return media.PixelFormatRGB24, astiav.PixelFormatRgb24, false
	}
}

// splitPlanes slices a tightly-packed image buffer into its per-plane views
// with matching strides. The buffer layout follows media.PixelFormat.PlaneSizes.
func splitPlanes(packed []byte, format media.PixelFormat, width, height int) ([3][]byte, [3]int) {
	sizes := format.PlaneSizes(width, height)
	strides := format.PlaneStrides(width)

	var planes [3][]byte
	offset := 0
	for i, size := range sizes {
		if size == 0 || offset+size > len(packed) {
			break
		}
		planes[i] = packed[offset : offset+size]
		offset += size
	}
	return planes, strides
}
