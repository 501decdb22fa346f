package player

import (
	"io"
	"log/slog"

	"github.com/zsiec/refract/decode"
	"github.com/zsiec/refract/demux"
	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/queue"
)

// DefaultOpen returns the FFmpeg-backed OpenFunc: demux.Open by URL, one
// decoder per present stream, wired into the player's frame queues.
func DefaultOpen(loop bool, log *slog.Logger) OpenFunc {
	return func(url string,
		audioFrames *queue.Queue[*media.AudioFrame],
		videoFrames *queue.Queue[*media.VideoFrame],
		events demux.Events) (Session, error) {

		d, err := demux.Open(url, events, demux.Config{Loop: loop, Log: log})
		if err != nil {
			return nil, err
		}
		return buildSession(d, audioFrames, videoFrames, log)
	}
}

// ReaderOpen returns an OpenFunc for byte-stream sources such as SRT ingest
// sessions. The url argument is ignored; the stream is always treated as
// live.
func ReaderOpen(r io.Reader, log *slog.Logger) OpenFunc {
	return func(_ string,
		audioFrames *queue.Queue[*media.AudioFrame],
		videoFrames *queue.Queue[*media.VideoFrame],
		events demux.Events) (Session, error) {

		d, err := demux.OpenReader(r, events, demux.Config{Log: log})
		if err != nil {
			return nil, err
		}
		return buildSession(d, audioFrames, videoFrames, log)
	}
}

// buildSession constructs the per-stream decoders around an opened demuxer.
func buildSession(d *demux.Demuxer,
	audioFrames *queue.Queue[*media.AudioFrame],
	videoFrames *queue.Queue[*media.VideoFrame],
	log *slog.Logger) (Session, error) {

	s := &avSession{d: d}
	info := d.Info()

	if info.HasAudio {
		ad, err := decode.NewAudioDecoder(d.AudioCodecParameters(), d.AudioTimeBase(),
			d.AudioPackets(), audioFrames, log)
		if err != nil {
			d.Close()
			return nil, err
		}
		s.audio = ad
	}

	if info.HasVideo {
		vd, err := decode.NewVideoDecoder(d.VideoCodecParameters(), d.VideoTimeBase(),
			d.VideoFrameRate(), d.VideoPackets(), videoFrames, log)
		if err != nil {
			if s.audio != nil {
				s.audio.Close()
			}
			d.Close()
			return nil, err
		}
		s.video = vd
	}

	return s, nil
}

// avSession is the FFmpeg-backed Session: a demuxer plus its decoders.
type avSession struct {
	d     *demux.Demuxer
	audio *decode.AudioDecoder
	video *decode.VideoDecoder
}

func (s *avSession) Start() { s.d.Start() }
func (s *avSession) Stop() { s.d.Stop() }
func (s *avSession) Seek(pos int64) { s.d.Seek(pos) }
func (s *avSession) SetRate(r float64) { s.d.SetRate(r) }
func (s *avSession) Flush() { s.d.Flush() }
func (s *avSession) IsLive() bool { return s.d.IsLive() }
func (s *avSession) Info() media.Info { return s.d.Info() }

func (s *avSession) AudioDecoder() Decoder {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

func (s *avSession) VideoDecoder() Decoder {
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *avSession) VideoFormat() media.PixelFormat {
	if s.video == nil {
		return media.PixelFormatYUV420P
	}
	return s.video.OutputFormat()
}

func (s *avSession) Close() {
	s.d.Close()
}
