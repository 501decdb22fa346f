package player

import (
	"github.com/zsiec/refract/demux"
	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/queue"
)

// Demuxer is the subset of the demuxer the player drives. Accepting an
// interface here decouples the orchestrator from the FFmpeg-backed
// implementation, making it testable with stubs.
type Demuxer interface {
	Start()
	Stop()
	Seek(pos int64)
	SetRate(rate float64)
	// Flush drops queued packets, releasing their buffers.
	Flush()
	IsLive() bool
}

// Decoder is the lifecycle surface of a decode stage.
type Decoder interface {
	Start()
	Stop()
	Close()
}

// Session bundles everything an opened source provides: the demuxer, the
// per-stream decoders wired into the player's frame queues, and the probed
// media info.
type Session interface {
	Demuxer
	Info() media.Info
	// AudioDecoder returns nil when the source has no audio stream.
	AudioDecoder() Decoder
	// VideoDecoder returns nil when the source has no video stream.
	VideoDecoder() Decoder
	// VideoFormat returns the pixel format the video decoder delivers.
	// Meaningless when the source has no video stream.
	VideoFormat() media.PixelFormat
	// Close releases every session resource. The session must be stopped.
	Close()
}

// OpenFunc probes a source and builds a Session whose decoders feed the
// given frame queues. events receives demuxer notifications.
type OpenFunc func(url string,
	audioFrames *queue.Queue[*media.AudioFrame],
	videoFrames *queue.Queue[*media.VideoFrame],
	events demux.Events) (Session, error)
