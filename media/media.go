// Package media defines the frame, packet metadata, and media description
// types that flow through the refract playback pipeline, from demuxing
// through decoding to rendering.
package media

// Queue capacities used by both the demuxer (producer) and the decoders
// (consumers) to decouple packet production from frame consumption. Sized to
// absorb jitter without excessive memory: ~100 compressed packets per stream,
// 30 decoded frames per stream.
const (
	PacketQueueSize = 100
	FrameQueueSize  = 30
)

// Canonical audio output format. Every AudioFrame leaving the audio decoder
// carries this format regardless of the source stream.
const (
	AudioTargetSampleRate = 48000
	AudioTargetChannels   = 2
	AudioTargetBitDepth   = 16
)

// DurationLive is the MediaInfo.DurationMs sentinel for sources that report
// no total duration (live streams).
const DurationLive = -1

// Type classifies which elementary streams a source carries.
type Type int

// Media types discovered at open.
const (
	TypeUnknown Type = iota
	TypeAudio
	TypeVideo
	TypeAudioVideo
)

// String returns a short name for the media type.
func (t Type) String() string {
	switch t {
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	case TypeAudioVideo:
		return "audio+video"
	default:
		return "unknown"
	}
}

// TypeFor derives the media type from stream presence.
func TypeFor(hasAudio, hasVideo bool) Type {
	switch {
	case hasAudio && hasVideo:
		return TypeAudioVideo
	case hasAudio:
		return TypeAudio
	case hasVideo:
		return TypeVideo
	default:
		return TypeUnknown
	}
}

// Info is the snapshot of a source discovered at open time.
type Info struct {
	Type       Type
	DurationMs int64 // total duration in milliseconds, DurationLive for live sources
	HasAudio   bool
	HasVideo   bool

	VideoWidth  int
	VideoHeight int

	AudioChannels   int
	AudioSampleRate int
}

// Live reports whether the source advertises no finite duration.
func (i Info) Live() bool { return i.DurationMs == DurationLive }

// DurationUS returns the total duration in microseconds, or a negative
// value for live sources.
func (i Info) DurationUS() int64 {
	if i.Live() {
		return -1
	}
	return i.DurationMs * 1000
}

// AudioFrame is a decoded, resampled PCM buffer. Data is interleaved
// little-endian signed samples in the canonical output format.
type AudioFrame struct {
	Data       []byte
	Samples    int
	Channels   int
	SampleRate int
	BitDepth   int
	PTS        int64 // microseconds
	Duration   int64 // microseconds
}

// Size returns the payload size in bytes.
func (f *AudioFrame) Size() int { return len(f.Data) }

// EndPTS returns the presentation time at which this frame ends.
func (f *AudioFrame) EndPTS() int64 { return f.PTS + f.Duration }

// VideoFrame is a decoded picture in one of the renderer-supported pixel
// formats. Planes are tightly packed: Linesize[i] equals the plane's row
// width in bytes.
type VideoFrame struct {
	Planes   [3][]byte
	Linesize [3]int
	Width    int
	Height   int
	PTS      int64 // microseconds
	Duration int64 // microseconds
	Format   PixelFormat
}

// EndPTS returns the presentation time at which this frame ends.
func (f *VideoFrame) EndPTS() int64 { return f.PTS + f.Duration }
