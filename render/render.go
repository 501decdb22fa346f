// Package render defines the sink contracts the player drives: a pull-model
// audio device and a video surface. Platform implementations live in
// subpackages; the player depends only on these interfaces.
package render

import "github.com/zsiec/refract/media"

// Notifier receives consumption events from the sinks. The player implements
// it to advance its clocks and submit follow-up frames. Implementations are
// handles, not owners: a sink must tolerate a notifier that has gone inert
// after the player is closed.
type Notifier interface {
	// OnAudioFrameRendered fires after the device has consumed a frame.
	OnAudioFrameRendered(f *media.AudioFrame)
	// OnVideoFrameRendered fires after a frame has been presented.
	OnVideoFrameRendered(f *media.VideoFrame)
}

// AudioSink is a pull-model audio output device.
type AudioSink interface {
	// Init opens the device for the given PCM format and registers the
	// consumption notifier.
	Init(sampleRate, channels, bitsPerSample int, n Notifier) error
	// Play enqueues a single frame for the device's pull callback. It
	// returns false when the device is not ready to accept one.
	Play(f *media.AudioFrame) bool

	Pause()
	Resume()
	Stop()
	Release()

	SetVolume(v float64)
	Volume() float64
	SetMute(mute bool)
	Muted() bool
}

// VideoSink is a surface that presents decoded pictures.
type VideoSink interface {
	// Init prepares the surface for frames of the given geometry and
	// format and registers the presentation notifier.
	Init(width, height int, format media.PixelFormat, n Notifier) error
	// Render presents one frame. It returns false on failure.
	Render(f *media.VideoFrame) bool
	Release()
}
