package player

import "github.com/zsiec/refract/media"

// State tracks the player lifecycle. Reads are a single atomic snapshot;
// transitions are serialized by the player's state mutex.
type State int32

const (
	StateIdle State = iota
	StateInitialized
	StatePrepared
	StateStarted
	StatePaused
	StateStopped
	StateCompleted
	StateError
)

// String returns a short name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StatePrepared:
		return "prepared"
	case StateStarted:
		return "started"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}

// Callback is the client sink receiving player events. Methods are invoked
// from pipeline goroutines and must not block.
type Callback interface {
	OnStateChanged(s State)
	OnProgress(position, duration float64)
	OnError(err media.Error)
	OnMediaInfo(info media.Info)
	// OnAudioFrame and OnVideoFrame are observer passthroughs fired for each
	// frame handed to a renderer.
	OnAudioFrame(f *media.AudioFrame)
	OnVideoFrame(f *media.VideoFrame)
}

// NopCallback ignores every event. Embed it to implement only the callbacks
// of interest.
type NopCallback struct{}

func (NopCallback) OnStateChanged(State) {}
func (NopCallback) OnProgress(float64, float64) {}
func (NopCallback) OnError(media.Error) {}
func (NopCallback) OnMediaInfo(media.Info) {}
func (NopCallback) OnAudioFrame(*media.AudioFrame) {}
func (NopCallback) OnVideoFrame(*media.VideoFrame) {}
