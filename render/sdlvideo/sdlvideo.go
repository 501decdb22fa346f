// Package sdlvideo implements the render.VideoSink contract on an SDL2
// window with a streaming texture. It accepts the three pipeline pixel
// formats and rebuilds the texture when the incoming frame geometry or
// format changes.
package sdlvideo

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/render"
)

// Renderer is an SDL2-backed video sink.
type Renderer struct {
	log *slog.Logger

	mu       sync.Mutex
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	notifier render.Notifier

	width  int
	height int
	format media.PixelFormat

	title string
}

// New returns an uninitialized renderer presenting into a window with the
// given title. If log is nil, slog.Default() is used.
func New(title string, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{
		log:   log.With("component", "video-sink"),
		title: title,
	}
}

// Init creates the window, renderer, and initial streaming texture.
func (r *Renderer) Init(width, height int, format media.PixelFormat, n render.Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("initializing SDL: %w", err)
	}

	window, err := sdl.CreateWindow(r.title, sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		return fmt.Errorf("creating renderer: %w", err)
	}

	r.window = window
	r.renderer = renderer
	r.notifier = n

	if err := r.rebuildTexture(width, height, format); err != nil {
		renderer.Destroy()
		window.Destroy()
		r.window, r.renderer = nil, nil
		return err
	}

	r.log.Info("video surface ready", "width", width, "height", height, "format", format.String())
	return nil
}

// Render uploads one frame into the streaming texture and presents it. It
// returns false on failure or when the sink is not initialized.
func (r *Renderer) Render(f *media.VideoFrame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderer == nil {
		return false
	}

	// Drain the SDL event queue so the window stays responsive; the player
	// has no UI loop of its own.
	for sdl.PollEvent() != nil {
	}

	if f.Width != r.width || f.Height != r.height || f.Format != r.format {
		if err := r.rebuildTexture(f.Width, f.Height, f.Format); err != nil {
			r.log.Error("rebuilding texture", "error", err)
			return false
		}
	}

	if err := r.upload(f); err != nil {
		r.log.Error("uploading frame", "error", err)
		return false
	}

	r.renderer.Clear()
	r.renderer.Copy(r.texture, nil, nil)
	r.renderer.Present()

	if n := r.notifier; n != nil {
		n.OnVideoFrameRendered(f)
	}
	return true
}

// Release destroys the texture, renderer, and window.
func (r *Renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.texture != nil {
		r.texture.Destroy()
		r.texture = nil
	}
	if r.renderer != nil {
		r.renderer.Destroy()
		r.renderer = nil
	}
	if r.window != nil {
		r.window.Destroy()
		r.window = nil
	}
	r.notifier = nil
	sdl.Quit()
	r.log.Info("video surface released")
}

// rebuildTexture replaces the streaming texture for new frame geometry.
// Caller holds r.mu.
func (r *Renderer) rebuildTexture(width, height int, format media.PixelFormat) error {
	if r.texture != nil {
		r.texture.Destroy()
		r.texture = nil
	}

	tex, err := r.renderer.CreateTexture(sdlPixelFormat(format), sdl.TEXTUREACCESS_STREAMING,
		int32(width), int32(height))
	if err != nil {
		return fmt.Errorf("creating %s texture: %w", format.String(), err)
	}

	r.texture = tex
	r.width, r.height, r.format = width, height, format
	return nil
}

// upload copies the frame planes into the texture. Caller holds r.mu.
func (r *Renderer) upload(f *media.VideoFrame) error {
	switch f.Format {
	case media.PixelFormatYUV420P:
		return r.texture.UpdateYUV(nil,
			f.Planes[0], f.Linesize[0],
			f.Planes[1], f.Linesize[1],
			f.Planes[2], f.Linesize[2])
	case media.PixelFormatNV12:
		// SDL expects the Y and UV planes contiguous for NV12 updates.
		return r.texture.Update(nil, packPlanes(f), f.Linesize[0])
	case media.PixelFormatRGB24:
		return r.texture.Update(nil, f.Planes[0], f.Linesize[0])
	default:
		return fmt.Errorf("unsupported pixel format %d", f.Format)
	}
}

// packPlanes concatenates a frame's planes into one contiguous buffer.
func packPlanes(f *media.VideoFrame) []byte {
	total := 0
	for _, p := range f.Planes {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range f.Planes {
		buf = append(buf, p...)
	}
	return buf
}

// sdlPixelFormat maps a pipeline pixel format onto its SDL texture format.
func sdlPixelFormat(format media.PixelFormat) uint32 {
	switch format {
	case media.PixelFormatYUV420P:
		return sdl.PIXELFORMAT_IYUV
	case media.PixelFormatNV12:
		return sdl.PIXELFORMAT_NV12
	case media.PixelFormatRGB24:
		return sdl.PIXELFORMAT_RGB24
	default:
		return sdl.PIXELFORMAT_UNKNOWN
	}
}
