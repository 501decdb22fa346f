package media

// PixelFormat identifies the layout of a decoded video frame. These are the
// only formats the video renderer contract accepts; the video decoder
// converts everything else to RGB24.
type PixelFormat int

const (
	PixelFormatYUV420P PixelFormat = iota
	PixelFormatNV12
	PixelFormatRGB24
)

// String returns the conventional name of the pixel format.
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatRGB24:
		return "rgb24"
	default:
		return "invalid"
	}
}

// PlaneSizes returns the byte size of each tightly-packed plane for a frame
// of the given dimensions. Unused planes are zero.
func (p PixelFormat) PlaneSizes(width, height int) [3]int {
	switch p {
	case PixelFormatYUV420P:
		return [3]int{width * height, width * height / 4, width * height / 4}
	case PixelFormatNV12:
		return [3]int{width * height, width * height / 2, 0}
	case PixelFormatRGB24:
		return [3]int{width * height * 3, 0, 0}
	default:
		return [3]int{}
	}
}

// PlaneStrides returns the row stride in bytes of each tightly-packed plane
// for a frame of the given width. Unused planes are zero.
func (p PixelFormat) PlaneStrides(width int) [3]int {
	switch p {
	case PixelFormatYUV420P:
		return [3]int{width, width / 2, width / 2}
	case PixelFormatNV12:
		return [3]int{width, width, 0}
	case PixelFormatRGB24:
		return [3]int{width * 3, 0, 0}
	default:
		return [3]int{}
	}
}

// FrameSize returns the total packed byte size of a frame in this format.
func (p PixelFormat) FrameSize(width, height int) int {
	s := p.PlaneSizes(width, height)
	return s[0] + s[1] + s[2]
}
