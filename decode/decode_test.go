package decode

import (
	"testing"

	"github.com/zsiec/refract/media"
)

func TestAudioFrameDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		samples, rate int
		want          int64
	}{
		{1024, 48000, 21_333},
		{1024, 44100, 23_219},
		{48000, 48000, 1_000_000},
		{0, 48000, 0},
		{1024, 0, 0},
	}
	for _, c := range cases {
		if got := audioFrameDuration(c.samples, c.rate); got != c.want {
			t.Errorf("audioFrameDuration(%d, %d) = %d, want %d", c.samples, c.rate, got, c.want)
		}
	}
}

func TestResampledSampleCount(t *testing.T) {
	t.Parallel()
	cases := []struct {
		src, srcRate, dstRate int
		want                  int
	}{
		{1024, 44100, 48000, 1115}, // rounds up
		{1024, 48000, 48000, 1024},
		{441, 44100, 48000, 480},
		{1024, 0, 48000, 1024}, // degenerate rate passes through
	}
	for _, c := range cases {
		if got := resampledSampleCount(c.src, c.srcRate, c.dstRate); got != c.want {
			t.Errorf("resampledSampleCount(%d, %d, %d) = %d, want %d",
				c.src, c.srcRate, c.dstRate, got, c.want)
		}
	}
}

func TestDeriveFrameDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name                       string
		sarNum, sarDen, frN, frDen int
		want                       int64
	}{
		{"sample aspect ratio wins", 25, 1, 30, 1, 40_000},
		{"frame rate fallback 30fps", 0, 0, 30, 1, 33_333},
		{"frame rate fallback ntsc", 0, 0, 30000, 1001, 33_366},
		{"default 25fps", 0, 0, 0, 0, 40_000},
		{"negative frame rate ignored", 0, 0, -30, 1, 40_000},
	}
	for _, c := range cases {
		if got := deriveFrameDuration(c.sarNum, c.sarDen, c.frN, c.frDen); got != c.want {
			t.Errorf("%s: deriveFrameDuration = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestSplitPlanesYUV420P(t *testing.T) {
	t.Parallel()
	const w, h = 4, 4
	packed := make([]byte, media.PixelFormatYUV420P.FrameSize(w, h))
	for i := range packed {
		packed[i] = byte(i)
	}

	planes, strides := splitPlanes(packed, media.PixelFormatYUV420P, w, h)

	if len(planes[0]) != 16 || len(planes[1]) != 4 || len(planes[2]) != 4 {
		t.Fatalf("plane sizes = %d, %d, %d", len(planes[0]), len(planes[1]), len(planes[2]))
	}
	if strides != [3]int{4, 2, 2} {
		t.Errorf("strides = %v", strides)
	}
	if planes[0][0] != 0 || planes[1][0] != 16 || planes[2][0] != 20 {
		t.Error("planes must be consecutive views of the packed buffer")
	}
}

func TestSplitPlanesNV12(t *testing.T) {
	t.Parallel()
	const w, h = 4, 2
	packed := make([]byte, media.PixelFormatNV12.FrameSize(w, h))
	planes, strides := splitPlanes(packed, media.PixelFormatNV12, w, h)

	if len(planes[0]) != 8 || len(planes[1]) != 4 || planes[2] != nil {
		t.Fatalf("plane sizes = %d, %d, %v", len(planes[0]), len(planes[1]), planes[2])
	}
	if strides != [3]int{4, 4, 0} {
		t.Errorf("strides = %v", strides)
	}
}

func TestSplitPlanesRGB24(t *testing.T) {
	t.Parallel()
	const w, h = 3, 2
	packed := make([]byte, media.PixelFormatRGB24.FrameSize(w, h))
	planes, strides := splitPlanes(packed, media.PixelFormatRGB24, w, h)

	if len(planes[0]) != w*h*3 || planes[1] != nil || planes[2] != nil {
		t.Fatalf("unexpected planes %v", planes)
	}
	if strides[0] != w*3 {
		t.Errorf("stride = %d, want %d", strides[0], w*3)
	}
}

func TestSplitPlanesShortBuffer(t *testing.T) {
	t.Parallel()
	// A truncated buffer must not panic; trailing planes stay nil.
	planes, _ := splitPlanes(make([]byte, 10), media.PixelFormatYUV420P, 4, 4)
	if planes[0] != nil || planes[1] != nil || planes[2] != nil {
		t.Error("truncated buffer should yield no planes")
	}
}
