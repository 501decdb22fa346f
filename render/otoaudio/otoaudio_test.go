package otoaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/refract/media"
)

func pcmFrame(pts int64, size int) *media.AudioFrame {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i + 1)
	}
	return &media.AudioFrame{
		Data:       data,
		Samples:    size / 4,
		Channels:   2,
		SampleRate: 48000,
		BitDepth:   16,
		PTS:        pts,
		Duration:   int64(size/4) * 1_000_000 / 48000,
	}
}

func TestFeedStreamsFrameAndNotifies(t *testing.T) {
	t.Parallel()
	ff := newFrameFeed()
	frame := pcmFrame(0, 8)
	require.True(t, ff.submit(frame))

	buf := make([]byte, 8)
	n, err := ff.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, frame.Data, buf)

	select {
	case got := <-ff.consumed:
		assert.Same(t, frame, got, "consumed frame must be reported")
	default:
		t.Fatal("no consumption notification")
	}
}

func TestFeedSilenceWhenStarved(t *testing.T) {
	t.Parallel()
	ff := newFrameFeed()
	buf := []byte{1, 2, 3, 4}
	n, err := ff.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "starved reads must still satisfy the device")
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestFeedPartialReads(t *testing.T) {
	t.Parallel()
	ff := newFrameFeed()
	frame := pcmFrame(0, 6)
	require.True(t, ff.submit(frame))

	buf := make([]byte, 4)
	ff.Read(buf)
	assert.Equal(t, frame.Data[:4], buf)

	select {
	case <-ff.consumed:
		t.Fatal("frame must not be reported before fully consumed")
	default:
	}

	ff.Read(buf) // remaining 2 bytes + 2 of silence
	assert.Equal(t, frame.Data[4:6], buf[:2])
	assert.Equal(t, []byte{0, 0}, buf[2:])

	select {
	case got := <-ff.consumed:
		assert.Same(t, frame, got)
	default:
		t.Fatal("fully consumed frame must be reported")
	}
}

func TestFeedSingleSlot(t *testing.T) {
	t.Parallel()
	ff := newFrameFeed()
	require.True(t, ff.submit(pcmFrame(0, 4)))
	assert.False(t, ff.submit(pcmFrame(1, 4)), "pending slot holds one frame")

	// Consuming the first frame promotes nothing yet but frees the slot.
	ff.Read(make([]byte, 4))
	assert.True(t, ff.submit(pcmFrame(2, 4)))
}

func TestFeedChainsPendingFrame(t *testing.T) {
	t.Parallel()
	ff := newFrameFeed()
	a := pcmFrame(0, 4)
	b := pcmFrame(1, 4)
	require.True(t, ff.submit(a))

	buf := make([]byte, 4)
	ff.Read(buf)
	require.True(t, ff.submit(b))

	ff.Read(buf)
	assert.Equal(t, b.Data, buf, "pending frame must stream after the current one")
	assert.Len(t, ff.consumed, 2)
}

func TestFeedReset(t *testing.T) {
	t.Parallel()
	ff := newFrameFeed()
	require.True(t, ff.submit(pcmFrame(0, 4)))
	ff.reset()

	buf := []byte{9, 9}
	ff.Read(buf)
	assert.Equal(t, []byte{0, 0}, buf, "reset must drop queued PCM")
	assert.Empty(t, ff.consumed)
}

func TestRendererVolumeAndMuteWithoutDevice(t *testing.T) {
	t.Parallel()
	r := New(nil)

	assert.Equal(t, 1.0, r.Volume())
	r.SetVolume(0.5)
	assert.Equal(t, 0.5, r.Volume())
	r.SetVolume(2.0)
	assert.Equal(t, 1.0, r.Volume(), "volume clamps to [0,1]")
	r.SetVolume(-1)
	assert.Equal(t, 0.0, r.Volume())

	assert.False(t, r.Muted())
	r.SetMute(true)
	assert.True(t, r.Muted())
	r.SetMute(false)
	assert.False(t, r.Muted())
}

func TestRendererPlayBeforeInitFails(t *testing.T) {
	t.Parallel()
	r := New(nil)
	assert.False(t, r.Play(pcmFrame(0, 4)), "play before init must report not-ready")
}
