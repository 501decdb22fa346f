// Package ingest exposes pushed live streams to the playback pipeline. A
// Session couples one publisher connection with an io.Pipe: the transport
// listener writes payloads into the session, and the demuxer consumes the
// read side through FFmpeg custom IO. The player handles a single live
// source, so there is no stream registry; transports hand over at most one
// session at a time.
package ingest

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stats is a snapshot of a session's transfer counters.
type Stats struct {
	BytesReceived int64
	Payloads      int64
	UptimeMs      int64
	RemoteAddr    string
}

// Session is one publisher's byte stream. It implements io.Writer for the
// receiving transport; Reader returns the side the demuxer consumes.
// Closing the session ends both.
type Session struct {
	ID         string
	Key        string
	RemoteAddr string
	StartedAt  time.Time

	pr *io.PipeReader
	pw *io.PipeWriter

	done      chan struct{}
	closeOnce sync.Once

	bytes    atomic.Int64
	payloads atomic.Int64
}

// NewSession creates a session for a publisher identified by key,
// connected from remoteAddr.
func NewSession(key, remoteAddr string) *Session {
	pr, pw := io.Pipe()
	return &Session{
		ID:         uuid.NewString(),
		Key:        key,
		RemoteAddr: remoteAddr,
		StartedAt:  time.Now(),
		pr:         pr,
		pw:         pw,
		done:       make(chan struct{}),
	}
}

// Write delivers one transport payload to the demuxer side and advances the
// transfer counters. It blocks until the demuxer has consumed the bytes and
// fails once the session is closed.
func (s *Session) Write(p []byte) (int, error) {
	n, err := s.pw.Write(p)
	s.bytes.Add(int64(n))
	if n > 0 {
		s.payloads.Add(1)
	}
	return n, err
}

// Reader returns the byte stream the demuxer consumes. Reads return EOF
// once the session is closed.
func (s *Session) Reader() io.Reader { return s.pr }

// Done is closed when the publisher disconnects or the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close ends the session. Closing the write side fails any in-flight
// transport write and drains the demuxer side to a clean EOF. Safe to call
// repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.pw.Close()
		close(s.done)
	})
}

// Stats returns a snapshot of the session's transfer counters.
func (s *Session) Stats() Stats {
	return Stats{
		BytesReceived: s.bytes.Load(),
		Payloads:      s.payloads.Load(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    s.RemoteAddr,
	}
}
