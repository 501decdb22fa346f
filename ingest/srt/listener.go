// Package srt exposes SRT publishers as ingest sessions, one at a time.
// The player consumes a single live source, so the listener serves exactly
// one publisher and rejects the rest during the SRT handshake; a new
// publisher is admitted once the previous one disconnects.
package srt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/refract/ingest"
)

// srtPayloadSize is the canonical SRT live payload: seven 188-byte MPEG-TS
// packets.
const srtPayloadSize = 1316

// Listener accepts SRT publishers and hands each over as an ingest.Session.
// Run drives the socket; Accept delivers sessions to the player loop.
type Listener struct {
	log      *slog.Logger
	addr     string
	sessions chan *ingest.Session
	busy     atomic.Bool
}

// NewListener creates a listener for addr. If log is nil, slog.Default()
// is used.
func NewListener(addr string, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		log:      log.With("component", "srt-listener"),
		addr:     addr,
		sessions: make(chan *ingest.Session),
	}
}

// Accept blocks until the next publisher connects or the context ends.
func (l *Listener) Accept(ctx context.Context) (*ingest.Session, error) {
	select {
	case s := <-l.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run listens on the configured address and serves publishers until the
// context ends. Publishers arriving while one is being served are rejected
// at the handshake.
func (l *Listener) Run(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = 120_000_000 // 120 ms receive latency

	sock, err := srtgo.Listen(l.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", l.addr, err)
	}
	l.log.Info("listening", "addr", l.addr)

	sock.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		// One publisher at a time; the player has a single pipeline.
		if l.busy.Load() {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	for {
		conn, err := sock.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warn("accept failed", "error", err)
			continue
		}
		l.serve(ctx, conn)
	}
}

// serve pumps one publisher's payloads into a fresh session until the
// connection drops or the context ends. It runs on the accept loop, which
// is what enforces the one-publisher-at-a-time model.
func (l *Listener) serve(ctx context.Context, conn *srtgo.Conn) {
	l.busy.Store(true)
	defer l.busy.Store(false)
	defer conn.Close()

	session := ingest.NewSession(sessionKey(conn.StreamID()), conn.RemoteAddr().String())
	defer session.Close()

	l.log.Info("publisher connected", "key", session.Key, "remote", session.RemoteAddr)

	select {
	case l.sessions <- session:
	case <-ctx.Done():
		return
	}

	// The session is an io.Writer with its own counters; the pump is a
	// plain copy. It ends when the publisher disconnects, or when the
	// player abandons the session and the pipe write fails.
	buf := make([]byte, 8*srtPayloadSize)
	if _, err := io.CopyBuffer(session, conn, buf); err != nil && ctx.Err() == nil {
		l.log.Debug("pump ended", "key", session.Key, "error", err)
	}

	stats := session.Stats()
	l.log.Info("publisher disconnected", "key", session.Key,
		"bytes", stats.BytesReceived, "payloads", stats.Payloads,
		"uptime_ms", stats.UptimeMs)
}

// sessionKey derives a session key from the SRT stream ID: the last
// non-empty path segment, or "publisher" when the ID carries none.
func sessionKey(streamID string) string {
	parts := strings.Split(streamID, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return "publisher"
}
