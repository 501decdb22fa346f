// Command refract plays a media source: a local file, a network URL the
// demuxing library understands, or a live SRT publisher accepted by the
// built-in ingest listener.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/refract/ingest"
	srtingest "github.com/zsiec/refract/ingest/srt"
	"github.com/zsiec/refract/internal/logging"
	"github.com/zsiec/refract/media"
	"github.com/zsiec/refract/player"
	"github.com/zsiec/refract/render"
	"github.com/zsiec/refract/render/otoaudio"
	"github.com/zsiec/refract/render/sdlvideo"
)

var version = "dev"

type playOptions struct {
	volume    float64
	mute      bool
	rate      float64
	loop      bool
	noAudio   bool
	noVideo   bool
	listenSRT string
	title     string
}

func main() {
	opts := &playOptions{}

	root := &cobra.Command{
		Use:           "refract",
		Short:         "refract is a pipeline media player",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	play := &cobra.Command{
		Use:   "play [url]",
		Short: "Play a media source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.listenSRT == "" {
				return fmt.Errorf("either a source url or --listen-srt is required")
			}
			url := ""
			if len(args) > 0 {
				url = args[0]
			}
			return run(url, opts)
		},
	}

	play.Flags().Float64Var(&opts.volume, "volume", 1.0, "audio gain in [0,1]")
	play.Flags().BoolVar(&opts.mute, "mute", false, "start muted")
	play.Flags().Float64Var(&opts.rate, "rate", 1.0, "playback rate (best effort)")
	play.Flags().BoolVar(&opts.loop, "loop", false, "restart finite sources on end of file")
	play.Flags().BoolVar(&opts.noAudio, "no-audio", false, "discard audio")
	play.Flags().BoolVar(&opts.noVideo, "no-video", false, "discard video")
	play.Flags().StringVar(&opts.listenSRT, "listen-srt", envOr("SRT_ADDR", ""), "accept a live SRT publisher on this address instead of opening a url")
	play.Flags().StringVar(&opts.title, "title", "refract", "video window title")
	root.AddCommand(play)

	if err := root.Execute(); err != nil {
		slog.Error("refract failed", "error", err)
		os.Exit(1)
	}
}

func run(url string, opts *playOptions) error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logging.Setup(level)
	log := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var audioSink render.AudioSink
	if !opts.noAudio {
		audioSink = otoaudio.New(log)
	}
	var videoSink render.VideoSink
	if !opts.noVideo {
		videoSink = sdlvideo.New(opts.title, log)
	}

	done := make(chan struct{})
	cb := &cliCallback{log: log, done: done}

	cfg := player.Config{
		Callback:  cb,
		AudioSink: audioSink,
		VideoSink: videoSink,
		Loop:      opts.loop,
		Log:       log,
	}

	if opts.listenSRT != "" {
		return runSRT(ctx, cfg, opts, done, log)
	}

	p := player.New(cfg)
	if err := p.Open(url); err != nil {
		return err
	}
	defer p.Close()

	p.SetVolume(opts.volume)
	p.SetMute(opts.mute)
	if opts.rate != 1.0 {
		p.SetRate(opts.rate)
	}

	if err := p.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	return p.Stop()
}

// runSRT serves one SRT publisher at a time, playing each accepted session
// until it disconnects or the process is signaled.
func runSRT(ctx context.Context, cfg player.Config, opts *playOptions, done chan struct{}, log *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	listener := srtingest.NewListener(opts.listenSRT, log)
	g.Go(func() error {
		return listener.Run(ctx)
	})

	g.Go(func() error {
		for {
			s, err := listener.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := playSession(ctx, cfg, opts, s, done, log); err != nil {
				log.Error("session playback failed", "key", s.Key, "error", err)
			}
		}
	})

	log.Info("waiting for SRT publisher", "addr", opts.listenSRT)
	return g.Wait()
}

func playSession(ctx context.Context, cfg player.Config, opts *playOptions, s *ingest.Session, done chan struct{}, log *slog.Logger) error {
	log.Info("playing ingest session", "key", s.Key, "session", s.ID)

	cfg.Open = player.ReaderOpen(s.Reader(), log)
	p := player.New(cfg)
	if err := p.Open("srt:" + s.Key); err != nil {
		return err
	}
	defer p.Close()

	p.SetVolume(opts.volume)
	p.SetMute(opts.mute)

	if err := p.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.Done():
		log.Info("publisher disconnected", "key", s.Key)
	case <-done:
	}
	return p.Stop()
}

// cliCallback logs player events and closes done on terminal states.
type cliCallback struct {
	player.NopCallback
	log      *slog.Logger
	done     chan struct{}
	doneOnce sync.Once
}

func (c *cliCallback) OnStateChanged(s player.State) {
	c.log.Info("player state", "state", s.String())
	if s == player.StateCompleted || s == player.StateError {
		c.doneOnce.Do(func() { close(c.done) })
	}
}

func (c *cliCallback) OnProgress(position, duration float64) {
	c.log.Debug("progress", "position_s", position, "duration_s", duration)
}

func (c *cliCallback) OnError(err media.Error) {
	c.log.Error("player error", "code", int(err.Code), "message", err.Message)
}

func (c *cliCallback) OnMediaInfo(info media.Info) {
	c.log.Info("media info",
		"type", info.Type.String(),
		"duration_ms", info.DurationMs,
		"video", fmt.Sprintf("%dx%d", info.VideoWidth, info.VideoHeight),
		"audio_rate", info.AudioSampleRate,
		"audio_channels", info.AudioChannels,
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
