// Command replay streams a recorded utterance to the agent as if it came
// from the microphone and waits for the reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/room4-2/streamchat/audio"
	"github.com/room4-2/streamchat/config"
	"github.com/room4-2/streamchat/logging"
	"github.com/room4-2/streamchat/sender"
	"github.com/room4-2/streamchat/session"
	"github.com/room4-2/streamchat/stream"
	"github.com/room4-2/streamchat/ui"
)

const (
	micSampleRate = 16000
	frameBytes    = 3200 // 100ms at 16kHz
	framePace     = 100 * time.Millisecond
)

// replayDisplay prints like the console and reports connection and turn end
type replayDisplay struct {
	*ui.Console
	connected chan struct{}
	finished  chan struct{}
	connOnce  sync.Once
	doneOnce  sync.Once
}

func (d *replayDisplay) SendEnabled(enabled bool) {
	d.Console.SendEnabled(enabled)
	if enabled {
		d.connOnce.Do(func() { close(d.connected) })
	}
}

func (d *replayDisplay) EndTurn() {
	d.Console.EndTurn()
	d.doneOnce.Do(func() { close(d.finished) })
}

func (d *replayDisplay) AudioSaved(path string) {
	d.Console.AudioSaved(path)
	d.doneOnce.Do(func() { close(d.finished) })
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	serverURL := flag.String("server", cfg.ServerURL, "agent server base URL")
	audioFile := flag.String("file", "examples/user.pcm", "audio file to send (16kHz mono PCM or WAV)")
	audioReplies := flag.Bool("audio", true, "ask for spoken replies")
	mute := flag.Bool("mute", false, "do not play replies")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to wait for the reply")
	flag.Parse()

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	pcm, err := loadAudioFile(*audioFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *audioFile).Msg("failed to load audio")
	}

	source, err := stream.NewSSESource(*serverURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid server URL")
	}
	sink, err := sender.New(*serverURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid server URL")
	}

	display := &replayDisplay{
		Console:   ui.NewConsole(os.Stdout),
		connected: make(chan struct{}),
		finished:  make(chan struct{}),
	}
	deps := session.Deps{
		Source:   source,
		Sink:     sink,
		Display:  display,
		Exporter: audio.NewExporter(cfg.CaptureDir),
	}
	if !*mute {
		player, err := audio.NewSoxPlayer(cfg.PlaybackSampleRate)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create audio player")
		}
		defer player.Close()
		deps.Player = player
	}

	opts := session.DefaultOptions()
	opts.AudioMode = *audioReplies
	opts.FlushInterval = cfg.FlushInterval
	sess := session.New(session.NewID(), deps, opts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		sess.Run(ctx)
	}()

	select {
	case <-display.connected:
	case <-time.After(10 * time.Second):
		logger.Fatal().Msg("timed out connecting")
	case <-ctx.Done():
		return
	}

	logger.Info().Int("bytes", len(pcm)).Msg("sending audio")
	if err := sess.StartAudio(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start audio")
	}

	// Pace frames like a live microphone
	for i := 0; i < len(pcm); i += frameBytes {
		end := min(i+frameBytes, len(pcm))
		sess.PushFrame(pcm[i:end])
		time.Sleep(framePace)
	}
	if err := sess.StopAudio(); err != nil {
		logger.Error().Err(err).Msg("failed to stop audio")
	}

	logger.Info().Msg("audio sent, waiting for response")

	select {
	case <-display.finished:
		logger.Info().Msg("turn complete")
	case <-ctx.Done():
		logger.Info().Msg("interrupted")
	case <-time.After(*timeout):
		logger.Warn().Msg("timeout waiting for response")
	}

	sess.Close()
	<-runDone
}

// loadAudioFile loads a PCM or WAV file and returns raw 16kHz PCM
func loadAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !audio.IsWAV(data) {
		return data, nil
	}

	pcm, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if rate != micSampleRate {
		return nil, fmt.Errorf("WAV sample rate is %d Hz, expected %d", rate, micSampleRate)
	}
	return pcm, nil
}
