package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/room4-2/streamchat/audio"
	"github.com/room4-2/streamchat/config"
	"github.com/room4-2/streamchat/logging"
	"github.com/room4-2/streamchat/sender"
	"github.com/room4-2/streamchat/session"
	"github.com/room4-2/streamchat/stream"
	"github.com/room4-2/streamchat/ui"
)

const tuiLogPath = "streamchat.log"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	serverURL := flag.String("server", cfg.ServerURL, "agent server base URL")
	transport := flag.String("transport", cfg.Transport, "push channel: sse or websocket")
	audioMode := flag.Bool("audio", cfg.AudioMode, "ask for spoken replies")
	captureDir := flag.String("capture-dir", cfg.CaptureDir, "directory for exported audio replies")
	sessionID := flag.String("id", "", "session id (random when empty)")
	useTUI := flag.Bool("tui", true, "full-screen interface; false reads lines from stdin")
	listDevices := flag.Bool("devices", false, "list audio devices and exit")
	flag.Parse()

	cfg.ServerURL = *serverURL
	cfg.Transport = *transport
	cfg.AudioMode = *audioMode
	cfg.CaptureDir = *captureDir

	// The full-screen UI owns the terminal, so logs go to a file
	logPath := cfg.LogPath
	if *useTUI && logPath == "" {
		logPath = tuiLogPath
	}
	logger, closer, err := logging.New(cfg.LogLevel, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	audioCtx, err := audio.NewContext()
	if err != nil {
		logger.Warn().Err(err).Msg("audio backend unavailable, microphone disabled")
	} else {
		defer audioCtx.Close()
	}

	if *listDevices {
		if audioCtx == nil {
			fmt.Fprintln(os.Stderr, "no audio backend")
			os.Exit(1)
		}
		printDevices(audioCtx)
		return
	}

	if err := run(cfg, *sessionID, *useTUI, audioCtx, logger); err != nil {
		logger.Error().Err(err).Msg("client stopped with error")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, id string, useTUI bool, audioCtx *audio.Context, logger zerolog.Logger) error {
	source, err := newSource(cfg)
	if err != nil {
		return err
	}
	sink, err := sender.New(cfg.ServerURL, nil)
	if err != nil {
		return err
	}

	deps := session.Deps{
		Source:   source,
		Sink:     sink,
		Exporter: audio.NewExporter(cfg.CaptureDir),
	}

	inputDevice := ""
	if audioCtx != nil {
		recorder := audioCtx.NewRecorder(cfg.MicSampleRate)
		defer recorder.Close()
		deps.Recorder = recorder
		inputDevice = pickInput(audioCtx, cfg.InputDevice, logger)
	}

	player, err := newPlayer(cfg, audioCtx)
	if err != nil {
		logger.Warn().Err(err).Msg("playback unavailable, audio replies will only be saved")
	} else {
		defer player.Close()
		deps.Player = player
	}

	if id == "" {
		id = session.NewID()
	}
	opts := session.Options{
		AudioMode:      cfg.AudioMode,
		FlushInterval:  cfg.FlushInterval,
		ReconnectDelay: cfg.ReconnectDelay,
		AutoGreet:      cfg.AutoGreet,
		AutoGreetDelay: cfg.AutoGreetDelay,
		InputDevice:    inputDevice,
		MaxBufferSize:  cfg.MaxBufferSize,
		SendQueueSize:  cfg.SendQueueSize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("session", id).
		Str("server", cfg.ServerURL).
		Str("transport", cfg.Transport).
		Bool("audio", cfg.AudioMode).
		Msg("starting client")

	if useTUI {
		tui := ui.NewTUI(cfg.AudioMode)
		deps.Display = tui
		sess := session.New(id, deps, opts, logger)

		sessDone := make(chan struct{})
		go func() {
			defer close(sessDone)
			if err := sess.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("session stopped")
			}
			tui.Quit()
		}()

		err := tui.Run(sess)
		sess.Close()
		<-sessDone
		return err
	}

	console := ui.NewConsole(os.Stdout)
	deps.Display = console
	sess := session.New(id, deps, opts, logger)

	runErr := make(chan error, 1)
	go func() {
		runErr <- sess.Run(ctx)
	}()

	// Scanning stdin cannot be interrupted, so the session may end first
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		if err := console.Run(ctx, os.Stdin, sess); err != nil {
			logger.Warn().Err(err).Msg("input closed")
		}
	}()

	fmt.Printf("Session %s. Type a message, or /audio on|off, /mic start|stop, /reconnect, /quit\n", id)

	select {
	case err := <-runErr:
		return err
	case <-inputDone:
		sess.Close()
		return <-runErr
	}
}

func newSource(cfg *config.Config) (stream.Source, error) {
	if cfg.Transport == config.TransportWebsocket {
		return stream.NewWebSocketSource(cfg.ServerURL, nil)
	}
	return stream.NewSSESource(cfg.ServerURL, nil)
}

func newPlayer(cfg *config.Config, audioCtx *audio.Context) (audio.Player, error) {
	if cfg.Player == config.PlayerSox || audioCtx == nil {
		return audio.NewSoxPlayer(cfg.PlaybackSampleRate)
	}

	deviceID := ""
	if cfg.OutputDevice != "" {
		devices, err := audioCtx.Devices(audio.DeviceOutput)
		if err != nil {
			return nil, err
		}
		dev, ok := audio.SelectDevice(devices, cfg.OutputDevice)
		if !ok {
			return nil, fmt.Errorf("output device %q not found", cfg.OutputDevice)
		}
		deviceID = dev.ID
	}
	return audioCtx.NewPlayer(deviceID, cfg.PlaybackSampleRate)
}

// pickInput resolves the configured microphone, skipping virtual devices
// when none is named. An empty result means the system default.
func pickInput(audioCtx *audio.Context, want string, logger zerolog.Logger) string {
	devices, err := audioCtx.Devices(audio.DeviceInput)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list input devices")
		return ""
	}
	dev, ok := audio.SelectDevice(devices, want)
	if !ok {
		if want != "" {
			logger.Warn().Str("device", want).Msg("input device not found, using default")
		}
		return ""
	}
	logger.Info().Str("device", dev.Label).Msg("using input device")
	return dev.ID
}

func printDevices(audioCtx *audio.Context) {
	for _, kind := range []audio.DeviceKind{audio.DeviceInput, audio.DeviceOutput} {
		devices, err := audioCtx.Devices(kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list %s devices: %v\n", kind, err)
			continue
		}
		fmt.Printf("%s devices:\n", kind)
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("  %s %s  [%s]\n", marker, d.Label, d.ID)
		}
	}
}
