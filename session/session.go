// Package session drives one client conversation: it owns the push-channel
// subscription, the turn state machine, the outbound mic buffer and the
// capture of agent audio replies.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/room4-2/streamchat/audio"
	"github.com/room4-2/streamchat/messages"
	"github.com/room4-2/streamchat/stream"
)

var (
	// ErrNotConnected is returned when sending while the push channel is down
	ErrNotConnected = errors.New("not connected")
	// ErrQueueFull is returned when the outbound queue cannot take a message
	ErrQueueFull = errors.New("send queue full")
	// ErrClosed is returned by calls made after the session stopped
	ErrClosed = errors.New("session closed")
)

const (
	inboxSize   = 256
	sendTimeout = 10 * time.Second
)

// Sink delivers outbound envelopes
type Sink interface {
	Send(ctx context.Context, sessionID string, msg *messages.Message) error
}

// Exporter saves a completed audio reply and returns where it went
type Exporter interface {
	Export(pcm []byte) (string, error)
}

// Deps are the collaborators of a session. Player, Recorder and Exporter are optional.
type Deps struct {
	Source   stream.Source
	Sink     Sink
	Display  Display
	Player   audio.Player
	Recorder audio.Recorder
	Exporter Exporter
}

// Options tune session behavior
type Options struct {
	AudioMode      bool
	FlushInterval  time.Duration
	ReconnectDelay time.Duration
	AutoGreet      string // Sent once per connection when non-empty
	AutoGreetDelay time.Duration
	InputDevice    string
	MaxBufferSize  int
	CaptureLimit   int // Bytes kept for one exported reply; zero keeps all
	SendQueueSize  int
}

// DefaultOptions returns the stock cadence: 200ms flush, 5s reconnect
func DefaultOptions() Options {
	return Options{
		FlushInterval:  200 * time.Millisecond,
		ReconnectDelay: 5 * time.Second,
		AutoGreetDelay: time.Second,
		MaxBufferSize:  5 * 1024 * 1024,
		SendQueueSize:  256,
	}
}

// NewID mints a random numeric session id
func NewID() string {
	return strconv.FormatUint(uint64(uuid.New().ID()), 10)
}

// Session is one client conversation.
// All mutable state is owned by the Run loop; public methods post to it.
type Session struct {
	id   string
	deps Deps
	opts Options
	log  zerolog.Logger

	inbox     chan func()
	outbound  chan *messages.Message
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	// Owned by the Run loop
	ctx       context.Context
	audioMode bool
	connected bool
	gen       uint64
	sub       stream.Subscription
	turn      *turn
	frames    *AudioBuffer
	captured  *AudioBuffer
	capturing bool
	recording bool
	ticker    *time.Ticker
	reconnect *time.Timer
	greet     *time.Timer
}

// New creates a session; nothing happens until Run
func New(id string, deps Deps, opts Options, logger zerolog.Logger) *Session {
	defaults := DefaultOptions()
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaults.FlushInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaults.ReconnectDelay
	}
	if opts.AutoGreetDelay <= 0 {
		opts.AutoGreetDelay = defaults.AutoGreetDelay
	}
	if opts.MaxBufferSize <= 0 {
		opts.MaxBufferSize = defaults.MaxBufferSize
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaults.SendQueueSize
	}
	if deps.Display == nil {
		deps.Display = nopDisplay{}
	}

	return &Session{
		id:        id,
		deps:      deps,
		opts:      opts,
		log:       logger.With().Str("session", id).Logger(),
		inbox:     make(chan func(), inboxSize),
		outbound:  make(chan *messages.Message, opts.SendQueueSize),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		audioMode: opts.AudioMode,
		frames:    NewAudioBuffer(opts.MaxBufferSize),
		captured:  NewAudioBuffer(opts.CaptureLimit),
	}
}

// ID returns the session id shared by both endpoints
func (s *Session) ID() string {
	return s.id
}

// Run subscribes and processes events until ctx is canceled or Close is called
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sendPump(ctx)
	}()

	defer func() {
		s.shutdown()
		close(s.outbound)
		wg.Wait()
		s.log.Info().Msg("session stopped")
	}()

	s.log.Info().Bool("audio", s.audioMode).Msg("session started")
	s.connect()

	for {
		var tickC, reconnectC, greetC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.C
		}
		if s.reconnect != nil {
			reconnectC = s.reconnect.C
		}
		if s.greet != nil {
			greetC = s.greet.C
		}

		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case <-s.done:
			return nil
		case fn := <-s.inbox:
			fn()
		case <-tickC:
			s.flush()
		case <-reconnectC:
			s.reconnect = nil
			s.log.Info().Msg("reconnecting")
			s.connect()
		case <-greetC:
			s.greet = nil
			s.sendGreeting()
		}
	}
}

// Close stops the Run loop. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// SendText sends one user text message. Blank input is ignored.
func (s *Session) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.call(func() error {
		if !s.connected {
			return ErrNotConnected
		}
		s.deps.Display.Echo(text)
		if !s.enqueue(messages.NewTextMessage(text)) {
			return ErrQueueFull
		}
		return nil
	})
}

// SetAudioMode switches the reply modality. The current subscription is
// dropped without waiting and a new one opens at once.
func (s *Session) SetAudioMode(on bool) error {
	return s.call(func() error {
		if s.audioMode == on {
			return nil
		}
		s.audioMode = on
		s.log.Info().Bool("audio", on).Msg("switching mode")
		s.resubscribe()
		return nil
	})
}

// Reconnect drops the current subscription and opens a new one now
func (s *Session) Reconnect() error {
	return s.call(func() error {
		s.resubscribe()
		return nil
	})
}

// StartAudio starts microphone capture. Frames are buffered and sent
// on every flush tick.
func (s *Session) StartAudio() error {
	started := false
	if err := s.call(func() error {
		if !s.recording {
			s.recording = true
			started = true
		}
		return nil
	}); err != nil {
		return err
	}
	if !started || s.deps.Recorder == nil {
		return nil
	}

	if err := s.deps.Recorder.Start(s.opts.InputDevice, s.PushFrame); err != nil {
		_ = s.call(func() error {
			s.recording = false
			return nil
		})
		return fmt.Errorf("failed to start recording: %w", err)
	}
	s.log.Info().Str("device", s.opts.InputDevice).Msg("recording started")
	return nil
}

// StopAudio stops capture, sends whatever is still buffered and stops the flush ticker
func (s *Session) StopAudio() error {
	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("failed to stop recorder")
		}
	}
	return s.call(func() error {
		s.stopRecording()
		return nil
	})
}

// PushFrame hands one captured PCM frame to the session.
// The frame must not be modified afterwards.
func (s *Session) PushFrame(pcm []byte) {
	s.post(func() {
		s.bufferFrame(pcm)
	})
}

func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) call(fn func() error) error {
	errc := make(chan error, 1)
	if !s.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// connect opens a subscription for the current generation and mode
func (s *Session) connect() {
	s.gen++
	go s.subscribe(s.ctx, s.gen, s.audioMode)
}

func (s *Session) subscribe(ctx context.Context, gen uint64, audioMode bool) {
	sub, err := s.deps.Source.Subscribe(ctx, s.id, audioMode)
	if err != nil {
		s.post(func() { s.handleClosed(gen, err) })
		return
	}
	if !s.post(func() { s.handleOpen(gen, sub) }) {
		sub.Close()
		return
	}

	for {
		ev, err := sub.Next()
		if err != nil {
			if stream.IsDecodeError(err) {
				s.log.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			s.post(func() { s.handleClosed(gen, err) })
			return
		}
		if !s.post(func() { s.handleEvent(gen, ev) }) {
			return
		}
	}
}

// resubscribe abandons the current subscription and connects again
func (s *Session) resubscribe() {
	s.stopReconnect()
	s.stopGreet()
	s.dropSubscription()
	if s.connected {
		s.connected = false
		s.deps.Display.SendEnabled(false)
	}
	s.connect()
}

func (s *Session) dropSubscription() {
	if s.sub == nil {
		return
	}
	sub := s.sub
	s.sub = nil
	go sub.Close()
}

func (s *Session) handleOpen(gen uint64, sub stream.Subscription) {
	if gen != s.gen {
		go sub.Close()
		return
	}

	s.sub = sub
	s.connected = true
	s.log.Info().Bool("audio", s.audioMode).Msg("connection opened")
	s.deps.Display.Status("Connection opened")
	s.deps.Display.SendEnabled(true)

	if s.opts.AutoGreet != "" {
		s.stopGreet()
		s.greet = time.NewTimer(s.opts.AutoGreetDelay)
	}
}

func (s *Session) handleClosed(gen uint64, err error) {
	if gen != s.gen {
		return
	}

	s.dropSubscription()
	s.stopGreet()
	s.connected = false
	s.deps.Display.SendEnabled(false)
	s.deps.Display.Status("Connection closed")

	if s.ctx.Err() != nil {
		return
	}

	s.log.Warn().Err(err).Dur("retry_in", s.opts.ReconnectDelay).Msg("connection closed")
	s.stopReconnect()
	s.reconnect = time.NewTimer(s.opts.ReconnectDelay)
}

func (s *Session) handleEvent(gen uint64, ev *messages.Event) {
	if gen != s.gen {
		return
	}

	switch ev.Kind() {
	case messages.KindTurnComplete:
		s.completeTurn()
	case messages.KindInterrupted:
		s.interrupt()
	case messages.KindText:
		s.appendText(ev.Data)
	case messages.KindAudio:
		s.receiveAudio(ev)
	default:
		s.log.Debug().Str("mime_type", ev.MimeType).Msg("ignoring event")
	}
}

func (s *Session) appendText(text string) {
	if s.turn == nil {
		s.turn = &turn{}
	}
	if !s.turn.displayed {
		s.turn.displayed = true
		s.deps.Display.BeginTurn()
	}
	s.turn.state = TurnReceivingText
	s.turn.text.WriteString(text)
	s.deps.Display.AppendText(text)
}

func (s *Session) receiveAudio(ev *messages.Event) {
	pcm, err := ev.PCM()
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping audio event")
		return
	}

	if s.turn == nil {
		s.turn = &turn{}
	}
	s.turn.state = TurnReceivingAudio

	// First chunk of a reply starts a fresh capture
	if !s.capturing {
		s.captured.Clear()
		s.capturing = true
	}
	if err := s.captured.Append(pcm); err != nil {
		s.log.Warn().Err(err).Int("bytes", len(pcm)).Msg("capture buffer full, chunk not saved")
	}

	if s.deps.Player != nil {
		if err := s.deps.Player.Play(pcm); err != nil {
			s.log.Warn().Err(err).Msg("playback failed")
		}
	}
}

// interrupt stops playback. Bytes captured so far are kept and exported
// with the rest of the reply at the next turn_complete.
func (s *Session) interrupt() {
	s.log.Debug().Msg("interrupted")
	if s.deps.Player != nil {
		s.deps.Player.EndOfAudio()
	}
	if s.turn == nil || s.turn.state != TurnReceivingAudio {
		return
	}
	if s.turn.displayed {
		s.turn.state = TurnReceivingText
		return
	}
	s.turn = nil
}

func (s *Session) completeTurn() {
	if s.turn != nil {
		if s.turn.displayed {
			s.deps.Display.EndTurn()
		}
		if s.turn.text.Len() > 0 {
			s.log.Debug().Str("text", s.turn.text.String()).Msg("turn complete")
		}
		s.turn = nil
	}

	if !s.capturing {
		return
	}
	s.capturing = false
	pcm := s.captured.Flush()
	if len(pcm) == 0 || s.deps.Exporter == nil {
		return
	}

	path, err := s.deps.Exporter.Export(pcm)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to export audio reply")
		return
	}
	s.log.Info().Str("path", path).Int("bytes", len(pcm)).Msg("saved audio reply")
	s.deps.Display.AudioSaved(path)
}

func (s *Session) bufferFrame(pcm []byte) {
	if !s.recording {
		return
	}
	if err := s.frames.Append(pcm); err != nil {
		s.log.Warn().Err(err).Int("bytes", len(pcm)).Msg("dropping mic frame")
		return
	}
	// The ticker starts with the first frame
	if s.ticker == nil {
		s.ticker = time.NewTicker(s.opts.FlushInterval)
	}
}

// flush drains the frame buffer into one audio message
func (s *Session) flush() {
	if s.frames.IsEmpty() {
		return
	}
	chunks := s.frames.Chunks()
	pcm := s.frames.Flush()
	if s.enqueue(messages.NewAudioMessage(pcm)) {
		s.log.Debug().Int("bytes", len(pcm)).Int("chunks", chunks).Msg("queued mic audio")
	}
}

func (s *Session) stopRecording() {
	if !s.recording {
		return
	}
	s.recording = false
	s.flush()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.log.Info().Msg("recording stopped")
}

func (s *Session) sendGreeting() {
	if !s.connected {
		return
	}
	if s.enqueue(messages.NewTextMessage(s.opts.AutoGreet)) {
		s.log.Info().Str("text", s.opts.AutoGreet).Msg("auto-greet sent")
	}
}

// enqueue hands a message to the send worker without blocking
func (s *Session) enqueue(msg *messages.Message) bool {
	select {
	case s.outbound <- msg:
		return true
	default:
		s.log.Warn().Str("mime_type", msg.MimeType).Msg("send queue full, dropping message")
		return false
	}
}

// sendPump delivers queued messages in order, one at a time.
// Failures are logged and never retried.
func (s *Session) sendPump(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for msg := range s.outbound {
		sendCtx, cancel := context.WithTimeout(base, sendTimeout)
		err := s.deps.Sink.Send(sendCtx, s.id, msg)
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("mime_type", msg.MimeType).Msg("failed to send message")
			continue
		}
		s.log.Debug().Str("mime_type", msg.MimeType).Int("size", len(msg.Data)).Msg("message sent")
	}
}

func (s *Session) stopReconnect() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

func (s *Session) stopGreet() {
	if s.greet != nil {
		s.greet.Stop()
		s.greet = nil
	}
}

// shutdown runs on the loop goroutine after it stops
func (s *Session) shutdown() {
	if s.recording && s.deps.Recorder != nil {
		if err := s.deps.Recorder.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("failed to stop recorder")
		}
	}
	s.stopRecording()
	s.stopReconnect()
	s.stopGreet()
	s.gen++
	s.dropSubscription()
	s.connected = false
}
