// Package relay bridges client sessions to a live agent: inbound client
// messages go to the agent, agent replies fan out as push-channel events.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/room4-2/streamchat/messages"
)

const eventBufferSize = 256

// ErrSessionClosed is returned when handling a message after Close
var ErrSessionClosed = errors.New("session closed")

// Agent is the live model behind one session
type Agent interface {
	SendText(text string) error
	SendAudioBatch(pcm []byte) error
	Close() error
}

// Handlers receive agent output
type Handlers struct {
	OnText        func(text string)
	OnAudio       func(pcm []byte)
	OnComplete    func()
	OnInterrupted func()
	OnError       func(err error)
}

// Dialer opens an agent whose replies are audio when audio is true
type Dialer func(ctx context.Context, audio bool, h Handlers) (Agent, error)

// Session is one client's agent conversation
type Session struct {
	ID        string
	AudioMode bool
	CreatedAt time.Time

	agent Agent
	gate  *SilenceGate
	log   zerolog.Logger

	events chan *messages.Event

	mu           sync.RWMutex
	lastActivity time.Time
	closed       bool
	closeChan    chan struct{}
	gateMu       sync.Mutex
}

// NewSession dials the agent and wires its output into the event stream
func NewSession(ctx context.Context, id string, audio bool, dial Dialer, gateCfg GateConfig, logger zerolog.Logger) (*Session, error) {
	s := &Session{
		ID:           id,
		AudioMode:    audio,
		CreatedAt:    time.Now(),
		lastActivity: time.Now(),
		gate:         NewSilenceGate(gateCfg),
		log:          logger.With().Str("session", id).Logger(),
		events:       make(chan *messages.Event, eventBufferSize),
		closeChan:    make(chan struct{}),
	}

	agent, err := dial(ctx, audio, Handlers{
		OnText: func(text string) {
			s.queueEvent(messages.NewTextEvent(text))
		},
		OnAudio: func(pcm []byte) {
			s.queueEvent(messages.NewAudioEvent(pcm))
		},
		OnComplete: func() {
			s.queueEvent(messages.NewTurnSignal(true, false))
		},
		OnInterrupted: func() {
			s.queueEvent(messages.NewTurnSignal(false, true))
		},
		OnError: func(err error) {
			s.log.Error().Err(err).Msg("agent error, closing session")
			s.Close()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}
	s.agent = agent
	return s, nil
}

// Events yields agent output for the push channel
func (s *Session) Events() <-chan *messages.Event {
	return s.events
}

// Done is closed when the session ends
func (s *Session) Done() <-chan struct{} {
	return s.closeChan
}

// LastActivity returns when the session last saw traffic
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// queueEvent adds an event to the push queue (non-blocking).
// Agent output counts as activity so listen-only clients stay open.
func (s *Session) queueEvent(ev *messages.Event) {
	s.touch()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("kind", ev.Kind().String()).Msg("event queue full, dropping event")
	}
}

// HandleMessage routes one client message to the agent.
// Text goes straight through; audio is batched by the silence gate.
func (s *Session) HandleMessage(msg *messages.Message) error {
	if s.IsClosed() {
		return ErrSessionClosed
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	s.touch()

	switch msg.MimeType {
	case messages.MimeText:
		s.log.Info().Str("text", msg.Data).Msg("client to agent")
		return s.agent.SendText(msg.Data)

	case messages.MimePCM:
		pcm, err := msg.PCM()
		if err != nil {
			return err
		}
		return s.handleAudio(pcm)
	}
	return nil
}

func (s *Session) handleAudio(pcm []byte) error {
	s.gateMu.Lock()
	utterance, result, err := s.gate.Push(pcm)
	s.gateMu.Unlock()

	switch result {
	case GateOverflow:
		s.log.Warn().Err(err).Msg("utterance too long, discarded")
		return nil
	case GateTooShort:
		s.log.Debug().Int("bytes", len(utterance)).Msg("utterance too short, skipped")
		return nil
	case GateUtterance:
		s.log.Info().Int("bytes", len(utterance)).Msg("sending utterance to agent")
		return s.agent.SendAudioBatch(utterance)
	}
	return nil
}

// IsClosed returns whether the session is closed
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close ends the agent conversation
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeChan)
	s.mu.Unlock()

	if s.agent != nil {
		if err := s.agent.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close agent")
		}
	}
	return nil
}
