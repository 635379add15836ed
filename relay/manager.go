package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/room4-2/streamchat/config"
)

// ErrMaxSessions is returned when the relay is at capacity
var ErrMaxSessions = errors.New("maximum sessions reached")

// Manager tracks sessions by client-supplied id
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	registry Registry // nil when Redis is unavailable
	dial     Dialer
	gateCfg  GateConfig
	cfg      *config.RelayConfig
	log      zerolog.Logger
}

// NewManager creates a session manager. A nil registry keeps sessions in memory only.
func NewManager(cfg *config.RelayConfig, dial Dialer, registry Registry, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		registry: registry,
		dial:     dial,
		gateCfg: GateConfig{
			SilenceRMS:        cfg.SilenceRMS,
			SilenceChunks:     cfg.SilenceChunks,
			MinUtteranceBytes: cfg.MinUtteranceBytes,
			MaxBufferSize:     cfg.MaxBufferSize,
		},
		cfg: cfg,
		log: logger.With().Str("component", "manager").Logger(),
	}
}

// Open starts a session for id. A session already open under the same id
// is replaced, so a reconnecting client resumes under its own id.
func (m *Manager) Open(ctx context.Context, id string, audio bool) (*Session, error) {
	m.mu.Lock()
	old, replacing := m.sessions[id]
	if !replacing && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrMaxSessions
	}
	m.mu.Unlock()

	if replacing {
		m.log.Info().Str("session", id).Msg("replacing existing session")
		m.Remove(ctx, old)
	}

	s, err := NewSession(ctx, id, audio, m.dial, m.gateCfg, m.log)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		s.Close()
		return nil, ErrMaxSessions
	}
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if m.registry != nil {
		if err := m.registry.Register(ctx, s); err != nil {
			m.log.Warn().Err(err).Str("session", id).Msg("registry write failed")
		}
	}

	m.log.Info().Str("session", id).Bool("audio", audio).Int("active", count).Msg("session opened")
	return s, nil
}

// Get retrieves a session by ID
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	return s, exists
}

// Touch records activity in the registry
func (m *Manager) Touch(ctx context.Context, id string) {
	if m.registry == nil {
		return
	}
	if err := m.registry.Touch(ctx, id); err != nil {
		m.log.Warn().Err(err).Str("session", id).Msg("registry write failed")
	}
}

// Remove closes s and forgets it, unless a newer session took its id
func (m *Manager) Remove(ctx context.Context, s *Session) {
	s.Close()

	m.mu.Lock()
	current, exists := m.sessions[s.ID]
	owned := exists && current == s
	if owned {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()

	if !owned {
		return
	}

	if m.registry != nil {
		if err := m.registry.Unregister(ctx, s.ID); err != nil {
			m.log.Warn().Err(err).Str("session", s.ID).Msg("registry delete failed")
		}
	}
	m.log.Info().Str("session", s.ID).Msg("session removed")
}

// Count returns current session count
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupInactive removes sessions idle for longer than the session timeout
func (m *Manager) CleanupInactive(ctx context.Context) {
	now := time.Now()

	var stale []*Session
	m.mu.RLock()
	for _, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.cfg.SessionTimeout {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range stale {
		m.log.Info().Str("session", s.ID).Msg("closing inactive session")
		m.Remove(ctx, s)
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupInactive(ctx)
		}
	}
}

// Shutdown closes all sessions
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.Remove(ctx, s)
	}

	if m.registry != nil {
		m.registry.Close()
	}
}
