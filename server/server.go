package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/room4-2/streamchat/config"
	"github.com/room4-2/streamchat/messages"
	"github.com/room4-2/streamchat/relay"
)

const (
	maxSendBody  = 2 * 1024 * 1024
	writeTimeout = 10 * time.Second
)

type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	manager    *relay.Manager
	config     *config.RelayConfig
	log        zerolog.Logger
}

func New(cfg *config.RelayConfig, manager *relay.Manager, logger zerolog.Logger) *Server {
	s := &Server{
		manager: manager,
		config:  cfg,
		log:     logger.With().Str("component", "server").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:    64 * 1024, // 64KB for audio chunks
		WriteBufferSize:   64 * 1024,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /events/{id}", s.handleEvents)
	mux.HandleFunc("GET /ws/{id}", s.handleWebSocket)
	mux.HandleFunc("POST /send/{id}", s.handleSend)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.cors(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: event streams stay open for the whole session
	}

	return s
}

// Handler returns the routed handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for connections
func (s *Server) Start() error {
	s.log.Info().Int("port", s.config.Port).Msg("relay server starting")
	s.log.Info().Msgf("event stream: http://localhost:%d/events/{id}", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	s.manager.Shutdown(ctx)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionID validates the numeric id in the path
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, messages.NewErrorReply("session id must be numeric"))
		return "", false
	}
	return id, true
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request, id string) (*relay.Session, bool) {
	audio := r.URL.Query().Get("is_audio") == "true"

	sess, err := s.manager.Open(r.Context(), id, audio)
	if err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("failed to open session")
		status := http.StatusBadGateway
		if errors.Is(err, relay.ErrMaxSessions) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, messages.NewErrorReply(err.Error()))
		return nil, false
	}
	return sess, true
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess, ok := s.openSession(w, r, id)
	if !ok {
		return
	}
	defer s.manager.Remove(context.WithoutCancel(r.Context()), sess)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.log.Info().Str("session", id).Bool("audio", sess.AudioMode).Msg("client connected via SSE")

	keepalive := time.NewTicker(s.config.KeepAlivePeriod)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.Info().Str("session", id).Msg("client disconnected from SSE")
			return
		case <-sess.Done():
			return
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-sess.Events():
			if err := writeSSE(w, ev); err != nil {
				s.log.Warn().Err(err).Str("session", id).Msg("SSE write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, ev *messages.Event) error {
	data, err := messages.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	sess, ok := s.openSession(w, r, id)
	if !ok {
		return
	}
	defer s.manager.Remove(context.WithoutCancel(r.Context()), sess)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxSendBody)

	s.log.Info().Str("session", id).Bool("audio", sess.AudioMode).Msg("client connected via websocket")

	readDone := make(chan struct{})
	go s.readPump(conn, sess, readDone)

	keepalive := time.NewTicker(s.config.KeepAlivePeriod)
	defer keepalive.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-sess.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(writeTimeout))
			return
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case ev := <-sess.Events():
			data, err := messages.Marshal(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// readPump accepts client messages sent over the websocket itself
func (s *Server) readPump(conn *websocket.Conn, sess *relay.Session, done chan<- struct{}) {
	defer close(done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		msg, err := messages.DecodeMessage(data)
		if err != nil {
			s.log.Warn().Err(err).Str("session", sess.ID).Msg("invalid websocket message")
			continue
		}
		if err := sess.HandleMessage(msg); err != nil {
			s.log.Warn().Err(err).Str("session", sess.ID).Msg("failed to handle message")
		}
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	sess, exists := s.manager.Get(id)
	if !exists {
		writeJSON(w, http.StatusOK, messages.NewErrorReply(messages.ErrSessionNotFound))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSendBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, messages.NewErrorReply(err.Error()))
		return
	}

	msg, err := messages.DecodeMessage(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messages.NewErrorReply(messages.ErrInvalidMessage))
		return
	}
	if err := msg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, messages.NewErrorReply(err.Error()))
		return
	}

	if err := sess.HandleMessage(msg); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("failed to forward message")
		writeJSON(w, http.StatusBadGateway, messages.NewErrorReply(err.Error()))
		return
	}
	s.manager.Touch(r.Context(), id)

	writeJSON(w, http.StatusOK, messages.NewSentReply())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &messages.HealthReply{Status: "ok", Sessions: s.manager.Count()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := messages.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
