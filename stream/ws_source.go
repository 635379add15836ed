package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/streamchat/messages"
)

const (
	wsReadLimit    = 2 * 1024 * 1024
	wsCloseTimeout = 2 * time.Second
)

// WebSocketSource subscribes to ws(s)://{host}/ws/{id}?is_audio=bool
type WebSocketSource struct {
	base   *url.URL
	dialer *websocket.Dialer
}

// NewWebSocketSource accepts an http(s) or ws(s) base URL
func NewWebSocketSource(baseURL string, dialer *websocket.Dialer) (*WebSocketSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketSource{base: u, dialer: dialer}, nil
}

// Subscribe dials the websocket push endpoint for a session
func (s *WebSocketSource) Subscribe(ctx context.Context, sessionID string, audio bool) (Subscription, error) {
	endpoint := eventsURL(s.base, "ws", sessionID, audio)

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &StatusError{URL: endpoint, StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	return &wsSubscription{conn: conn}, nil
}

type wsSubscription struct {
	conn      *websocket.Conn
	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *wsSubscription) Next() (*messages.Event, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("read websocket: %w", err)
		}
		if messageType != websocket.TextMessage || len(data) == 0 {
			continue
		}
		return decodePayload(data)
	}
}

func (s *wsSubscription) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseTimeout),
		)
		closeErr = s.conn.Close()
	})
	return closeErr
}
