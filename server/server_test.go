package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/room4-2/streamchat/config"
	"github.com/room4-2/streamchat/messages"
	"github.com/room4-2/streamchat/relay"
	"github.com/room4-2/streamchat/sender"
	"github.com/room4-2/streamchat/stream"
)

type fakeAgent struct {
	handlers relay.Handlers
	texts    chan string
}

func (a *fakeAgent) SendText(text string) error {
	a.texts <- text
	return nil
}

func (a *fakeAgent) SendAudioBatch(pcm []byte) error { return nil }
func (a *fakeAgent) Close() error                    { return nil }

type fakeDialer struct {
	agents chan *fakeAgent
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{agents: make(chan *fakeAgent, 4)}
}

func (d *fakeDialer) dial(_ context.Context, _ bool, h relay.Handlers) (relay.Agent, error) {
	a := &fakeAgent{handlers: h, texts: make(chan string, 4)}
	d.agents <- a
	return a, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeAgent {
	t.Helper()
	select {
	case a := <-d.agents:
		return a
	case <-time.After(time.Second):
		t.Fatal("agent was never dialed")
		return nil
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeDialer, *relay.Manager) {
	t.Helper()
	cfg := &config.RelayConfig{
		MaxSessions:       4,
		SessionTimeout:    time.Minute,
		AllowedOrigins:    []string{"http://localhost:3000"},
		KeepAlivePeriod:   time.Hour,
		MaxBufferSize:     1024 * 1024,
		SilenceRMS:        800,
		SilenceChunks:     3,
		MinUtteranceBytes: 30000,
	}
	d := newFakeDialer()
	manager := relay.NewManager(cfg, d.dial, nil, zerolog.Nop())
	ts := httptest.NewServer(New(cfg, manager, zerolog.Nop()).Handler())
	t.Cleanup(ts.Close)
	return ts, d, manager
}

func TestEventStreamRoundTrip(t *testing.T) {
	ts, d, manager := newTestServer(t)

	src, err := stream.NewSSESource(ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := src.Subscribe(context.Background(), "4821", false)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	agent := d.next(t)
	if manager.Count() != 1 {
		t.Fatalf("expected one session, got %d", manager.Count())
	}

	snd, err := sender.New(ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := snd.Send(context.Background(), "4821", messages.NewTextMessage("status update")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case text := <-agent.texts:
		if text != "status update" {
			t.Errorf("agent got %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("agent never received text")
	}

	agent.handlers.OnText("Let's circle back")
	agent.handlers.OnComplete()

	ev, err := sub.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Kind() != messages.KindText || ev.Data != "Let's circle back" {
		t.Errorf("unexpected event %+v", ev)
	}
	ev, err = sub.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Kind() != messages.KindTurnComplete {
		t.Errorf("expected turn_complete, got %+v", ev)
	}
}

func TestWebSocketStream(t *testing.T) {
	ts, d, _ := newTestServer(t)

	src, err := stream.NewWebSocketSource(ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := src.Subscribe(context.Background(), "77", true)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	agent := d.next(t)
	agent.handlers.OnAudio([]byte{1, 2, 3, 4})

	ev, err := sub.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	pcm, err := ev.PCM()
	if err != nil || len(pcm) != 4 {
		t.Errorf("unexpected audio event %+v (%v)", ev, err)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	ts, _, manager := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/7001"

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake for foreign origin, got %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin was rejected: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for manager.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if manager.Count() != 0 {
		t.Errorf("expected sessions removed, got %d", manager.Count())
	}
}

func TestSendUnknownSession(t *testing.T) {
	ts, _, _ := newTestServer(t)

	snd, err := sender.New(ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = snd.Send(context.Background(), "999", messages.NewTextMessage("hello"))

	var rejected *sender.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Reason != messages.ErrSessionNotFound {
		t.Errorf("unexpected reason %q", rejected.Reason)
	}
}

func TestSendRejectsBadBodies(t *testing.T) {
	ts, _, _ := newTestServer(t)

	src, _ := stream.NewSSESource(ts.URL, nil)
	sub, err := src.Subscribe(context.Background(), "5", false)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"mime_type":`, messages.ErrInvalidMessage},
		{"unsupported mime", `{"mime_type":"image/png","data":"x"}`, "mime type not supported: image/png"},
		{"bad base64", `{"mime_type":"audio/pcm","data":"%%%"}`, "invalid base64 audio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/send/5", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			data, _ := io.ReadAll(resp.Body)
			reply, err := messages.DecodeReply(data)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(reply.Error, tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, reply.Error)
			}
		})
	}
}

func TestNonNumericSessionID(t *testing.T) {
	ts, _, _ := newTestServer(t)

	src, _ := stream.NewSSESource(ts.URL, nil)
	_, err := src.Subscribe(context.Background(), "abc", false)

	var status *stream.StatusError
	if !errors.As(err, &status) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if status.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", status.StatusCode)
	}
}

func TestSessionRemovedOnDisconnect(t *testing.T) {
	ts, d, manager := newTestServer(t)

	src, _ := stream.NewSSESource(ts.URL, nil)
	sub, err := src.Subscribe(context.Background(), "9", false)
	if err != nil {
		t.Fatal(err)
	}
	d.next(t)
	sub.Close()

	deadline := time.Now().Add(2 * time.Second)
	for manager.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var health messages.HealthReply
	data, _ := io.ReadAll(resp.Body)
	if err := sonic.Unmarshal(data, &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Sessions != 0 {
		t.Errorf("unexpected health %+v", health)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/send/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("unexpected allow-origin %q", got)
	}

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got allow-origin %q", got)
	}
}
