package sender

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/room4-2/streamchat/messages"
)

type captured struct {
	path        string
	contentType string
	body        []byte
}

func newCaptureServer(t *testing.T, status int, reply string) (*httptest.Server, chan captured) {
	t.Helper()
	reqs := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- captured{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: body}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestSendText(t *testing.T) {
	srv, reqs := newCaptureServer(t, http.StatusOK, `{"status":"sent"}`)

	s, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Send(context.Background(), "4821", messages.NewTextMessage("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := <-reqs
	if got.path != "/send/4821" {
		t.Errorf("unexpected path %q", got.path)
	}
	if got.contentType != "application/json" {
		t.Errorf("unexpected content type %q", got.contentType)
	}

	msg, err := messages.DecodeMessage(got.body)
	if err != nil {
		t.Fatalf("server received invalid body: %v", err)
	}
	if msg.MimeType != messages.MimeText || msg.Data != "hello" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestSendStatusError(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusInternalServerError, "boom")

	s, _ := New(srv.URL, srv.Client())
	err := s.Send(context.Background(), "1", messages.NewTextMessage("x"))

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", se.StatusCode)
	}
}

func TestSendRejected(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusOK, `{"error":"Session not found"}`)

	s, _ := New(srv.URL, srv.Client())
	err := s.Send(context.Background(), "1", messages.NewAudioMessage([]byte{1, 2}))

	var re *RejectedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if re.Reason != messages.ErrSessionNotFound {
		t.Errorf("unexpected reason %q", re.Reason)
	}
}

func TestSendPlainReply(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusNoContent, "")

	s, _ := New(srv.URL, srv.Client())
	if err := s.Send(context.Background(), "1", messages.NewTextMessage("x")); err != nil {
		t.Errorf("empty 204 reply should succeed: %v", err)
	}
}

func TestSendTransportError(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusOK, "")
	srv.Close()

	s, _ := New(srv.URL, nil)
	if err := s.Send(context.Background(), "1", messages.NewTextMessage("x")); err == nil {
		t.Error("expected error when server is down")
	}
}

func TestEndpointKeepsBasePath(t *testing.T) {
	s, err := New("http://example.com/agent/", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.endpoint("12"); got != "http://example.com/agent/send/12" {
		t.Errorf("unexpected endpoint %q", got)
	}
}
