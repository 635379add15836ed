package messages

import (
	"bytes"
	"testing"
)

func TestEventKind(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want Kind
	}{
		{"text", Event{MimeType: MimeText, Data: "hi"}, KindText},
		{"audio", Event{MimeType: MimePCM, Data: "AAA="}, KindAudio},
		{"turn complete", Event{TurnComplete: true}, KindTurnComplete},
		{"interrupted", Event{Interrupted: true}, KindInterrupted},
		{"signal wins over content", Event{MimeType: MimeText, TurnComplete: true}, KindTurnComplete},
		{"unknown mime", Event{MimeType: "image/png"}, KindUnknown},
		{"empty", Event{}, KindUnknown},
	}

	for _, tt := range tests {
		if got := tt.ev.Kind(); got != tt.want {
			t.Errorf("%s: Kind() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDecodeEventSignals(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"turn_complete": true, "interrupted": false}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if ev.Kind() != KindTurnComplete {
		t.Errorf("expected turn_complete, got %v", ev.Kind())
	}

	ev, err = DecodeEvent([]byte(`{"turn_complete": false, "interrupted": true}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if ev.Kind() != KindInterrupted {
		t.Errorf("expected interrupted, got %v", ev.Kind())
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"mime_type": `)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestAudioMessagePCM(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0xff, 0x00, 0x7f}
	msg := NewAudioMessage(pcm)
	if msg.MimeType != MimePCM {
		t.Errorf("expected %s, got %s", MimePCM, msg.MimeType)
	}

	got, err := msg.PCM()
	if err != nil {
		t.Fatalf("PCM failed: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM = %v, want %v", got, pcm)
	}
}

func TestMessageWireFormat(t *testing.T) {
	data, err := Marshal(NewTextMessage("hello"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"mime_type":"text/plain","data":"hello"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestMessageValidate(t *testing.T) {
	if err := NewTextMessage("x").Validate(); err != nil {
		t.Errorf("text message should validate: %v", err)
	}
	if err := (&Message{MimeType: MimePCM, Data: "!!"}).Validate(); err == nil {
		t.Error("expected error for invalid base64 audio")
	}
	if err := (&Message{MimeType: "video/mp4"}).Validate(); err == nil {
		t.Error("expected error for unsupported mime type")
	}
}

func TestDecodeReply(t *testing.T) {
	r, err := DecodeReply([]byte(`{"error": "Session not found"}`))
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	if r.Error != ErrSessionNotFound {
		t.Errorf("expected %q, got %q", ErrSessionNotFound, r.Error)
	}

	r, err = DecodeReply(nil)
	if err != nil {
		t.Fatalf("DecodeReply(nil) failed: %v", err)
	}
	if r.Error != "" {
		t.Errorf("expected empty error, got %q", r.Error)
	}
}
