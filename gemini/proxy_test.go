package gemini

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

func TestLiveConfigModality(t *testing.T) {
	model, cfg := LiveConfig(SetupOptions{SystemPrompt: "be brief", Audio: true})
	if model != audioModel {
		t.Errorf("expected audio model, got %s", model)
	}
	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("unexpected modalities %v", cfg.ResponseModalities)
	}
	if cfg.SpeechConfig == nil || cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != defaultVoice {
		t.Error("audio mode should configure the default voice")
	}

	model, cfg = LiveConfig(SetupOptions{SystemPrompt: "be brief"})
	if model != textModel {
		t.Errorf("expected text model, got %s", model)
	}
	if cfg.ResponseModalities[0] != genai.ModalityText {
		t.Errorf("unexpected modalities %v", cfg.ResponseModalities)
	}
	if cfg.SpeechConfig != nil {
		t.Error("text mode should not configure speech")
	}
	if cfg.SystemInstruction.Parts[0].Text != "be brief" {
		t.Error("system prompt not carried")
	}
}

func TestHandleResponseDispatch(t *testing.T) {
	gp := &Proxy{log: zerolog.Nop()}

	var (
		texts       []string
		audio       [][]byte
		completes   int
		interrupted int
	)
	gp.OnText = func(text string) { texts = append(texts, text) }
	gp.OnAudio = func(pcm []byte) { audio = append(audio, pcm) }
	gp.OnComplete = func() { completes++ }
	gp.OnInterrupted = func() { interrupted++ }

	gp.handleResponse(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{
					{Text: "Synergy"},
					{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}},
				},
			},
		},
	})
	gp.handleResponse(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{Interrupted: true}})
	gp.handleResponse(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{TurnComplete: true}})
	gp.handleResponse(&genai.LiveServerMessage{})

	if len(texts) != 1 || texts[0] != "Synergy" {
		t.Errorf("unexpected texts %v", texts)
	}
	if len(audio) != 1 || len(audio[0]) != 2 {
		t.Errorf("unexpected audio %v", audio)
	}
	if completes != 1 || interrupted != 1 {
		t.Errorf("expected one complete and one interrupt, got %d / %d", completes, interrupted)
	}
}

func TestSendBeforeSetup(t *testing.T) {
	gp := &Proxy{log: zerolog.Nop()}

	if err := gp.SendText("hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := gp.SendAudioBatch([]byte{1, 2}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := gp.SendAudioBatch(nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}
