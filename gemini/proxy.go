package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const (
	audioModel = "models/gemini-2.5-flash-native-audio-preview-12-2025"
	textModel  = "models/gemini-live-2.5-flash-preview"

	inputMimeType = "audio/pcm;rate=16000"
	defaultVoice  = "Zephyr" // Available voices: Puck, Charon, Kore, Fenrir, Aoede, Leda, Orus, Zephyr

	// Trailing silence after an utterance tells the model the speaker stopped
	utteranceSilenceBytes = 6400
)

// ErrNotConnected is returned when sending before Setup or after Close
var ErrNotConnected = errors.New("proxy is closed or not connected")

// SetupOptions configure the Live session
type SetupOptions struct {
	SystemPrompt string
	Tools        []*genai.Tool
	Audio        bool   // AUDIO replies when true, TEXT otherwise
	Voice        string // Prebuilt voice for AUDIO replies
}

// Proxy manages the connection to Gemini Live API using the official SDK
type Proxy struct {
	client  *genai.Client
	session *genai.Session
	log     zerolog.Logger

	// Callbacks for handling responses
	OnAudio       func(pcm []byte) // 24kHz 16-bit mono PCM
	OnText        func(text string)
	OnComplete    func()
	OnInterrupted func()
	OnError       func(err error)

	mu     sync.RWMutex
	closed bool
}

// NewProxy creates a GenAI client; Setup opens the Live session
func NewProxy(ctx context.Context, apiKey string, logger zerolog.Logger) (*Proxy, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Proxy{
		client: client,
		log:    logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// LiveConfig builds the Live connect config and picks the model for the modality
func LiveConfig(opts SetupOptions) (string, *genai.LiveConnectConfig) {
	config := &genai.LiveConnectConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: opts.SystemPrompt},
			},
		},
		Tools: opts.Tools,
	}

	if !opts.Audio {
		config.ResponseModalities = []genai.Modality{genai.ModalityText}
		return textModel, config
	}

	voice := opts.Voice
	if voice == "" {
		voice = defaultVoice
	}
	config.ResponseModalities = []genai.Modality{genai.ModalityAudio}
	config.SpeechConfig = &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
				VoiceName: voice,
			},
		},
	}
	return audioModel, config
}

// Setup establishes the Live session
func (gp *Proxy) Setup(ctx context.Context, opts SetupOptions) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return fmt.Errorf("proxy is closed")
	}

	model, config := LiveConfig(opts)

	session, err := gp.client.Live.Connect(ctx, model, config)
	if err != nil {
		return fmt.Errorf("failed to connect to Live API: %w", err)
	}

	gp.session = session
	gp.log.Info().Str("model", model).Bool("audio", opts.Audio).Msg("connected to Gemini Live")
	return nil
}

// StartReceiving begins listening for Gemini responses
func (gp *Proxy) StartReceiving(ctx context.Context) {
	go func() {
		for {
			if ctx.Err() != nil {
				return
			}

			gp.mu.RLock()
			if gp.closed || gp.session == nil {
				gp.mu.RUnlock()
				return
			}
			session := gp.session
			gp.mu.RUnlock()

			// Receive blocks until a message arrives or error occurs
			resp, err := session.Receive()
			if err != nil {
				if !gp.IsClosed() {
					gp.log.Error().Err(err).Msg("receive failed")
					if gp.OnError != nil {
						gp.OnError(err)
					}
				}
				return
			}

			gp.handleResponse(resp)
		}
	}()
}

func (gp *Proxy) handleResponse(resp *genai.LiveServerMessage) {
	content := resp.ServerContent
	if content == nil {
		return
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.Text != "" && gp.OnText != nil {
				gp.log.Debug().Str("text", part.Text).Msg("received text")
				gp.OnText(part.Text)
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 && gp.OnAudio != nil {
				gp.log.Debug().Int("bytes", len(part.InlineData.Data)).Msg("received audio")
				gp.OnAudio(part.InlineData.Data)
			}
		}
	}

	if content.Interrupted && gp.OnInterrupted != nil {
		gp.log.Debug().Msg("interrupted")
		gp.OnInterrupted()
	}

	if content.TurnComplete && gp.OnComplete != nil {
		gp.log.Debug().Msg("turn complete")
		gp.OnComplete()
	}
}

// SendAudioBatch sends one complete utterance followed by a short silence
func (gp *Proxy) SendAudioBatch(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	if err := gp.sendRealtimeInput(pcm); err != nil {
		return fmt.Errorf("failed to send audio batch: %w", err)
	}

	if err := gp.sendRealtimeInput(make([]byte, utteranceSilenceBytes)); err != nil {
		return fmt.Errorf("failed to send trailing silence: %w", err)
	}
	return nil
}

// SendText sends one complete user turn
func (gp *Proxy) SendText(text string) error {
	session, err := gp.current()
	if err != nil {
		return err
	}

	turnComplete := true
	err = session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns: []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: text}},
			},
		},
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}

	gp.log.Debug().Str("text", text).Msg("sent text")
	return nil
}

func (gp *Proxy) sendRealtimeInput(data []byte) error {
	session, err := gp.current()
	if err != nil {
		return err
	}

	err = session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: inputMimeType,
			Data:     data,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}

	gp.log.Debug().Int("bytes", len(data)).Msg("sent audio")
	return nil
}

func (gp *Proxy) current() (*genai.Session, error) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if gp.closed || gp.session == nil {
		return nil, ErrNotConnected
	}
	return gp.session, nil
}

// IsClosed reports whether Close was called
func (gp *Proxy) IsClosed() bool {
	gp.mu.RLock()
	defer gp.mu.RUnlock()
	return gp.closed
}

// Close terminates the Gemini connection
func (gp *Proxy) Close() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return nil
	}
	gp.closed = true

	if gp.session != nil {
		return gp.session.Close()
	}
	return nil
}
