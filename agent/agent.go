// Package agent defines the meeting persona and dials it on Gemini Live.
package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/room4-2/streamchat/gemini"
	"github.com/room4-2/streamchat/relay"
)

// Name identifies the agent in logs
const Name = "stego_agent"

// Instruction is the system prompt of the meeting agent
const Instruction = `You are an agent who can participate in IT company meetings and speaks corporate lingo.
Give abstract answers when asked anything and ask generic questions in return.
Be short, 7-10 words max.`

// Tools returns the tools the agent may call. Search runs on the model side,
// so no function responses are needed.
func Tools() []*genai.Tool {
	return []*genai.Tool{
		{GoogleSearch: &genai.GoogleSearch{}},
	}
}

// NewDialer returns a relay.Dialer that opens one Gemini Live session per call
func NewDialer(apiKey string, logger zerolog.Logger) relay.Dialer {
	return func(ctx context.Context, audio bool, h relay.Handlers) (relay.Agent, error) {
		proxy, err := gemini.NewProxy(ctx, apiKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini proxy: %w", err)
		}

		proxy.OnText = h.OnText
		proxy.OnAudio = h.OnAudio
		proxy.OnComplete = h.OnComplete
		proxy.OnInterrupted = h.OnInterrupted
		proxy.OnError = h.OnError

		if err := proxy.Setup(ctx, gemini.SetupOptions{
			SystemPrompt: Instruction,
			Tools:        Tools(),
			Audio:        audio,
		}); err != nil {
			proxy.Close()
			return nil, fmt.Errorf("failed to setup Gemini session: %w", err)
		}

		proxy.StartReceiving(ctx)
		return proxy, nil
	}
}
