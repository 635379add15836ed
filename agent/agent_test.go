package agent

import (
	"strings"
	"testing"

	"github.com/room4-2/streamchat/gemini"
)

func TestToolsIncludeSearch(t *testing.T) {
	tools := Tools()
	if len(tools) != 1 || tools[0].GoogleSearch == nil {
		t.Fatalf("expected the Google Search tool, got %+v", tools)
	}
	if len(tools[0].FunctionDeclarations) != 0 {
		t.Error("agent should not declare client-side functions")
	}
}

func TestInstructionCarriedIntoLiveConfig(t *testing.T) {
	_, cfg := gemini.LiveConfig(gemini.SetupOptions{SystemPrompt: Instruction, Tools: Tools(), Audio: true})

	if !strings.Contains(cfg.SystemInstruction.Parts[0].Text, "corporate lingo") {
		t.Error("persona missing from system instruction")
	}
	if len(cfg.Tools) != 1 {
		t.Errorf("expected 1 tool, got %d", len(cfg.Tools))
	}
}
