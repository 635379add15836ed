package relay

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// tone returns n samples at a constant amplitude
func tone(n int, amplitude int16) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(amplitude))
	}
	return pcm
}

func testGateConfig() GateConfig {
	cfg := DefaultGateConfig()
	cfg.MinUtteranceBytes = 100
	return cfg
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"empty", nil, 0},
		{"odd byte", []byte{1}, 0},
		{"silence", tone(10, 0), 0},
		{"constant", tone(10, 1000), 1000},
		{"negative", tone(10, -500), 500},
	}
	for _, tt := range tests {
		if got := RMS(tt.pcm); got != tt.want {
			t.Errorf("%s: RMS = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSilenceGateUtterance(t *testing.T) {
	g := NewSilenceGate(testGateConfig())
	speech1, speech2 := tone(40, 2000), tone(40, 3000)
	quiet := tone(40, 10)

	steps := [][]byte{speech1, quiet, speech2, quiet, quiet}
	for i, chunk := range steps {
		if _, res, err := g.Push(chunk); res != GateBuffering || err != nil {
			t.Fatalf("step %d: expected buffering, got %v (%v)", i, res, err)
		}
	}

	utterance, res, err := g.Push(quiet)
	if err != nil {
		t.Fatal(err)
	}
	if res != GateUtterance {
		t.Fatalf("expected utterance after 3 quiet chunks, got %v", res)
	}

	// The short pause inside speech is kept, the trailing silence is not
	want := append(append(append([]byte{}, speech1...), quiet...), speech2...)
	if !bytes.Equal(utterance, want) {
		t.Errorf("utterance has %d bytes, want %d", len(utterance), len(want))
	}
	if g.Buffered() != 0 {
		t.Errorf("gate should be empty, has %d bytes", g.Buffered())
	}
}

func TestSilenceGateTooShort(t *testing.T) {
	cfg := testGateConfig()
	cfg.MinUtteranceBytes = 30000
	g := NewSilenceGate(cfg)

	g.Push(tone(40, 2000))
	g.Push(tone(40, 0))
	g.Push(tone(40, 0))
	utterance, res, _ := g.Push(tone(40, 0))

	if res != GateTooShort {
		t.Fatalf("expected too short, got %v", res)
	}
	if len(utterance) != 80 {
		t.Errorf("expected 80 bytes reported, got %d", len(utterance))
	}
}

func TestSilenceGateIgnoresPureSilence(t *testing.T) {
	g := NewSilenceGate(testGateConfig())

	for i := 0; i < 10; i++ {
		if _, res, _ := g.Push(tone(40, 0)); res != GateBuffering {
			t.Fatalf("chunk %d: silence alone should never form an utterance, got %v", i, res)
		}
	}
	if got, want := g.Buffered(), 3*80; got != want {
		t.Errorf("expected only the silence window held (%d bytes), got %d", want, got)
	}

	// Speech after long silence keeps just the window of leading silence
	g.Push(tone(40, 2000))
	for i := 0; i < 2; i++ {
		g.Push(tone(40, 0))
	}
	utterance, res, _ := g.Push(tone(40, 0))
	if res != GateUtterance {
		t.Fatalf("expected utterance, got %v", res)
	}
	if want := 4 * 80; len(utterance) != want {
		t.Errorf("expected %d bytes, got %d", want, len(utterance))
	}
}

func TestSilenceGateOverflow(t *testing.T) {
	cfg := testGateConfig()
	cfg.MaxBufferSize = 100
	g := NewSilenceGate(cfg)

	g.Push(tone(40, 2000))
	if _, res, err := g.Push(tone(40, 2000)); res != GateOverflow || err == nil {
		t.Fatalf("expected overflow, got %v (%v)", res, err)
	}
	if g.Buffered() != 0 {
		t.Error("overflow should reset the gate")
	}
}
