package relay

import (
	"encoding/binary"
	"math"

	"github.com/room4-2/streamchat/session"
)

// GateConfig tunes end-of-speech detection on incoming mic audio
type GateConfig struct {
	SilenceRMS        float64 // Chunks below this RMS count as silence
	SilenceChunks     int     // Consecutive silent chunks that end an utterance
	MinUtteranceBytes int     // Shorter utterances are dropped
	MaxBufferSize     int
}

// DefaultGateConfig matches a 16kHz mic flushed every 200ms
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SilenceRMS:        800,
		SilenceChunks:     3,
		MinUtteranceBytes: 30000,
		MaxBufferSize:     5 * 1024 * 1024,
	}
}

// GateResult reports what a pushed chunk did
type GateResult int

const (
	GateBuffering GateResult = iota
	GateUtterance
	GateTooShort
	GateOverflow
)

// SilenceGate batches mic chunks into utterances. An utterance ends after
// SilenceChunks quiet chunks; the quiet tail is not part of it.
type SilenceGate struct {
	cfg    GateConfig
	speech *session.AudioBuffer
	tail   [][]byte // Trailing silent chunks, at most SilenceChunks
}

// NewSilenceGate creates an empty gate
func NewSilenceGate(cfg GateConfig) *SilenceGate {
	return &SilenceGate{
		cfg:    cfg,
		speech: session.NewAudioBuffer(cfg.MaxBufferSize),
	}
}

// Push adds one chunk. When it completes an utterance long enough to keep,
// the utterance is returned with GateUtterance.
func (g *SilenceGate) Push(chunk []byte) ([]byte, GateResult, error) {
	if RMS(chunk) >= g.cfg.SilenceRMS {
		if err := g.absorbTail(); err != nil {
			return nil, GateOverflow, err
		}
		if err := g.speech.Append(chunk); err != nil {
			g.reset()
			return nil, GateOverflow, err
		}
		return nil, GateBuffering, nil
	}

	g.tail = append(g.tail, chunk)
	if len(g.tail) > g.cfg.SilenceChunks {
		// Silence older than the window belongs to the utterance, or is
		// dropped when no speech has started yet
		if !g.speech.IsEmpty() {
			if err := g.speech.Append(g.tail[0]); err != nil {
				g.reset()
				return nil, GateOverflow, err
			}
		}
		g.tail = g.tail[1:]
	}

	if len(g.tail) < g.cfg.SilenceChunks || g.speech.IsEmpty() {
		return nil, GateBuffering, nil
	}

	utterance := g.speech.Flush()
	g.tail = nil
	if len(utterance) < g.cfg.MinUtteranceBytes {
		return utterance, GateTooShort, nil
	}
	return utterance, GateUtterance, nil
}

// Buffered returns the bytes held for the current utterance
func (g *SilenceGate) Buffered() int {
	n := g.speech.Len()
	for _, c := range g.tail {
		n += len(c)
	}
	return n
}

func (g *SilenceGate) absorbTail() error {
	for _, c := range g.tail {
		if err := g.speech.Append(c); err != nil {
			g.reset()
			return err
		}
	}
	g.tail = nil
	return nil
}

func (g *SilenceGate) reset() {
	g.speech.Clear()
	g.tail = nil
}

// RMS is the root mean square of 16-bit little-endian samples
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
