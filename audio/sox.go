package audio

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// SoxPlayer streams PCM to the sox command-line player.
// sox has no flush control, so EndOfAudio restarts the process.
type SoxPlayer struct {
	sampleRate int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
}

// NewSoxPlayer starts sox reading raw signed 16-bit mono PCM from stdin
func NewSoxPlayer(sampleRate int) (*SoxPlayer, error) {
	p := &SoxPlayer{sampleRate: sampleRate}
	if err := p.start(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SoxPlayer) start() error {
	cmd := exec.Command("sox",
		"-q",
		"-t", "raw",
		"-r", strconv.Itoa(p.sampleRate),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("sox stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("sox start (is sox installed?): %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin
	return nil
}

func (p *SoxPlayer) stop(kill bool) {
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		if kill {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
}

func (p *SoxPlayer) Play(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.stdin == nil {
		if err := p.start(); err != nil {
			return err
		}
	}
	if _, err := p.stdin.Write(pcm); err != nil {
		return fmt.Errorf("sox write: %w", err)
	}
	return nil
}

func (p *SoxPlayer) EndOfAudio() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	// Restarted lazily by the next Play
	p.stop(true)
}

func (p *SoxPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.stop(false)
	return nil
}
