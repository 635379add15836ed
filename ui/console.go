package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console is a line-mode display for terminals without the full-screen UI
type Console struct {
	mu          sync.Mutex
	out         io.Writer
	inTurn      bool
	sendEnabled bool
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Status(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakTurn()
	fmt.Fprintln(c.out, statusStyle.Render("["+text+"]"))
}

func (c *Console) SendEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendEnabled = enabled
}

func (c *Console) BeginTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakTurn()
	fmt.Fprint(c.out, labelStyle.Render("Agent:")+" ")
	c.inTurn = true
}

func (c *Console) AppendText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, text)
}

func (c *Console) EndTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakTurn()
}

func (c *Console) Echo(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakTurn()
	fmt.Fprintln(c.out, labelStyle.Render("You:")+" "+text)
}

func (c *Console) AudioSaved(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakTurn()
	fmt.Fprintln(c.out, savedStyle.Render("Audio saved to "+path))
}

// breakTurn ends a partially printed agent line. Caller holds mu.
func (c *Console) breakTurn() {
	if c.inTurn {
		fmt.Fprintln(c.out)
		c.inTurn = false
	}
}

func (c *Console) errorf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakTurn()
	fmt.Fprintln(c.out, errorStyle.Render(fmt.Sprintf(format, args...)))
}

// Run reads commands and messages from in until EOF, /quit, or ctx ends.
//
//	/audio on|off   switch reply modality
//	/mic start|stop toggle microphone capture
//	/reconnect      reopen the push channel
//	/quit           exit
//
// Any other line is sent as a text turn.
func (c *Console) Run(ctx context.Context, in io.Reader, ctrl Controller) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := ctrl.SendText(line); err != nil {
				c.errorf("send failed: %v", err)
			}
			continue
		}

		fields := strings.Fields(line)
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		var err error
		switch fields[0] {
		case "/quit", "/exit":
			return nil
		case "/audio":
			err = ctrl.SetAudioMode(arg != "off")
		case "/mic":
			if arg == "stop" {
				err = ctrl.StopAudio()
			} else {
				err = ctrl.StartAudio()
			}
		case "/reconnect":
			err = ctrl.Reconnect()
		default:
			c.errorf("unknown command %s", fields[0])
		}
		if err != nil {
			c.errorf("%s failed: %v", fields[0], err)
		}
	}
	return scanner.Err()
}
