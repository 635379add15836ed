package audio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrPlayerClosed is returned by Play after Close
var ErrPlayerClosed = errors.New("player closed")

// Context owns the native audio backend shared by capture and playback
type Context struct {
	ctx *malgo.AllocatedContext
}

// NewContext initializes the platform audio backend
func NewContext() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo init: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// Devices lists capture or playback devices
func (c *Context) Devices(kind DeviceKind) ([]DeviceInfo, error) {
	deviceType := malgo.Capture
	if kind == DeviceOutput {
		deviceType = malgo.Playback
	}

	devices, err := c.ctx.Devices(deviceType)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}

	result := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:        hex.EncodeToString(d.ID[:]),
			Label:     d.Name(),
			Kind:      kind,
			IsDefault: d.IsDefault != 0,
		})
	}
	return result, nil
}

// Close releases the backend
func (c *Context) Close() {
	c.ctx.Uninit()
	c.ctx.Free()
}

func parseDeviceID(id string) (*malgo.DeviceID, error) {
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid device ID: %w", err)
	}
	var devID malgo.DeviceID
	copy(devID[:], idBytes)
	return &devID, nil
}

// MalgoRecorder captures 16-bit mono PCM from a microphone
type MalgoRecorder struct {
	ctx        *Context
	sampleRate int

	mu     sync.Mutex
	device *malgo.Device
}

// NewRecorder creates a recorder at the given sample rate
func (c *Context) NewRecorder(sampleRate int) *MalgoRecorder {
	return &MalgoRecorder{ctx: c, sampleRate: sampleRate}
}

// Start opens the device and begins delivering frames.
// An empty deviceID uses the system default.
func (r *MalgoRecorder) Start(deviceID string, onFrame func(pcm []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device != nil {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = uint32(r.sampleRate)

	if deviceID != "" {
		devID, err := parseDeviceID(deviceID)
		if err != nil {
			return err
		}
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			if len(data) == 0 {
				return
			}
			// The backend reuses its buffer after the callback returns
			frame := make([]byte, len(data))
			copy(frame, data)
			onFrame(frame)
		},
	}

	device, err := malgo.InitDevice(r.ctx.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to open input device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	r.device = device
	return nil
}

// Stop ends capture; no frames are delivered once it returns
func (r *MalgoRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device == nil {
		return nil
	}
	err := r.device.Stop()
	r.device.Uninit()
	r.device = nil
	if err != nil {
		return fmt.Errorf("failed to stop capture: %w", err)
	}
	return nil
}

// Close is Stop; the shared Context is closed by its owner
func (r *MalgoRecorder) Close() error {
	return r.Stop()
}

// MalgoPlayer plays queued 16-bit mono PCM through an output device
type MalgoPlayer struct {
	device *malgo.Device

	mu     sync.Mutex
	queue  []byte
	closed bool
}

// NewPlayer opens and starts an output device.
// An empty deviceID uses the system default.
func (c *Context) NewPlayer(deviceID string, sampleRate int) (*MalgoPlayer, error) {
	p := &MalgoPlayer{}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = Channels
	deviceConfig.SampleRate = uint32(sampleRate)

	if deviceID != "" {
		devID, err := parseDeviceID(deviceID)
		if err != nil {
			return nil, err
		}
		deviceConfig.Playback.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			p.fill(out)
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to open output device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}

	p.device = device
	return p, nil
}

// fill copies queued audio into the device buffer and pads with silence
func (p *MalgoPlayer) fill(out []byte) {
	p.mu.Lock()
	n := copy(out, p.queue)
	p.queue = p.queue[n:]
	if len(p.queue) == 0 {
		p.queue = nil
	}
	p.mu.Unlock()

	clear(out[n:])
}

func (p *MalgoPlayer) Play(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	p.queue = append(p.queue, pcm...)
	return nil
}

func (p *MalgoPlayer) EndOfAudio() {
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
}

// Buffered returns the number of bytes waiting to be played
func (p *MalgoPlayer) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *MalgoPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.queue = nil
	p.mu.Unlock()

	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
	}
	return nil
}
