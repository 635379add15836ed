// Package audio moves raw PCM between the local devices and the session:
// microphone capture, speaker playback, device enumeration and WAV export.
package audio

import "strings"

// Formats used on the wire: 16-bit little-endian mono PCM
const (
	BytesPerSample = 2
	Channels       = 1
)

// Player is a playback sink for raw PCM chunks
type Player interface {
	// Play queues one chunk behind anything already queued
	Play(pcm []byte) error
	// EndOfAudio drops queued audio so playback stops immediately
	EndOfAudio()
	Close() error
}

// Recorder delivers raw PCM frames from an input device
type Recorder interface {
	Start(deviceID string, onFrame func(pcm []byte)) error
	Stop() error
	Close() error
}

// DeviceKind selects input or output devices
type DeviceKind int

const (
	DeviceInput DeviceKind = iota
	DeviceOutput
)

func (k DeviceKind) String() string {
	if k == DeviceOutput {
		return "output"
	}
	return "input"
}

// DeviceInfo is a labeled device descriptor
type DeviceInfo struct {
	ID        string // opaque platform-specific identifier
	Label     string
	Kind      DeviceKind
	IsDefault bool
}

// DeviceLister enumerates devices of one kind
type DeviceLister interface {
	Devices(kind DeviceKind) ([]DeviceInfo, error)
}

// Loopback drivers show up as real devices but carry no microphone or speaker
var virtualKeywords = []string{"blackhole"}

// IsVirtual reports whether a device label names a loopback driver
func IsVirtual(label string) bool {
	lower := strings.ToLower(label)
	for _, kw := range virtualKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SelectDevice picks a device for the requested label or id.
// An empty request selects the first device that is not a loopback driver.
// Returns false when nothing matches.
func SelectDevice(devices []DeviceInfo, want string) (DeviceInfo, bool) {
	if want != "" {
		lower := strings.ToLower(want)
		for _, d := range devices {
			if d.ID == want || strings.Contains(strings.ToLower(d.Label), lower) {
				return d, true
			}
		}
		return DeviceInfo{}, false
	}

	for _, d := range devices {
		if !IsVirtual(d.Label) {
			return d, true
		}
	}
	return DeviceInfo{}, false
}
