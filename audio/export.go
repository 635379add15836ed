package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Exporter saves completed audio replies as timestamped WAV files,
// always 24 kHz mono 16-bit
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter creates an exporter writing into dir
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// Export writes ai_response_<unix-ms>.wav and returns its path
func (e *Exporter) Export(pcm []byte) (string, error) {
	data, err := EncodeWAV(pcm, ReplySampleRate)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create capture dir: %w", err)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("ai_response_%d.wav", e.now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save audio: %w", err)
	}
	return path, nil
}
