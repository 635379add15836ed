package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of the canonical PCM RIFF/WAVE header
const WAVHeaderSize = 44

// ReplySampleRate is the rate of agent audio replies
const ReplySampleRate = 24000

// WAVHeader is the canonical 44-byte header of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewWAVHeader builds a mono 16-bit PCM header for dataSize bytes of audio
func NewWAVHeader(dataSize uint32, sampleRate int) WAVHeader {
	const bitsPerSample = BytesPerSample * 8
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * Channels * bitsPerSample / 8,
		BlockAlign:    Channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WriteWAV writes a header followed by the raw PCM bytes
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if uint64(len(pcm)) > uint64(^uint32(0))-36 {
		return fmt.Errorf("audio too large for WAV: %d bytes", len(pcm))
	}

	header := NewWAVHeader(uint32(len(pcm)), sampleRate)
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return nil
}

// EncodeWAV wraps PCM bytes in a WAV container
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(pcm)))
	if err := WriteWAV(buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= WAVHeaderSize && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV extracts 16-bit mono PCM and its sample rate from a WAV file
func DecodeWAV(data []byte) ([]byte, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode WAV: %w", err)
	}
	if dec.BitDepth != BytesPerSample*8 || dec.NumChans != Channels {
		return nil, 0, fmt.Errorf("unsupported WAV format: %d-bit, %d channels", dec.BitDepth, dec.NumChans)
	}

	pcm := make([]byte, len(buf.Data)*BytesPerSample)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(int16(sample)))
	}
	return pcm, int(dec.SampleRate), nil
}
