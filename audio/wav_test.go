package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-audio/wav"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 4800) // 100ms at 24kHz
	for i := range pcm {
		pcm[i] = byte(i)
	}

	data, err := EncodeWAV(pcm, ReplySampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != WAVHeaderSize+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", WAVHeaderSize+len(pcm), len(data))
	}

	tags := map[int]string{0: "RIFF", 8: "WAVE", 12: "fmt ", 36: "data"}
	for off, tag := range tags {
		if got := string(data[off : off+4]); got != tag {
			t.Errorf("offset %d: expected %q, got %q", off, tag, got)
		}
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"chunk size", le.Uint32(data[4:]), uint32(36 + len(pcm))},
		{"fmt size", le.Uint32(data[16:]), 16},
		{"audio format", uint32(le.Uint16(data[20:])), 1},
		{"channels", uint32(le.Uint16(data[22:])), 1},
		{"sample rate", le.Uint32(data[24:]), 24000},
		{"byte rate", le.Uint32(data[28:]), 48000},
		{"block align", uint32(le.Uint16(data[32:])), 2},
		{"bits per sample", uint32(le.Uint16(data[34:])), 16},
		{"data size", le.Uint32(data[40:]), uint32(len(pcm))},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}

	if !bytes.Equal(data[WAVHeaderSize:], pcm) {
		t.Error("audio payload was modified")
	}
}

func TestEncodeWAVDecodesWithStandardReader(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x01, 0x00}

	data, err := EncodeWAV(pcm, ReplySampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer failed: %v", err)
	}

	if dec.SampleRate != 24000 {
		t.Errorf("expected 24000 Hz, got %d", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Errorf("expected 1 channel, got %d", dec.NumChans)
	}
	if dec.BitDepth != 16 {
		t.Errorf("expected 16 bits, got %d", dec.BitDepth)
	}

	want := []int{0, 32767, -32768, 1}
	if len(buf.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i, s := range want {
		if buf.Data[i] != s {
			t.Errorf("sample %d: got %d, want %d", i, buf.Data[i], s)
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	data, err := EncodeWAV(nil, ReplySampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != WAVHeaderSize {
		t.Errorf("expected header only, got %d bytes", len(data))
	}
	if binary.LittleEndian.Uint32(data[40:]) != 0 {
		t.Error("expected zero data size")
	}
}

func TestEncodeWAVInvalidRate(t *testing.T) {
	if _, err := EncodeWAV([]byte{0, 0}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x34, 0x12}
	data, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if !IsWAV(data) {
		t.Fatal("encoded data should be recognized as WAV")
	}
	if IsWAV(pcm) {
		t.Fatal("raw PCM should not be recognized as WAV")
	}

	got, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected 16000 Hz, got %d", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("expected %v, got %v", pcm, got)
	}
}
