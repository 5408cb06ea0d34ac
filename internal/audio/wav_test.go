package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := make([]float32, 160)
	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV() = %v", err)
	}

	if len(data) != 44+320 {
		t.Fatalf("len = %d, want %d", len(data), 44+320)
	}
	if !bytes.Equal(data[0:4], []byte("RIFF")) {
		t.Errorf("chunk id = %q, want RIFF", data[0:4])
	}
	if !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Errorf("format = %q, want WAVE", data[8:12])
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", sampleRate)
	}
	bits := binary.LittleEndian.Uint16(data[34:36])
	if bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if dataSize != 320 {
		t.Errorf("data size = %d, want 320", dataSize)
	}
}

func TestEncodeWAVClipsSamples(t *testing.T) {
	data, err := EncodeWAV([]float32{2.0, -2.0, 0}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV() = %v", err)
	}

	first := int16(binary.LittleEndian.Uint16(data[44:46]))
	second := int16(binary.LittleEndian.Uint16(data[46:48]))
	if first != 32767 {
		t.Errorf("clipped positive = %d, want 32767", first)
	}
	if second != -32767 {
		t.Errorf("clipped negative = %d, want -32767", second)
	}
}

func TestFrameRMS(t *testing.T) {
	f := Frame{Samples: []float32{0.5, -0.5, 0.5, -0.5}, SampleRate: 16000}
	if got := f.RMS(); got < 0.499 || got > 0.501 {
		t.Errorf("RMS() = %g, want 0.5", got)
	}

	var empty Frame
	if empty.RMS() != 0 {
		t.Error("empty frame RMS should be 0")
	}
}
