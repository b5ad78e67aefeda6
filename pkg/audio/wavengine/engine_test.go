package wavengine

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/soundglass/waveview/pkg/audio"
)

// buildWAV produces a canonical 16-bit PCM wav file with the given mono
// samples duplicated into two channels.
func buildWAV(sampleRate int, samples []float64) []byte {
	const channels = 2
	dataSize := len(samples) * channels * 2
	buf := make([]byte, 0, 44+dataSize)

	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, u32(uint32(36+dataSize))...)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = append(buf, u32(16)...)
	buf = append(buf, u16(1)...) // PCM
	buf = append(buf, u16(channels)...)
	buf = append(buf, u32(uint32(sampleRate))...)
	buf = append(buf, u32(uint32(sampleRate*channels*2))...)
	buf = append(buf, u16(channels*2)...)
	buf = append(buf, u16(16)...)
	buf = append(buf, []byte("data")...)
	buf = append(buf, u32(uint32(dataSize))...)

	for _, s := range samples {
		v := int16(s * 32767)
		sampleLE := u16(uint16(v))
		buf = append(buf, sampleLE...) // left
		buf = append(buf, sampleLE...) // right
	}
	return buf
}

func TestParseMetadata(t *testing.T) {
	data := buildWAV(44100, make([]float64, 128))

	meta, err := parseMetadata(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", meta.SampleRate)
	}
	if meta.ChannelCount != 2 {
		t.Errorf("ChannelCount = %d, want 2", meta.ChannelCount)
	}
	if meta.BitsPerSample != 16 {
		t.Errorf("BitsPerSample = %d, want 16", meta.BitsPerSample)
	}
}

func TestParseMetadata_NotRIFF(t *testing.T) {
	_, err := parseMetadata([]byte("this is not a wave file"))
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseMetadata_NonPCM(t *testing.T) {
	data := buildWAV(44100, make([]float64, 4))
	// Overwrite the audio format field (offset 20) with 3 = IEEE float.
	binary.LittleEndian.PutUint16(data[20:], 3)

	_, err := parseMetadata(data)
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeMono(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * float64(i) / 64)
	}
	data := buildWAV(44100, samples)

	pcm, frames, err := decodeMono(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frames != int64(len(samples)) {
		t.Fatalf("frames = %d, want %d", frames, len(samples))
	}
	for i := 0; i < len(samples); i += 16 {
		if math.Abs(pcm[i]-samples[i]) > 0.001 {
			t.Errorf("pcm[%d] = %f, want %f (±0.001)", i, pcm[i], samples[i])
		}
	}
}

func TestDecodeMono_Corrupted(t *testing.T) {
	data := buildWAV(44100, make([]float64, 16))
	if _, _, err := decodeMono(data[:20]); err == nil {
		t.Error("expected error for truncated file, got nil")
	}
}
