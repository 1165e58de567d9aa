package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/streamscribe/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func approxEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestPCM16ToFloat32(t *testing.T) {
	t.Parallel()
	got := audio.PCM16ToFloat32(samplesToBytes([]int16{0, 16384, -32768, 32767}))
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat32_OddByte(t *testing.T) {
	t.Parallel()
	got := audio.PCM16ToFloat32([]byte{0, 0x40, 0x7f})
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1", len(got))
	}
}

func TestFloat32ToPCM16_Clamps(t *testing.T) {
	t.Parallel()
	pcm := audio.Float32ToPCM16([]float32{2, -2, 0})
	got := []int16{
		int16(binary.LittleEndian.Uint16(pcm[0:])),
		int16(binary.LittleEndian.Uint16(pcm[2:])),
		int16(binary.LittleEndian.Uint16(pcm[4:])),
	}
	want := []int16{math.MaxInt16, math.MinInt16, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmixMono(t *testing.T) {
	t.Parallel()
	got := audio.DownmixMono([]float32{0.2, 0.4, -0.2, -0.4}, 2)
	want := []float32{0.3, -0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestResample(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      []float32
		src     int
		dst     int
		wantLen int
	}{
		{name: "same rate", in: make([]float32, 100), src: 16000, dst: 16000, wantLen: 100},
		{name: "downsample 48k", in: make([]float32, 960), src: 48000, dst: 16000, wantLen: 320},
		{name: "upsample 8k", in: make([]float32, 80), src: 8000, dst: 16000, wantLen: 160},
		{name: "zero rate", in: make([]float32, 10), src: 0, dst: 16000, wantLen: 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Resample(tc.in, tc.src, tc.dst)
			if len(got) != tc.wantLen {
				t.Errorf("len = %d, want %d", len(got), tc.wantLen)
			}
		})
	}
}

func TestResample_Interpolates(t *testing.T) {
	t.Parallel()
	got := audio.Resample([]float32{0, 1}, 1, 2)
	want := []float32{0, 0.5, 1, 1}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestParseEncoding(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    audio.Encoding
		wantErr bool
	}{
		{in: "", want: audio.EncodingPCM16},
		{in: "PCM16", want: audio.EncodingPCM16},
		{in: "f32", want: audio.EncodingFloat32},
		{in: "opus", want: audio.EncodingOpus},
		{in: "mp3", wantErr: true},
	}
	for _, tc := range tests {
		got, err := audio.ParseEncoding(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseEncoding(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseEncoding(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecoder_CarriesPartialFrames(t *testing.T) {
	t.Parallel()
	dec, err := audio.NewDecoder(audio.EncodingPCM16, audio.Format{SampleRate: 16000, Channels: 1}, 16000)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	pcm := samplesToBytes([]int16{16384, -16384, 8192})

	first, err := dec.Decode(pcm[:3])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(first) != 1 || !approxEqual(first[0], 0.5) {
		t.Fatalf("first chunk = %v, want [0.5]", first)
	}
	second, err := dec.Decode(pcm[3:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(second) != 2 || !approxEqual(second[0], -0.5) || !approxEqual(second[1], 0.25) {
		t.Fatalf("second chunk = %v, want [-0.5 0.25]", second)
	}
}

func TestDecoder_StereoFloat32(t *testing.T) {
	t.Parallel()
	dec, err := audio.NewDecoder(audio.EncodingFloat32, audio.Format{SampleRate: 16000, Channels: 2}, 16000)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	buf := make([]byte, 16)
	for i, v := range []float32{0.5, 0.1, -0.5, -0.1} {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	got, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 || !approxEqual(got[0], 0.3) || !approxEqual(got[1], -0.3) {
		t.Errorf("got %v, want [0.3 -0.3]", got)
	}
}

func TestNewDecoder_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := audio.NewDecoder(audio.EncodingPCM16, audio.Format{SampleRate: 0, Channels: 1}, 16000); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := audio.NewDecoder(audio.EncodingOpus, audio.Format{SampleRate: 44100, Channels: 1}, 16000); err == nil {
		t.Error("expected error for unsupported opus rate")
	}
}

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()
	samples := []float32{0, 0.5, -0.5, 0.25}
	wav := audio.EncodeWAV(samples, 16000)
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE magic")
	}

	w, err := audio.DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if w.Format != (audio.Format{SampleRate: 16000, Channels: 1}) {
		t.Errorf("format = %v", w.Format)
	}
	got := w.Samples(16000)
	if len(got) != len(samples) {
		t.Fatalf("len = %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if !approxEqual(got[i], samples[i]) {
			t.Errorf("sample %d: got %f, want %f", i, got[i], samples[i])
		}
	}
}

func TestDecodeWAV_NotWAV(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodeWAV(bytes.NewReader([]byte("ID3\x03this is an mp3 file"))); err == nil {
		t.Error("expected error")
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(make([]float32, 32000), 32000), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := audio.LoadFile(path, 16000)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(got) != 16000 {
		t.Errorf("len = %d, want 16000", len(got))
	}

	if _, err := audio.LoadFile(filepath.Join(dir, "x.ogg"), 16000); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
