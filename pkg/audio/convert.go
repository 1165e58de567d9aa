// Package audio converts inbound audio into the mono float32 samples the
// recognition backends consume. It decodes raw PCM, float and Opus streams,
// down-mixes and resamples them, and reads WAV and FLAC files.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Encoding names the wire encoding of inbound audio chunks.
type Encoding string

const (
	// EncodingPCM16 is 16-bit signed little-endian interleaved PCM.
	EncodingPCM16 Encoding = "pcm16"

	// EncodingFloat32 is 32-bit IEEE-754 little-endian interleaved samples
	// in [-1, 1].
	EncodingFloat32 Encoding = "f32"

	// EncodingOpus is one Opus packet per chunk.
	EncodingOpus Encoding = "opus"
)

// ParseEncoding validates s and returns the matching Encoding. An empty
// string selects EncodingPCM16.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(s)); e {
	case "":
		return EncodingPCM16, nil
	case EncodingPCM16, EncodingFloat32, EncodingOpus:
		return e, nil
	default:
		return "", fmt.Errorf("audio: unknown encoding %q", s)
	}
}

// bytesPerSample returns the size of one sample of e, or 0 for packetised
// encodings.
func (e Encoding) bytesPerSample() int {
	switch e {
	case EncodingPCM16:
		return 2
	case EncodingFloat32:
		return 4
	default:
		return 0
	}
}

// PCM16ToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to [-1.0, 1.0]. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// Float32LEToSamples reinterprets little-endian IEEE-754 bytes as float32
// samples. Trailing bytes that do not form a full sample are ignored.
func Float32LEToSamples(b []byte) []float32 {
	n := len(b) / 4
	samples := make([]float32, n)
	for i := range n {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return samples
}

// Float32ToPCM16 converts float samples to 16-bit little-endian PCM,
// clamping to the int16 range.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * 32768.0
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DownmixMono averages interleaved channels into a single channel. If
// channels is 1 or less the input is returned unchanged.
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, or either is not positive, the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}
	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))
		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// ToMono16k down-mixes and resamples interleaved samples of format f to
// mono at dstRate.
func ToMono16k(samples []float32, f Format, dstRate int) []float32 {
	return Resample(DownmixMono(samples, f.Channels), f.SampleRate, dstRate)
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
