package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// maxOpusFrameMs is the longest frame duration an Opus packet may carry.
const maxOpusFrameMs = 120

// opusDecoder wraps a gopus decoder for a single inbound stream. Decoder
// state carries across consecutive packets, so each stream owns one.
type opusDecoder struct {
	dec       *gopus.Decoder
	frameSize int
}

// newOpusDecoder creates an Opus decoder producing PCM at f.
func newOpusDecoder(f Format) (*opusDecoder, error) {
	switch f.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("audio: opus does not support %d Hz", f.SampleRate)
	}
	if f.Channels > 2 {
		return nil, fmt.Errorf("audio: opus supports at most 2 channels, got %d", f.Channels)
	}
	dec, err := gopus.NewDecoder(f.SampleRate, f.Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, frameSize: f.SampleRate * maxOpusFrameMs / 1000}, nil
}

// decode decodes one Opus packet into interleaved little-endian int16 PCM.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// int16sToBytes converts int16 samples to little-endian bytes.
func int16sToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
