package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Decoder turns inbound audio chunks of a fixed Format and Encoding into mono
// float32 samples at a target rate. Chunks need not be frame aligned for raw
// encodings; leftover bytes are carried into the next chunk.
//
// Create one per stream; not designed for shared use across goroutines.
type Decoder struct {
	source     Format
	encoding   Encoding
	targetRate int

	carry []byte
	opus  *opusDecoder

	warnedMismatch sync.Once
}

// NewDecoder creates a Decoder for chunks in encoding enc and format src,
// producing mono samples at targetRate.
func NewDecoder(enc Encoding, src Format, targetRate int) (*Decoder, error) {
	if src.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", src.SampleRate)
	}
	if src.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", src.Channels)
	}
	if targetRate <= 0 {
		return nil, errors.New("audio: target rate must be positive")
	}
	d := &Decoder{source: src, encoding: enc, targetRate: targetRate}
	if enc == EncodingOpus {
		od, err := newOpusDecoder(src)
		if err != nil {
			return nil, err
		}
		d.opus = od
	}
	return d, nil
}

// Format returns the source format the decoder was created for.
func (d *Decoder) Format() Format { return d.source }

// Decode converts one chunk. It returns nil without error when the chunk did
// not complete a single frame.
func (d *Decoder) Decode(chunk []byte) ([]float32, error) {
	var interleaved []float32
	switch d.encoding {
	case EncodingOpus:
		pcm, err := d.opus.decode(chunk)
		if err != nil {
			return nil, err
		}
		interleaved = PCM16ToFloat32(pcm)
	case EncodingPCM16, EncodingFloat32:
		frameBytes := d.encoding.bytesPerSample() * d.source.Channels
		buf := chunk
		if len(d.carry) > 0 {
			buf = append(d.carry, chunk...)
			d.carry = nil
		}
		usable := len(buf) - len(buf)%frameBytes
		if rest := buf[usable:]; len(rest) > 0 {
			d.carry = append([]byte(nil), rest...)
		}
		if usable == 0 {
			return nil, nil
		}
		if d.encoding == EncodingPCM16 {
			interleaved = PCM16ToFloat32(buf[:usable])
		} else {
			interleaved = Float32LEToSamples(buf[:usable])
		}
	default:
		return nil, fmt.Errorf("audio: unsupported encoding %q", d.encoding)
	}

	if d.source.SampleRate != d.targetRate || d.source.Channels != 1 {
		d.warnedMismatch.Do(func() {
			slog.Debug("audio decoder: converting",
				"from", d.source.String(),
				"to", formatString(d.targetRate, 1),
			)
		})
	}
	return ToMono16k(interleaved, d.source, d.targetRate), nil
}
