package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// EncodeWAV wraps mono float samples at sampleRate in a 16-bit PCM RIFF/WAV
// container, suitable for multipart uploads to HTTP transcription servers.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	return encodeWAVPCM(Float32ToPCM16(samples), sampleRate, 1)
}

func encodeWAVPCM(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// WAV is a decoded 16-bit PCM WAV file.
type WAV struct {
	Format Format
	// PCM is the raw interleaved little-endian int16 data chunk.
	PCM []byte
}

// Samples returns the audio as mono float samples at dstRate.
func (w *WAV) Samples(dstRate int) []float32 {
	return ToMono16k(PCM16ToFloat32(w.PCM), w.Format, dstRate)
}

var errNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// DecodeWAV reads a RIFF/WAVE stream holding 16-bit integer PCM. Chunks other
// than "fmt " and "data" are skipped.
func DecodeWAV(r io.Reader) (*WAV, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("audio: read wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	var (
		w      WAV
		gotFmt bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, fmt.Errorf("audio: wav has no data chunk: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: wav fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("audio: read wav fmt chunk: %w", err)
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 {
				return nil, fmt.Errorf("audio: unsupported wav format tag %d", tag)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return nil, fmt.Errorf("audio: unsupported wav bit depth %d", bits)
			}
			w.Format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			w.Format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, errors.New("audio: wav data chunk before fmt chunk")
			}
			pcm, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, fmt.Errorf("audio: read wav data: %w", err)
			}
			w.PCM = pcm
			return &w, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("audio: skip wav chunk %q: %w", id, err)
			}
		}
	}
}
