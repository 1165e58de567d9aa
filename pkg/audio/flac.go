package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// DecodeFLAC reads a FLAC stream and returns its samples as interleaved
// float32 in [-1, 1] together with the stream format.
func DecodeFLAC(r io.Reader) ([]float32, Format, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: open flac stream: %w", err)
	}
	defer stream.Close()

	f := Format{
		SampleRate: int(stream.Info.SampleRate),
		Channels:   int(stream.Info.NChannels),
	}
	scale := float32(int64(1) << (stream.Info.BitsPerSample - 1))

	var out []float32
	if n := stream.Info.NSamples; n > 0 {
		out = make([]float32, 0, int(n)*f.Channels)
	}
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, Format{}, fmt.Errorf("audio: parse flac frame: %w", err)
		}
		if len(frame.Subframes) == 0 {
			continue
		}
		for i := range frame.Subframes[0].NSamples {
			for _, sub := range frame.Subframes {
				out = append(out, float32(sub.Samples[i])/scale)
			}
		}
	}
	return out, f, nil
}
