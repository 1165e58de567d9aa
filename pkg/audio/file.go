package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads a WAV or FLAC file and returns mono samples at dstRate. The
// container is chosen by file extension.
func LoadFile(path string, dstRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		w, err := DecodeWAV(f)
		if err != nil {
			return nil, fmt.Errorf("audio: decode %q: %w", path, err)
		}
		return w.Samples(dstRate), nil
	case ".flac":
		samples, format, err := DecodeFLAC(f)
		if err != nil {
			return nil, fmt.Errorf("audio: decode %q: %w", path, err)
		}
		return ToMono16k(samples, format, dstRate), nil
	default:
		return nil, fmt.Errorf("audio: unsupported file type %q", ext)
	}
}
