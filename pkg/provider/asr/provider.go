// Package asr defines the Backend interface for batch speech recognition
// engines used by the streaming transcript engine.
//
// A Backend maps a window of 16 kHz mono float32 audio plus a short textual
// prompt to a Result holding timestamped segments and words. The backend has no
// notion of finality: repeated calls over overlapping audio are expected to
// agree on the unchanged portion, and the stream package infers which words are
// final from that agreement.
//
// Implementations must be safe for concurrent use. A loaded model is shared
// read-only by every session; per-call inference state must not leak between
// calls.
package asr

import (
	"context"
	"errors"
)

// SampleRate is the audio sample rate in Hz that every Backend expects.
const SampleRate = 16000

// ErrNoModel is returned by backend constructors when no model identifier or
// model path was supplied.
var ErrNoModel = errors.New("asr: no model configured")

// Backend is the abstraction over any batch transcription engine.
type Backend interface {
	// Transcribe runs recognition over samples (mono, SampleRate Hz, range
	// [-1, 1]) using prompt as continuity context. Timestamps in the returned
	// Result are relative to the first sample.
	Transcribe(ctx context.Context, samples []float32, prompt string) (*Result, error)

	// Words flattens r into timestamped words in temporal order.
	Words(r *Result) []Word

	// SegmentEnds returns the end timestamp of every segment in r.
	SegmentEnds(r *Result) []float64

	// Separator is the string placed between word texts when joining them.
	// Backends whose words carry their own leading space return "".
	Separator() string
}

// Options holds recognition settings shared by all backends. Not every
// backend honours every field.
type Options struct {
	// Language is the ISO-639-1 code of the spoken language. Empty means
	// auto-detect where the backend supports it.
	Language string

	// Translate asks the backend to translate into English instead of
	// transcribing.
	Translate bool

	// BeamSize is the beam search width. Zero leaves the backend default.
	BeamSize int

	// VADFilter enables the backend's own voice activity filter.
	VADFilter bool
}
