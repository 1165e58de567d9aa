// Package mock provides a test double for asr.Backend.
//
// Backend returns scripted Results in order, one per Transcribe call, and
// records every call so tests can inspect the audio length and prompt the
// engine sent.
//
// Example:
//
//	b := &mock.Backend{Results: []*asr.Result{mock.Words(0, "hello")}}
//	res, _ := b.Transcribe(ctx, samples, "")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Backend.Transcribe.
type TranscribeCall struct {
	// Samples is the number of samples passed to Transcribe.
	Samples int
	// Prompt is the prompt passed to Transcribe.
	Prompt string
}

// Backend is a mock implementation of asr.Backend.
type Backend struct {
	mu sync.Mutex

	// Results are returned in order. Once exhausted the last Result is
	// repeated; an empty Results slice yields an empty Result.
	Results []*asr.Result

	// Errs, when set, are consumed in order alongside Results. A non-nil
	// entry makes that call fail without consuming a Result.
	Errs []error

	// Sep is returned by Separator. Defaults to " " when empty and
	// NoSeparator is false.
	Sep string

	// NoSeparator makes Separator return "".
	NoSeparator bool

	// Calls records every call to Transcribe.
	Calls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next scripted Result or error.
func (b *Backend) Transcribe(ctx context.Context, samples []float32, prompt string) (*asr.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, TranscribeCall{Samples: len(samples), Prompt: prompt})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(b.Errs) > 0 {
		err := b.Errs[0]
		b.Errs = b.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(b.Results) == 0 {
		return &asr.Result{}, nil
	}
	i := b.next
	if i >= len(b.Results) {
		i = len(b.Results) - 1
	} else {
		b.next++
	}
	return b.Results[i], nil
}

// Words returns asr.WordsOf(r).
func (b *Backend) Words(r *asr.Result) []asr.Word { return asr.WordsOf(r) }

// SegmentEnds returns asr.SegmentEndsOf(r).
func (b *Backend) SegmentEnds(r *asr.Result) []float64 { return asr.SegmentEndsOf(r) }

// Separator returns the configured separator.
func (b *Backend) Separator() string {
	if b.NoSeparator {
		return ""
	}
	if b.Sep == "" {
		return " "
	}
	return b.Sep
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// LastCall returns the most recent call, or the zero value. Thread-safe.
func (b *Backend) LastCall() TranscribeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Calls) == 0 {
		return TranscribeCall{}
	}
	return b.Calls[len(b.Calls)-1]
}

var _ asr.Backend = (*Backend)(nil)

// Words builds a single-segment Result whose words are one second long each,
// starting at start. The segment ends where the last word ends.
func Words(start float64, texts ...string) *asr.Result {
	seg := asr.Segment{Start: start, End: start}
	for i, t := range texts {
		w := asr.Word{Start: start + float64(i), End: start + float64(i) + 1, Text: t}
		seg.Words = append(seg.Words, w)
		seg.End = w.End
		if i > 0 {
			seg.Text += " "
		}
		seg.Text += t
	}
	return &asr.Result{Segments: []asr.Segment{seg}}
}

// Segments builds a Result from explicit segments.
func Segments(segs ...asr.Segment) *asr.Result {
	return &asr.Result{Segments: segs}
}
