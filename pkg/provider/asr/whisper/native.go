// This file contains the Native backend backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that Native satisfies asr.Backend.
var _ asr.Backend = (*Native)(nil)

// Native implements asr.Backend using whisper.cpp Go bindings. The model is
// loaded once and shared read-only across all sessions; every Transcribe call
// creates its own whisper context.
type Native struct {
	model   whisperlib.Model
	opts    asr.Options
	threads uint
}

// NativeOption is a functional option for configuring a Native backend.
type NativeOption func(*Native)

// WithOptions sets the shared recognition options.
func WithOptions(o asr.Options) NativeOption {
	return func(n *Native) { n.opts = o }
}

// WithThreads sets the number of CPU threads used per inference. Defaults to
// runtime.NumCPU().
func WithThreads(threads int) NativeOption {
	return func(n *Native) {
		if threads > 0 {
			n.threads = uint(threads)
		}
	}
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the backend is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: %w", asr.ErrNoModel)
	}
	n := &Native{
		opts:    asr.Options{Language: defaultLanguage},
		threads: uint(runtime.NumCPU()),
	}
	for _, o := range opts {
		o(n)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n.model = model
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Separator returns "" because whisper.cpp tokens carry their own leading
// space.
func (n *Native) Separator() string { return "" }

// Words returns the words of r with their leading spaces intact.
func (n *Native) Words(r *asr.Result) []asr.Word { return asr.WordsOf(r) }

// SegmentEnds returns the end timestamp of each segment in r.
func (n *Native) SegmentEnds(r *asr.Result) []float64 { return asr.SegmentEndsOf(r) }

// Transcribe runs whisper.cpp over samples with token timestamps enabled and
// groups tokens into words.
func (n *Native) Transcribe(ctx context.Context, samples []float32, prompt string) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	// Contexts are not thread-safe, but the model can be shared.
	wctx, err := n.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if n.opts.Language != "" {
		if err := wctx.SetLanguage(n.opts.Language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", n.opts.Language, "err", err)
		}
	}
	wctx.SetTranslate(n.opts.Translate)
	wctx.SetTokenTimestamps(true)
	wctx.SetThreads(n.threads)
	if n.opts.BeamSize > 0 {
		wctx.SetBeamSize(n.opts.BeamSize)
	}
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	// The encoder-begin callback aborts inference once ctx is cancelled.
	if err := wctx.Process(samples, func() bool { return ctx.Err() == nil }, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	res := &asr.Result{Language: wctx.Language()}
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		var toks []token
		for _, t := range seg.Tokens {
			if !wctx.IsText(t) {
				continue
			}
			toks = append(toks, token{Text: t.Text, Start: t.Start.Seconds(), End: t.End.Seconds()})
		}
		res.Segments = append(res.Segments, asr.Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  seg.Text,
			Words: mergeTokens(toks),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return res, nil
}
