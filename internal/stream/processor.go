// Package stream implements incremental transcript consolidation for a
// single live audio stream.
//
// A Processor repeatedly transcribes its whole buffered audio window with a
// batch [asr.Backend] and compares each pass against the previous one. Words
// both passes agree on become confirmed and are returned exactly once; the
// rest stays tentative. Confirmed audio is trimmed from the window at sentence
// boundaries, or at backend segment boundaries once the window grows past a
// limit, so memory and latency stay bounded.
//
// A Processor is not safe for concurrent use. Create one per stream; the
// backend it wraps may be shared.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/streamscribe/internal/observe"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
	"github.com/MrWong99/streamscribe/pkg/provider/sentence"
)

const (
	// DefaultBufferTrimSeconds is the window length past which segment
	// boundaries are used to trim audio.
	DefaultBufferTrimSeconds = 30.0

	// DefaultPromptChars is the character budget of the continuity prompt.
	DefaultPromptChars = 200
)

// Fragment is a run of words returned by the processor. The zero Fragment
// is empty and carries no timestamps.
type Fragment struct {
	// Start and End are absolute session times in seconds.
	Start float64
	End   float64
	Text  string
	Words []asr.Word
}

// Empty reports whether f carries no words.
func (f Fragment) Empty() bool { return len(f.Words) == 0 }

// Processor is the consolidation engine for one stream.
type Processor struct {
	backend     asr.Backend
	segmenter   sentence.Segmenter
	backendName string
	trimSeconds float64
	promptChars int
	logger      *slog.Logger
	metrics     *observe.Metrics
	tracer      trace.Tracer

	audio     *accumulator
	hyp       *hypothesis
	committed []asr.Word
}

// Option is a functional option for configuring a Processor.
type Option func(*Processor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithTracerProvider sets where iteration spans are recorded. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Processor) { p.tracer = observe.Tracer(tp) }
}

// WithBackendName sets the backend label used in metrics.
func WithBackendName(name string) Option {
	return func(p *Processor) { p.backendName = name }
}

// WithBufferTrimSeconds sets the window length past which segment-boundary
// trimming runs. Non-positive values keep the default.
func WithBufferTrimSeconds(s float64) Option {
	return func(p *Processor) {
		if s > 0 {
			p.trimSeconds = s
		}
	}
}

// WithPromptChars sets the prompt character budget. Negative values keep the
// default; zero disables the prompt built from confirmed history.
func WithPromptChars(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.promptChars = n
		}
	}
}

// New creates a Processor. backend and segmenter must not be nil.
func New(backend asr.Backend, segmenter sentence.Segmenter, opts ...Option) (*Processor, error) {
	if backend == nil {
		return nil, errors.New("stream: backend must not be nil")
	}
	if segmenter == nil {
		return nil, errors.New("stream: segmenter must not be nil")
	}
	p := &Processor{
		backend:     backend,
		segmenter:   segmenter,
		backendName: "default",
		trimSeconds: DefaultBufferTrimSeconds,
		promptChars: DefaultPromptChars,
	}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.tracer == nil {
		p.tracer = observe.Tracer(nil)
	}
	p.audio = newAccumulator(asr.SampleRate)
	p.Init()
	return p, nil
}

// Init resets all stream state. Call it before reusing the processor for an
// unrelated stream.
func (p *Processor) Init() {
	p.audio.reset()
	p.hyp = newHypothesis(p.logger)
	p.committed = nil
}

// InsertAudioChunk appends mono samples at asr.SampleRate to the window.
func (p *Processor) InsertAudioChunk(samples []float32) {
	p.audio.append(samples)
}

// ProcessIter runs one iteration over the buffered window and returns the
// words confirmed by it. initialPrompt is used when there is no confirmed
// history outside the window yet.
//
// If the backend call fails the error is returned and no state changes, so
// the caller may continue with more audio.
func (p *Processor) ProcessIter(ctx context.Context, initialPrompt string) (Fragment, error) {
	ctx, span := p.tracer.Start(ctx, "stream.ProcessIter")
	defer span.End()
	start := time.Now()

	prompt, inWindow := buildPrompt(p.committed, p.audio.lastChunkedAt, p.backend.Separator(), p.promptChars)
	if prompt == "" {
		prompt = initialPrompt
	}
	window := p.audio.durationSeconds()
	p.logger.Debug("transcribing",
		"seconds", window,
		"offset", p.audio.offset,
		"prompt", prompt,
		"context", inWindow,
	)
	span.SetAttributes(
		observe.WindowSecondsKey.Float64(window),
		observe.OffsetKey.Float64(p.audio.offset),
	)
	p.metrics.BufferedAudio.Record(ctx, window)

	callStart := time.Now()
	res, err := p.backend.Transcribe(ctx, p.audio.samples, prompt)
	elapsed := time.Since(callStart).Seconds()
	if err != nil {
		p.metrics.RecordBackendRequest(ctx, p.backendName, "error", elapsed)
		p.metrics.RecordBackendError(ctx, p.backendName)
		span.RecordError(err)
		return Fragment{}, fmt.Errorf("stream: transcribe: %w", err)
	}
	p.metrics.RecordBackendRequest(ctx, p.backendName, "ok", elapsed)

	p.hyp.insert(p.backend.Words(res), p.audio.offset)
	confirmed := p.hyp.flush()
	p.committed = append(p.committed, confirmed...)

	if len(confirmed) > 0 {
		p.metrics.WordsCommitted.Add(ctx, int64(len(confirmed)))
		p.chunkCompletedSentence(ctx)
	} else if p.audio.durationSeconds() > p.trimSeconds {
		p.chunkCompletedSegment(ctx, p.backend.SegmentEnds(res))
	}

	p.metrics.IterationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("backend", p.backendName)))
	span.SetAttributes(observe.ConfirmedWordsKey.Int(len(confirmed)))
	if tail := p.hyp.complete(); len(tail) > 0 {
		p.logger.Debug("tentative tail", "text", asr.JoinWords(tail, p.backend.Separator()))
	}
	return p.toFragment(confirmed), nil
}

// Tentative returns the current unconfirmed tail. It is never final and may
// be revised by the next iteration.
func (p *Processor) Tentative() Fragment {
	return p.toFragment(p.hyp.complete())
}

// Finish returns the tentative tail as a best-effort remainder at end of
// stream. It is not confirmed and does not change state; call Init to start
// over.
func (p *Processor) Finish() Fragment {
	return p.toFragment(p.hyp.complete())
}

// BufferedSeconds returns the length of the audio window.
func (p *Processor) BufferedSeconds() float64 { return p.audio.durationSeconds() }

// Offset returns the absolute session time of the start of the window.
func (p *Processor) Offset() float64 { return p.audio.offset }

// Committed returns a copy of the confirmed transcript.
func (p *Processor) Committed() []asr.Word {
	out := make([]asr.Word, len(p.committed))
	copy(out, p.committed)
	return out
}

// chunkCompletedSentence cuts the window at the end of the second-to-last
// confirmed sentence, keeping the last sentence as context.
func (p *Processor) chunkCompletedSentence(ctx context.Context) {
	if len(p.committed) == 0 {
		return
	}
	sents := wordsToSentences(p.committed, p.segmenter)
	if len(sents) < 2 {
		return
	}
	sents = sents[len(sents)-2:]
	p.chunkAt(ctx, sents[0].End, "sentence")
}

// chunkCompletedSegment cuts the window at the latest backend segment
// boundary that is not past the last confirmed word. ends are relative to
// the window start.
func (p *Processor) chunkCompletedSegment(ctx context.Context, ends []float64) {
	if len(p.committed) == 0 || len(ends) < 2 {
		return
	}
	t := p.committed[len(p.committed)-1].End
	e := ends[len(ends)-2] + p.audio.offset
	for len(ends) > 2 && e > t {
		ends = ends[:len(ends)-1]
		e = ends[len(ends)-2] + p.audio.offset
	}
	if e <= t {
		p.chunkAt(ctx, e, "segment")
		return
	}
	p.logger.Debug("no segment boundary behind confirmed text", "last_confirmed", t)
}

// chunkAt discards audio and committed bookkeeping before t, an absolute
// session time.
func (p *Processor) chunkAt(ctx context.Context, t float64, reason string) {
	if t <= p.audio.offset {
		return
	}
	p.hyp.popCommitted(t)
	cut := p.audio.cutAt(t)
	p.metrics.RecordTrim(ctx, reason, cut)
	observe.AddChunkEvent(ctx, reason, t, cut)
	observe.WithSpan(ctx, p.logger).Debug("trimmed audio window", "reason", reason, "at", t, "remaining", p.audio.durationSeconds())
}

func (p *Processor) toFragment(words []asr.Word) Fragment {
	if len(words) == 0 {
		return Fragment{}
	}
	return Fragment{
		Start: words[0].Start,
		End:   words[len(words)-1].End,
		Text:  asr.JoinWords(words, p.backend.Separator()),
		Words: words,
	}
}
