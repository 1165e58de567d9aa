package stream

import (
	"context"
	"errors"
	"math"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/streamscribe/internal/observe"
	"github.com/MrWong99/streamscribe/pkg/provider/asr"
	"github.com/MrWong99/streamscribe/pkg/provider/asr/mock"
	"github.com/MrWong99/streamscribe/pkg/provider/sentence"
)

func seconds(s float64) []float32 {
	return make([]float32, int(s*asr.SampleRate))
}

func newTestProcessor(t *testing.T, b asr.Backend, opts ...Option) *Processor {
	t.Helper()
	p, err := New(b, sentence.NewRules("en"), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, sentence.NewRules("en")); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, err := New(&mock.Backend{}, nil); err == nil {
		t.Error("expected error for nil segmenter")
	}
}

func TestProcessor_OverlappingPassesEmitOnce(t *testing.T) {
	t.Parallel()
	b := &mock.Backend{Results: []*asr.Result{
		mock.Words(0, "hello"),
		mock.Words(0, "hello", "world"),
		mock.Words(0, "hello", "world"),
	}}
	p := newTestProcessor(t, b)
	ctx := context.Background()

	p.InsertAudioChunk(seconds(1))
	f, err := p.ProcessIter(ctx, "")
	if err != nil {
		t.Fatalf("iteration 1: %v", err)
	}
	if !f.Empty() {
		t.Fatalf("iteration 1 emitted %q, want nothing", f.Text)
	}

	p.InsertAudioChunk(seconds(1))
	f, err = p.ProcessIter(ctx, "")
	if err != nil {
		t.Fatalf("iteration 2: %v", err)
	}
	if f.Text != "hello" || f.Start != 0 || f.End != 1 {
		t.Fatalf("iteration 2 = %+v, want hello (0-1)", f)
	}

	f, err = p.ProcessIter(ctx, "")
	if err != nil {
		t.Fatalf("iteration 3: %v", err)
	}
	if f.Text != "world" {
		t.Fatalf("iteration 3 = %q, want world", f.Text)
	}

	assertTexts(t, "committed", p.Committed(), "hello", "world")
	if rest := p.Finish(); !rest.Empty() {
		t.Errorf("Finish = %+v, want empty", rest)
	}
}

func TestProcessor_FinishReturnsTentativeTail(t *testing.T) {
	t.Parallel()
	b := &mock.Backend{Results: []*asr.Result{mock.Words(0, "not", "yet")}}
	p := newTestProcessor(t, b)

	p.InsertAudioChunk(seconds(2))
	if _, err := p.ProcessIter(context.Background(), ""); err != nil {
		t.Fatalf("ProcessIter: %v", err)
	}
	rest := p.Finish()
	if rest.Text != "not yet" || rest.Start != 0 || rest.End != 2 {
		t.Errorf("Finish = %+v, want \"not yet\" (0-2)", rest)
	}
	if len(p.Committed()) != 0 {
		t.Error("Finish must not confirm the tentative tail")
	}
}

func TestProcessor_BackendErrorLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	boom := errors.New("inference failed")
	b := &mock.Backend{
		Results: []*asr.Result{mock.Words(0, "hello"), mock.Words(0, "hello", "world")},
		Errs:    []error{nil, boom},
	}
	p := newTestProcessor(t, b)
	ctx := context.Background()

	p.InsertAudioChunk(seconds(1))
	if _, err := p.ProcessIter(ctx, ""); err != nil {
		t.Fatalf("iteration 1: %v", err)
	}
	before := p.Tentative()

	p.InsertAudioChunk(seconds(1))
	f, err := p.ProcessIter(ctx, "")
	if !errors.Is(err, boom) {
		t.Fatalf("iteration 2 err = %v, want %v", err, boom)
	}
	if !f.Empty() {
		t.Errorf("failed iteration emitted %+v", f)
	}
	if after := p.Tentative(); after.Text != before.Text {
		t.Errorf("tentative changed on failure: %q -> %q", before.Text, after.Text)
	}
	if !approx(p.BufferedSeconds(), 2) {
		t.Errorf("buffered = %v, want 2 (audio kept after failure)", p.BufferedSeconds())
	}

	f, err = p.ProcessIter(ctx, "")
	if err != nil {
		t.Fatalf("iteration 3: %v", err)
	}
	if f.Text != "hello" {
		t.Errorf("iteration 3 = %q, want hello", f.Text)
	}
}

func TestProcessor_InitialPromptUsedWithoutHistory(t *testing.T) {
	t.Parallel()
	b := &mock.Backend{}
	p := newTestProcessor(t, b)

	p.InsertAudioChunk(seconds(1))
	if _, err := p.ProcessIter(context.Background(), "Kubernetes, etcd"); err != nil {
		t.Fatalf("ProcessIter: %v", err)
	}
	if got := b.LastCall().Prompt; got != "Kubernetes, etcd" {
		t.Errorf("prompt = %q, want initial prompt", got)
	}
	if got := b.LastCall().Samples; got != asr.SampleRate {
		t.Errorf("samples = %d, want %d", got, asr.SampleRate)
	}
}

func TestProcessor_ChunkAt(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, &mock.Backend{})
	p.InsertAudioChunk(seconds(20))
	p.audio.offset = 2
	p.hyp.committed = newWordQueue(w(2, 3, "a"), w(3, 5, "b"), w(5, 6, "c"))

	p.chunkAt(context.Background(), 5, "sentence")

	if !approx(p.BufferedSeconds(), 17) {
		t.Errorf("buffered = %v, want 17", p.BufferedSeconds())
	}
	if p.Offset() != 5 || p.audio.lastChunkedAt != 5 {
		t.Errorf("offset = %v, lastChunkedAt = %v, want 5", p.Offset(), p.audio.lastChunkedAt)
	}
	for _, cw := range p.hyp.committed.slice() {
		if cw.End <= 5 {
			t.Errorf("committed word %+v ends at or before the cut", cw)
		}
	}
}

func TestProcessor_ChunkAtNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, &mock.Backend{})
	p.InsertAudioChunk(seconds(4))
	p.audio.offset = 10

	p.chunkAt(context.Background(), 8, "segment")

	if p.Offset() != 10 || !approx(p.BufferedSeconds(), 4) {
		t.Errorf("offset = %v, buffered = %v; cut behind the window must be ignored", p.Offset(), p.BufferedSeconds())
	}
}

func TestProcessor_SentenceChunking(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		words   []asr.Word
		wantCut float64
	}{
		{
			name:    "single sentence keeps window",
			words:   []asr.Word{w(0, 1, "Hello"), w(1, 2, "world.")},
			wantCut: 0,
		},
		{
			name:    "two sentences cut after first",
			words:   []asr.Word{w(0, 1, "One."), w(1, 2, "Two.")},
			wantCut: 1,
		},
		{
			name: "three sentences keep last as context",
			words: []asr.Word{
				w(0, 1, "First."), w(1.5, 2, "Second"), w(2, 3, "one."), w(3.5, 4, "Third."),
			},
			wantCut: 3,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProcessor(t, &mock.Backend{})
			p.InsertAudioChunk(seconds(5))
			p.committed = tc.words

			p.chunkCompletedSentence(context.Background())

			if p.Offset() != tc.wantCut {
				t.Errorf("cut at %v, want %v", p.Offset(), tc.wantCut)
			}
			if !approx(p.BufferedSeconds(), 5-tc.wantCut) {
				t.Errorf("buffered = %v, want %v", p.BufferedSeconds(), 5-tc.wantCut)
			}
		})
	}
}

func TestProcessor_SegmentChunking(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		offset   float64
		lastEnd  float64
		ends     []float64
		wantCut  float64
		wantTrim bool
	}{
		{name: "second to last boundary", lastEnd: 2, ends: []float64{1, 2, 3}, wantCut: 2, wantTrim: true},
		{name: "walks back to safe boundary", lastEnd: 1.5, ends: []float64{1, 2, 3, 4}, wantCut: 1, wantTrim: true},
		{name: "all boundaries ahead", lastEnd: 2, ends: []float64{2.5, 3, 3.5}, wantTrim: false},
		{name: "single segment", lastEnd: 5, ends: []float64{3}, wantTrim: false},
		{name: "shifted by offset", offset: 10, lastEnd: 12, ends: []float64{1, 2, 3}, wantCut: 12, wantTrim: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProcessor(t, &mock.Backend{})
			p.InsertAudioChunk(seconds(6))
			p.audio.offset = tc.offset
			p.committed = []asr.Word{w(tc.offset, tc.lastEnd, "x")}

			p.chunkCompletedSegment(context.Background(), tc.ends)

			if !tc.wantTrim {
				if p.Offset() != tc.offset {
					t.Errorf("offset moved to %v, want no cut", p.Offset())
				}
				return
			}
			if p.Offset() != tc.wantCut {
				t.Errorf("cut at %v, want %v", p.Offset(), tc.wantCut)
			}
		})
	}
}

func TestProcessor_SegmentChunkingOnlyWithoutNewWords(t *testing.T) {
	t.Parallel()
	seg := func(s, e float64, words ...asr.Word) asr.Segment {
		return asr.Segment{Start: s, End: e, Words: words}
	}
	b := &mock.Backend{Results: []*asr.Result{
		mock.Segments(seg(0, 1, w(0, 1, "a")), seg(1, 2, w(1, 2, "b"))),
		mock.Segments(seg(0, 1, w(0, 1, "a")), seg(1, 2, w(1, 2, "b")), seg(2, 3, w(2, 3, "c"))),
		mock.Segments(seg(0, 1, w(0, 1, "a")), seg(1, 2, w(1, 2, "b")), seg(2, 3, w(2, 3, "x"))),
	}}
	p := newTestProcessor(t, b, WithBufferTrimSeconds(3))
	ctx := context.Background()

	p.InsertAudioChunk(seconds(2))
	if _, err := p.ProcessIter(ctx, ""); err != nil {
		t.Fatal(err)
	}
	p.InsertAudioChunk(seconds(1))
	f, err := p.ProcessIter(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "a b" {
		t.Fatalf("iteration 2 = %q, want \"a b\"", f.Text)
	}
	if p.Offset() != 0 {
		t.Fatalf("window cut after confirmation without sentence boundary: offset %v", p.Offset())
	}

	// Nothing new agrees and the window exceeds 3s: fall back to segments.
	p.InsertAudioChunk(seconds(1))
	f, err = p.ProcessIter(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !f.Empty() {
		t.Fatalf("iteration 3 emitted %q", f.Text)
	}
	if p.Offset() != 2 {
		t.Errorf("offset = %v, want 2 (segment boundary at last confirmed word)", p.Offset())
	}
	if !approx(p.BufferedSeconds(), 2) {
		t.Errorf("buffered = %v, want 2", p.BufferedSeconds())
	}
}

func TestProcessor_PromptAfterCut(t *testing.T) {
	t.Parallel()
	b := &mock.Backend{Results: []*asr.Result{
		mock.Words(0, "One.", "Two.", "Three"),
		mock.Words(0, "One.", "Two.", "Three", "four"),
		mock.Words(0, "Three", "four", "five"),
	}}
	p := newTestProcessor(t, b)
	ctx := context.Background()

	p.InsertAudioChunk(seconds(4))
	if _, err := p.ProcessIter(ctx, "initial"); err != nil {
		t.Fatal(err)
	}
	f, err := p.ProcessIter(ctx, "initial")
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "One. Two. Three" {
		t.Fatalf("confirmed = %q", f.Text)
	}
	// Three sentences; the last two are kept, so the cut lands after "Two.".
	if p.Offset() != 2 {
		t.Fatalf("offset = %v, want 2", p.Offset())
	}

	if _, err := p.ProcessIter(ctx, "initial"); err != nil {
		t.Fatal(err)
	}
	if got := b.LastCall().Prompt; got != "One. Two." {
		t.Errorf("prompt after cut = %q, want \"One. Two.\"", got)
	}
	if got := b.LastCall().Samples; got != 2*asr.SampleRate {
		t.Errorf("samples after cut = %d, want %d", got, 2*asr.SampleRate)
	}
}

func TestProcessor_InitResets(t *testing.T) {
	t.Parallel()
	b := &mock.Backend{Results: []*asr.Result{mock.Words(0, "a"), mock.Words(0, "a", "b")}}
	p := newTestProcessor(t, b)
	ctx := context.Background()

	p.InsertAudioChunk(seconds(2))
	_, _ = p.ProcessIter(ctx, "")
	_, _ = p.ProcessIter(ctx, "")
	p.chunkAt(ctx, 1, "sentence")

	p.Init()
	if p.BufferedSeconds() != 0 || p.Offset() != 0 || len(p.Committed()) != 0 || !p.Finish().Empty() {
		t.Error("Init did not reset all state")
	}
}

func TestProcessor_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	b := &mock.Backend{Results: []*asr.Result{mock.Words(0, "a", "b"), mock.Words(0, "a", "b")}}
	p := newTestProcessor(t, b, WithMetrics(m), WithBackendName("mock"))
	p.InsertAudioChunk(seconds(2))
	for range 2 {
		if _, err := p.ProcessIter(context.Background(), ""); err != nil {
			t.Fatal(err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var committed int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "streamscribe.words.committed" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				committed += dp.Value
			}
		}
	}
	if committed != 2 {
		t.Errorf("words committed metric = %d, want 2", committed)
	}
}
