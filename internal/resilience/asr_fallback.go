package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

// Compile-time interface assertion.
var _ asr.Backend = (*ASRFallback)(nil)

// ASRFallback exposes a [FallbackGroup] of recognition backends as a single
// [asr.Backend]. Each Transcribe call is served by the first healthy entry.
//
// The stream engine joins word texts with one separator for the lifetime of a
// session, so results must look the same whichever entry produced them. When
// the entries disagree on their separator, ASRFallback trims the leading space
// from words of "" separator backends and reports " " itself.
type ASRFallback struct {
	group *FallbackGroup[asr.Backend]
	sep   string
	mixed bool
}

// NewASRFallback creates an ASRFallback over group. Entries must not be added
// to group afterwards.
func NewASRFallback(group *FallbackGroup[asr.Backend]) *ASRFallback {
	f := &ASRFallback{group: group}
	primary, _ := group.Primary()
	f.sep = primary.Separator()
	for _, b := range group.Values()[1:] {
		if b.Separator() != f.sep {
			f.mixed = true
		}
	}
	if f.mixed {
		f.sep = " "
	}
	return f
}

// Transcribe runs the call through the group and normalizes the result when
// the group mixes separators.
func (f *ASRFallback) Transcribe(ctx context.Context, samples []float32, prompt string) (*asr.Result, error) {
	var served asr.Backend
	res, err := ExecuteWithResult(f.group, func(b asr.Backend) (*asr.Result, error) {
		served = b
		return b.Transcribe(ctx, samples, prompt)
	})
	if err != nil {
		return nil, err
	}
	if f.mixed && served.Separator() == "" {
		res = trimWords(res)
	}
	return res, nil
}

// Words returns asr.WordsOf(r); every entry flattens results the same way.
func (f *ASRFallback) Words(r *asr.Result) []asr.Word { return asr.WordsOf(r) }

// SegmentEnds returns asr.SegmentEndsOf(r).
func (f *ASRFallback) SegmentEnds(r *asr.Result) []float64 { return asr.SegmentEndsOf(r) }

// Separator returns the separator shared by every entry, or " " when they
// differ.
func (f *ASRFallback) Separator() string { return f.sep }

// Status reports the breaker state of every entry.
func (f *ASRFallback) Status() []EntryStatus { return f.group.Status() }

// Available reports whether any entry would accept a call.
func (f *ASRFallback) Available() bool { return f.group.Available() }

// trimWords returns a copy of r whose word texts have no surrounding space.
// Words that become empty are dropped.
func trimWords(r *asr.Result) *asr.Result {
	out := &asr.Result{Language: r.Language, Segments: make([]asr.Segment, len(r.Segments))}
	for i, s := range r.Segments {
		seg := asr.Segment{Start: s.Start, End: s.End, Text: s.Text}
		for _, w := range s.Words {
			w.Text = strings.TrimSpace(w.Text)
			if w.Text == "" {
				continue
			}
			seg.Words = append(seg.Words, w)
		}
		out.Segments[i] = seg
	}
	return out
}
