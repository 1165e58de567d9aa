package asr

import "strings"

// Word is a single recognised word with timestamps in seconds.
type Word struct {
	Start float64
	End   float64
	Text  string
}

// Segment is a backend-reported block of speech. Segment boundaries are
// coarser than word boundaries.
type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

// Result is the output of one Backend.Transcribe call.
type Result struct {
	// Language is the detected or configured language, if reported.
	Language string

	Segments []Segment
}

// Text returns the concatenated text of all segments.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, s := range r.Segments {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// WordsOf flattens the words of every segment in r. Word texts are returned
// as reported, including any leading space.
func WordsOf(r *Result) []Word {
	if r == nil {
		return nil
	}
	var out []Word
	for _, s := range r.Segments {
		out = append(out, s.Words...)
	}
	return out
}

// SegmentEndsOf returns the end timestamp of every segment in r.
func SegmentEndsOf(r *Result) []float64 {
	if r == nil {
		return nil
	}
	ends := make([]float64, 0, len(r.Segments))
	for _, s := range r.Segments {
		ends = append(ends, s.End)
	}
	return ends
}

// JoinWords joins the texts of words with sep.
func JoinWords(words []Word, sep string) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, sep)
}
