package stream

import (
	"strings"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
	"github.com/MrWong99/streamscribe/pkg/provider/sentence"
)

// wordsToSentences maps words back onto the sentences seg finds in their
// joined text. Each returned span starts at its first word and ends at its
// last. Matching is greedy and ignores surrounding whitespace; a sentence the
// words cannot be aligned with is dropped.
func wordsToSentences(words []asr.Word, seg sentence.Segmenter) []asr.Word {
	if len(words) == 0 {
		return nil
	}
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	sents := seg.Split(strings.Join(texts, " "))

	var out []asr.Word
	rest := words
	for _, s := range sents {
		if len(rest) == 0 {
			break
		}
		remaining := strings.TrimSpace(s)
		full := remaining
		var (
			begin    float64
			hasBegin bool
		)
		for len(rest) > 0 {
			w := rest[0]
			rest = rest[1:]
			text := strings.TrimSpace(w.Text)
			if !hasBegin && strings.HasPrefix(remaining, text) {
				begin = w.Start
				hasBegin = true
			}
			if remaining == text {
				if hasBegin {
					out = append(out, asr.Word{Start: begin, End: w.End, Text: full})
				}
				break
			}
			if len(text) <= len(remaining) {
				remaining = strings.TrimSpace(remaining[len(text):])
			} else {
				remaining = ""
			}
		}
	}
	return out
}
