package whisper

import (
	"strings"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

// token is a text token with timestamps in seconds.
type token struct {
	Text  string
	Start float64
	End   float64
}

// mergeTokens groups sub-word tokens into words. A token whose text begins
// with a space starts a new word; any other token extends the current one.
// The leading space is kept on each word.
func mergeTokens(toks []token) []asr.Word {
	var (
		words []asr.Word
		cur   *asr.Word
	)
	for _, t := range toks {
		if t.Text == "" {
			continue
		}
		if cur == nil || strings.HasPrefix(t.Text, " ") {
			if cur != nil && strings.TrimSpace(cur.Text) != "" {
				words = append(words, *cur)
			}
			cur = &asr.Word{Start: t.Start, End: t.End, Text: t.Text}
			continue
		}
		cur.Text += t.Text
		if t.End > cur.End {
			cur.End = t.End
		}
	}
	if cur != nil && strings.TrimSpace(cur.Text) != "" {
		words = append(words, *cur)
	}
	return words
}
