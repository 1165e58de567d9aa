package stream

import (
	"slices"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

// buildPrompt splits the confirmed transcript at lastChunkedAt. prompt is the
// trailing text, at most budget characters counting one separator per word,
// of the words that ended before the window start. context is the confirmed
// text still inside the window; it is informational only.
func buildPrompt(committed []asr.Word, lastChunkedAt float64, sep string, budget int) (prompt, context string) {
	k := max(0, len(committed)-1)
	for k > 0 && committed[k-1].End > lastChunkedAt {
		k--
	}

	var (
		picked []asr.Word
		n      int
	)
	for i := k - 1; i >= 0 && n < budget; i-- {
		picked = append(picked, committed[i])
		n += len(committed[i].Text) + 1
	}
	slices.Reverse(picked)

	return asr.JoinWords(picked, sep), asr.JoinWords(committed[k:], sep)
}
