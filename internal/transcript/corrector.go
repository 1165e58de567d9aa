package transcript

import (
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/MrWong99/streamscribe/internal/transcript/phonetic"
)

// minMatchLetters is the fewest letters a phrase needs to be considered for
// correction. Short function words otherwise collide with hot words.
const minMatchLetters = 3

// CorrectorOption is a functional option for configuring a [Corrector].
type CorrectorOption func(*Corrector)

// WithPhoneticMatcher replaces the default [phonetic.Matcher].
func WithPhoneticMatcher(m PhoneticMatcher) CorrectorOption {
	return func(c *Corrector) { c.matcher = m }
}

// vocabulary pairs the raw hot words with their prepared form.
type vocabulary struct {
	words    []string
	prepared *phonetic.Vocabulary
}

// Corrector replaces phrases that sound like a hot word with the hot word.
// The hot-word list can be swapped at runtime with [Corrector.SetHotWords].
// Corrector is safe for concurrent use.
type Corrector struct {
	matcher PhoneticMatcher
	vocab   atomic.Pointer[vocabulary]
}

// NewCorrector returns a Corrector for hotWords. Without
// [WithPhoneticMatcher] a default [phonetic.Matcher] is used.
func NewCorrector(hotWords []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{}
	for _, o := range opts {
		o(c)
	}
	if c.matcher == nil {
		c.matcher = phonetic.New()
	}
	c.SetHotWords(hotWords)
	return c
}

// SetHotWords atomically replaces the hot-word list.
func (c *Corrector) SetHotWords(hotWords []string) {
	c.vocab.Store(&vocabulary{
		words:    append([]string(nil), hotWords...),
		prepared: phonetic.Prepare(hotWords),
	})
}

// HotWords returns the current hot-word list.
func (c *Corrector) HotWords() []string {
	return append([]string(nil), c.vocab.Load().words...)
}

// Correct returns text with phrases replaced by matching hot words and the
// list of substitutions. When nothing is replaced text is returned
// unchanged, including its spacing.
//
// At each token position windows from the longest hot word plus one token
// down to one token are tried and the longest accepted window wins. A window
// has as many tokens as the hot word it matches, or one more so that split
// words like "elder nacks" are caught. Punctuation around a window is kept
// and windows never span a sentence or clause mark.
func (c *Corrector) Correct(text string) (string, []Correction) {
	v := c.vocab.Load()
	if v.prepared.Len() == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	match := func(phrase string) (string, float64, bool) {
		return c.matcher.Match(phrase, v.words)
	}
	if pm, ok := c.matcher.(*phonetic.Matcher); ok {
		match = func(phrase string) (string, float64, bool) {
			return pm.MatchPrepared(phrase, v.prepared)
		}
	}

	var (
		out         []string
		corrections []Correction
	)
	maxWords := v.prepared.MaxWords() + 1
	for i := 0; i < len(tokens); {
		n := min(maxWords, len(tokens)-i)
		consumed := 0
		for ; n >= 1; n-- {
			window := tokens[i : i+n]
			if spansBreak(window) {
				continue
			}
			lead, core, trail := splitPunct(strings.Join(window, " "))
			if countLetters(core) < minMatchLetters {
				continue
			}
			hot, conf, ok := match(core)
			if !ok {
				continue
			}
			k := len(strings.Fields(hot))
			if n < k || n > k+1 {
				continue
			}
			if n > k && shorterMatches(window[:n-1], hot, conf, match) {
				continue
			}
			if hot == core {
				out = append(out, window...)
			} else {
				out = append(out, lead+hot+trail)
				corrections = append(corrections, Correction{
					Original:   core,
					Corrected:  hot,
					Confidence: conf,
					Method:     "phonetic",
				})
			}
			consumed = n
			break
		}
		if consumed == 0 {
			out = append(out, tokens[i])
			consumed = 1
		}
		i += consumed
	}

	if len(corrections) == 0 {
		return text, nil
	}
	lead := text[:len(text)-len(strings.TrimLeftFunc(text, unicode.IsSpace))]
	return lead + strings.Join(out, " "), corrections
}

// spansBreak reports whether any token but the last ends with punctuation.
func spansBreak(window []string) bool {
	for _, t := range window[:len(window)-1] {
		r := []rune(t)
		if unicode.IsPunct(r[len(r)-1]) {
			return true
		}
	}
	return false
}

// splitPunct separates leading and trailing punctuation from s.
func splitPunct(s string) (lead, core, trail string) {
	notWord := func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }
	core = strings.TrimLeftFunc(s, notWord)
	lead = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, notWord)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// shorterMatches reports whether window matches hot at least as well as the
// longer window did, so the extra token is left alone.
func shorterMatches(window []string, hot string, conf float64, match func(string) (string, float64, bool)) bool {
	_, core, _ := splitPunct(strings.Join(window, " "))
	got, shorter, ok := match(core)
	return ok && got == hot && shorter >= conf
}
