// Package phonetic matches transcribed phrases against a hot-word vocabulary
// using Double Metaphone encoding combined with Jaro-Winkler similarity.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each token of the phrase and of each hot word. A hot word whose codes
//     overlap the phrase's codes is a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the hot word with the
//     highest similarity is selected, provided its score reaches the
//     phonetic threshold. Without any phonetic candidate, pure Jaro-Winkler
//     similarity against all hot words is tested with the stricter fuzzy
//     threshold.
//
// Multi-word hot words (e.g. "Tower Bridge") are supported by comparing full
// strings, space-stripped strings and the best token pair.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched hot word. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.phoneticThreshold = threshold
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score used when no
// phonetic candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.fuzzyThreshold = threshold
		}
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// entry is one hot word with its precomputed match data.
type entry struct {
	word   string
	lower  string
	tokens []string
	concat string
	codes  map[string]struct{}
}

// Vocabulary is a hot-word list prepared for repeated matching. It is
// immutable and safe for concurrent use.
type Vocabulary struct {
	entries  []entry
	maxWords int
}

// Prepare precomputes phonetic codes for words. Blank words are skipped.
func Prepare(words []string) *Vocabulary {
	v := &Vocabulary{}
	for _, w := range words {
		lower := strings.ToLower(strings.TrimSpace(w))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.entries = append(v.entries, entry{
			word:   strings.TrimSpace(w),
			lower:  lower,
			tokens: tokens,
			concat: strings.Join(tokens, ""),
			codes:  codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of hot words.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// MaxWords returns the largest token count of any hot word.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Words returns the hot words in their original casing.
func (v *Vocabulary) Words() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.word
	}
	return out
}

// Match finds the hot word from words most similar to phrase. When matched
// is false, corrected equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string, words []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(phrase, Prepare(words))
}

// MatchPrepared is Match against a prepared vocabulary.
func (m *Matcher) MatchPrepared(phrase string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v.Len() == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	lower := strings.ToLower(strings.TrimSpace(phrase))
	tokens := strings.Fields(lower)
	concat := strings.Join(tokens, "")
	codes := codesForTokens(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, e := range v.entries {
		score := bestJWScore(tokens, e.tokens, lower, e.lower, concat, e.concat)
		if codesOverlap(codes, e.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = e.word, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = e.word, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity of the full strings,
// the space-stripped strings and, for multi-word input or hot word, any
// token pair.
func bestJWScore(inTokens, hwTokens []string, inFull, hwFull, inConcat, hwConcat string) float64 {
	score := matchr.JaroWinkler(inFull, hwFull, false)
	if len(inTokens) > 1 || len(hwTokens) > 1 {
		if s := matchr.JaroWinkler(inConcat, hwConcat, false); s > score {
			score = s
		}
		for _, it := range inTokens {
			for _, ht := range hwTokens {
				if s := matchr.JaroWinkler(it, ht, false); s > score {
					score = s
				}
			}
		}
	}
	return score
}
