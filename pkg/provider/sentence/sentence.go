// Package sentence defines the Segmenter interface used to recover sentence
// boundaries from flat transcript text. [Punkt] wraps trained models for the
// languages they cover; [Rules] is a punctuation-driven fallback for the rest.
//
// A Segmenter must not introduce characters absent from its input: the
// stream package matches the returned sentences back onto word timestamps,
// so only whitespace may differ.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segmenter splits text into sentences.
type Segmenter interface {
	Split(text string) []string
}

// Func adapts a plain function to the Segmenter interface.
type Func func(text string) []string

// Split calls f(text).
func (f Func) Split(text string) []string { return f(text) }

var _ Segmenter = Func(nil)
var _ Segmenter = (*Rules)(nil)

// Rules is a punctuation-driven Segmenter. A sentence ends at a terminal
// mark (". ! ? …" and their CJK forms) optionally followed by closing quotes
// or brackets, when the next non-space rune can open a sentence. Known
// abbreviations and single-letter initials never end a sentence.
//
// Rules is immutable after construction and safe for concurrent use.
type Rules struct {
	lang          string
	abbreviations map[string]struct{}
}

// NewRules returns the rule set for an ISO-639-1 language code. Unknown
// languages get the English abbreviation table.
func NewRules(lang string) *Rules {
	lang = strings.ToLower(lang)
	table, ok := abbreviations[lang]
	if !ok {
		table = abbreviations["en"]
	}
	set := make(map[string]struct{}, len(table))
	for _, a := range table {
		set[strings.ToLower(a)] = struct{}{}
	}
	return &Rules{lang: lang, abbreviations: set}
}

// Language returns the language code the rules were built for.
func (r *Rules) Language() string { return r.lang }

// Split returns the sentences of text with surrounding whitespace trimmed.
// Empty input yields no sentences.
func (r *Rules) Split(text string) []string {
	var (
		out   []string
		start int
	)
	for i := 0; i < len(text); {
		c, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminal(c) {
			continue
		}
		// Absorb runs of terminal marks and closing punctuation.
		end := i
		for end < len(text) {
			n, nsize := utf8.DecodeRuneInString(text[end:])
			if !isTerminal(n) && !isCloser(n) {
				break
			}
			end += nsize
		}
		if !r.boundary(text, start, i-size, c, end) {
			i = end
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
		i = end
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// boundary reports whether the terminal mark c at text[markAt] closing the
// span text[start:end] ends a sentence.
func (r *Rules) boundary(text string, start, markAt int, c rune, end int) bool {
	if isWideTerminal(c) {
		return true
	}
	// Latin marks need trailing whitespace (or end of text).
	if end < len(text) {
		n, _ := utf8.DecodeRuneInString(text[end:])
		if !unicode.IsSpace(n) {
			return false
		}
	}
	if c == '.' && r.isAbbreviation(lastToken(text[start:markAt])) {
		return false
	}
	next := strings.TrimLeftFunc(text[end:], unicode.IsSpace)
	if next == "" {
		return true
	}
	n, _ := utf8.DecodeRuneInString(next)
	return canOpenSentence(n)
}

func (r *Rules) isAbbreviation(tok string) bool {
	if tok == "" {
		return false
	}
	// Single-letter initials such as "J." in "J. R. R. Tolkien".
	if utf8.RuneCountInString(tok) == 1 {
		c, _ := utf8.DecodeRuneInString(tok)
		return unicode.IsLetter(c)
	}
	_, ok := r.abbreviations[strings.ToLower(tok)+"."]
	return ok
}

// lastToken returns the trailing run of non-space runes in s with any
// leading opening punctuation removed.
func lastToken(s string) string {
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	tok := s[i+1:]
	return strings.TrimLeft(tok, "\"'([{“‘«")
}

func isTerminal(c rune) bool {
	switch c {
	case '.', '!', '?', '…':
		return true
	}
	return isWideTerminal(c)
}

func isWideTerminal(c rune) bool {
	switch c {
	case '。', '！', '？', '｡':
		return true
	}
	return false
}

func isCloser(c rune) bool {
	switch c {
	case '"', '\'', ')', ']', '}', '”', '’', '»', '」', '』':
		return true
	}
	return false
}

func canOpenSentence(c rune) bool {
	if unicode.IsUpper(c) || unicode.IsDigit(c) {
		return true
	}
	if unicode.IsLetter(c) && !unicode.IsLower(c) {
		// Scripts without case.
		return true
	}
	switch c {
	case '"', '\'', '(', '[', '“', '‘', '«', '¿', '¡', '-', '–', '—':
		return true
	}
	return false
}
