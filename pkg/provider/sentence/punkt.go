package sentence

import (
	"fmt"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/data"
	"github.com/neurosnap/sentences/english"
)

// Engine names accepted by [New].
const (
	EngineAuto  = "auto"
	EnginePunkt = "punkt"
	EngineRules = "rules"
)

// punktModels maps ISO-639-1 codes to the Punkt training sets bundled with
// github.com/neurosnap/sentences.
var punktModels = map[string]string{
	"cs": "czech",
	"da": "danish",
	"de": "german",
	"el": "greek",
	"en": "english",
	"es": "spanish",
	"et": "estonian",
	"fi": "finnish",
	"fr": "french",
	"it": "italian",
	"nl": "dutch",
	"no": "norwegian",
	"pl": "polish",
	"pt": "portuguese",
	"sl": "slovene",
	"sv": "swedish",
	"tr": "turkish",
}

var _ Segmenter = (*Punkt)(nil)

// Punkt is a Segmenter backed by an unsupervised Punkt model, which learns
// abbreviations, initials and sentence starters from a corpus instead of a
// fixed table. Sentences are substrings of the input.
type Punkt struct {
	lang string

	mu  sync.Mutex // serializes Tokenize
	tok *sentences.DefaultSentenceTokenizer
}

// NewPunkt loads the trained model for an ISO-639-1 language code. It fails
// for languages without a bundled model.
func NewPunkt(lang string) (*Punkt, error) {
	lang = strings.ToLower(lang)
	model, ok := punktModels[lang]
	if !ok {
		return nil, fmt.Errorf("sentence: no punkt model for language %q", lang)
	}

	// English ships a tokenizer tuned beyond the raw training data.
	if lang == "en" {
		tok, err := english.NewSentenceTokenizer(nil)
		if err != nil {
			return nil, fmt.Errorf("sentence: load punkt model %s: %w", model, err)
		}
		return &Punkt{lang: lang, tok: tok}, nil
	}

	b, err := data.Asset("data/" + model + ".json")
	if err != nil {
		return nil, fmt.Errorf("sentence: load punkt model %s: %w", model, err)
	}
	training, err := sentences.LoadTraining(b)
	if err != nil {
		return nil, fmt.Errorf("sentence: parse punkt model %s: %w", model, err)
	}
	return &Punkt{lang: lang, tok: sentences.NewSentenceTokenizer(training)}, nil
}

// Language returns the language code of the loaded model.
func (p *Punkt) Language() string { return p.lang }

// Split returns the sentences of text with surrounding whitespace trimmed.
func (p *Punkt) Split(text string) []string {
	p.mu.Lock()
	sents := p.tok.Tokenize(text)
	p.mu.Unlock()

	out := make([]string, 0, len(sents))
	for _, s := range sents {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// New returns the Segmenter for engine and lang. The auto engine prefers a
// Punkt model and falls back to [Rules] for languages without one.
func New(engine, lang string) (Segmenter, error) {
	switch strings.ToLower(engine) {
	case "", EngineAuto:
		if p, err := NewPunkt(lang); err == nil {
			return p, nil
		}
		return NewRules(lang), nil
	case EnginePunkt:
		p, err := NewPunkt(lang)
		if err != nil {
			return nil, err
		}
		return p, nil
	case EngineRules:
		return NewRules(lang), nil
	}
	return nil, fmt.Errorf("sentence: unknown engine %q", engine)
}
