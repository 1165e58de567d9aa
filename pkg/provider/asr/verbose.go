package asr

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseVerboseJSON decodes an OpenAI-style "verbose_json" transcription
// response. Word timestamps may appear per segment (whisper.cpp server) or at
// the top level (OpenAI API); top-level words are distributed over segments by
// start time. Word texts are trimmed, so callers should join them with " ".
func ParseVerboseJSON(raw []byte) (*Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("asr: invalid verbose_json response")
	}
	doc := gjson.ParseBytes(raw)
	res := &Result{Language: doc.Get("language").String()}

	doc.Get("segments").ForEach(func(_, s gjson.Result) bool {
		seg := Segment{
			Start: s.Get("start").Float(),
			End:   s.Get("end").Float(),
			Text:  s.Get("text").String(),
		}
		s.Get("words").ForEach(func(_, w gjson.Result) bool {
			if word, ok := parseWord(w); ok {
				seg.Words = append(seg.Words, word)
			}
			return true
		})
		res.Segments = append(res.Segments, seg)
		return true
	})

	var top []Word
	doc.Get("words").ForEach(func(_, w gjson.Result) bool {
		if word, ok := parseWord(w); ok {
			top = append(top, word)
		}
		return true
	})
	if len(top) == 0 {
		return res, nil
	}
	if len(res.Segments) == 0 {
		res.Segments = []Segment{{
			Start: top[0].Start,
			End:   top[len(top)-1].End,
			Text:  doc.Get("text").String(),
			Words: top,
		}}
		return res, nil
	}
	for i := range res.Segments {
		if len(res.Segments[i].Words) > 0 {
			// Segments already carry their own words.
			return res, nil
		}
	}
	si := 0
	for _, w := range top {
		for si < len(res.Segments)-1 && w.Start >= res.Segments[si].End {
			si++
		}
		res.Segments[si].Words = append(res.Segments[si].Words, w)
	}
	return res, nil
}

func parseWord(w gjson.Result) (Word, bool) {
	text := strings.TrimSpace(w.Get("word").String())
	if text == "" {
		return Word{}, false
	}
	return Word{
		Start: w.Get("start").Float(),
		End:   w.Get("end").Float(),
		Text:  text,
	}, true
}
