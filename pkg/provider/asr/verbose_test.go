package asr_test

import (
	"testing"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

func TestParseVerboseJSON_TopLevelWords(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"language": "english",
		"text": "Hello world. How are you?",
		"segments": [
			{"start": 0.0, "end": 1.2, "text": "Hello world."},
			{"start": 1.2, "end": 2.5, "text": " How are you?"}
		],
		"words": [
			{"word": "Hello", "start": 0.0, "end": 0.5},
			{"word": "world.", "start": 0.5, "end": 1.2},
			{"word": "How", "start": 1.3, "end": 1.6},
			{"word": "are", "start": 1.6, "end": 1.9},
			{"word": "you?", "start": 1.9, "end": 2.5}
		]
	}`)
	res, err := asr.ParseVerboseJSON(raw)
	if err != nil {
		t.Fatalf("ParseVerboseJSON: %v", err)
	}
	if res.Language != "english" {
		t.Errorf("Language = %q", res.Language)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if n := len(res.Segments[0].Words); n != 2 {
		t.Errorf("segment 0 words = %d, want 2", n)
	}
	if n := len(res.Segments[1].Words); n != 3 {
		t.Errorf("segment 1 words = %d, want 3", n)
	}
	ends := asr.SegmentEndsOf(res)
	if len(ends) != 2 || ends[0] != 1.2 || ends[1] != 2.5 {
		t.Errorf("SegmentEndsOf = %v", ends)
	}
	if got := asr.JoinWords(asr.WordsOf(res), " "); got != "Hello world. How are you?" {
		t.Errorf("joined words = %q", got)
	}
}

func TestParseVerboseJSON_SegmentWords(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"segments": [{"start": 0, "end": 1, "text": " Hi there",
		"words": [{"word": " Hi", "start": 0, "end": 0.4}, {"word": " there", "start": 0.4, "end": 1}, {"word": " ", "start": 1, "end": 1}]}]}`)
	res, err := asr.ParseVerboseJSON(raw)
	if err != nil {
		t.Fatalf("ParseVerboseJSON: %v", err)
	}
	words := asr.WordsOf(res)
	if len(words) != 2 {
		t.Fatalf("words = %d, want 2 (blank word dropped)", len(words))
	}
	if words[0].Text != "Hi" || words[1].Text != "there" {
		t.Errorf("words = %+v", words)
	}
}

func TestParseVerboseJSON_WordsWithoutSegments(t *testing.T) {
	t.Parallel()
	res, err := asr.ParseVerboseJSON([]byte(`{"text": "ok", "words": [{"word": "ok", "start": 0.2, "end": 0.6}]}`))
	if err != nil {
		t.Fatalf("ParseVerboseJSON: %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].End != 0.6 {
		t.Errorf("segments = %+v", res.Segments)
	}
}

func TestParseVerboseJSON_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := asr.ParseVerboseJSON([]byte(`{"segments": [`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestResultHelpers_Nil(t *testing.T) {
	t.Parallel()
	var r *asr.Result
	if asr.WordsOf(r) != nil || asr.SegmentEndsOf(r) != nil || r.Text() != "" {
		t.Error("nil Result helpers should return empty values")
	}
}
