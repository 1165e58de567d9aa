// Package transcript stores confirmed transcript fragments and corrects
// domain vocabulary in outgoing text.
//
// Raw ASR output is rarely perfect for proper nouns and product names. The
// [Corrector] aligns spoken phrases to a configured hot-word list by
// pronunciation similarity before fragments leave the server. Correction is
// applied to outgoing copies only; the consolidation engine never sees it.
//
// Implementations of [Store] must be safe for concurrent use.
package transcript

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by [Store.Entries] for an unknown session.
var ErrSessionNotFound = errors.New("transcript: session not found")

// Entry is one stored transcript fragment.
type Entry struct {
	// SessionID identifies the stream the fragment belongs to.
	SessionID string

	// Seq orders entries within a session, starting at 1. Stores assign it
	// when zero.
	Seq int64

	// Start and End are absolute stream times in seconds.
	Start float64
	End   float64

	// Text is the fragment text after vocabulary correction.
	Text string

	// RawText is the uncorrected text when it differs from Text.
	RawText string

	// Final is false for the best-effort remainder of a stream.
	Final bool

	// CreatedAt is when the entry was stored. Stores set it when zero.
	CreatedAt time.Time
}

// Store persists transcript entries per session.
type Store interface {
	// Append stores e. Entries of a session are returned in append order.
	Append(ctx context.Context, e Entry) error

	// Entries returns all entries of sessionID ordered by Seq, or
	// [ErrSessionNotFound].
	Entries(ctx context.Context, sessionID string) ([]Entry, error)
}

// Correction captures a single substitution made by the [Corrector].
type Correction struct {
	// Original is the phrase as transcribed.
	Original string

	// Corrected is the hot word that replaced it.
	Corrected string

	// Confidence is the similarity score in [0, 1].
	Confidence float64

	// Method names the stage that produced the substitution ("phonetic").
	Method string
}

// PhoneticMatcher resolves a phrase to the most similar hot word.
//
// When matched is false, corrected must equal phrase and confidence must be
// 0. Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	Match(phrase string, hotWords []string) (corrected string, confidence float64, matched bool)
}
