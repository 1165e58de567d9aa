package stream

import (
	"log/slog"
	"math"
	"strings"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

const (
	// staleTolerance is how far before the last committed time an incoming
	// word may start and still be considered new.
	staleTolerance = 0.1

	// dedupWindow is the distance in seconds from the last committed time
	// within which the head of a new pass is checked against the committed
	// tail.
	dedupWindow = 1.0

	// maxDedupWords bounds the n-gram length compared during deduplication.
	maxDedupWords = 5
)

// hypothesis consolidates successive backend passes. A word moves from
// incoming to committed once two consecutive passes agree on it.
type hypothesis struct {
	// committed holds confirmed words still inside the audio window.
	committed *wordQueue
	// pending is the unconfirmed tail of the previous pass.
	pending *wordQueue
	// incoming is the current pass, after filtering and deduplication.
	incoming *wordQueue

	lastCommittedTime float64
	lastCommittedWord string

	logger *slog.Logger
}

func newHypothesis(logger *slog.Logger) *hypothesis {
	return &hypothesis{
		committed: newWordQueue(),
		pending:   newWordQueue(),
		incoming:  newWordQueue(),
		logger:    logger,
	}
}

// insert replaces incoming with words shifted by offset, dropping words that
// start before the committed horizon and any head that repeats the committed
// tail.
func (h *hypothesis) insert(words []asr.Word, offset float64) {
	h.incoming = newWordQueue()
	for _, w := range words {
		w.Start += offset
		w.End += offset
		if w.Start > h.lastCommittedTime-staleTolerance {
			h.incoming.pushBack(w)
		}
	}
	if h.incoming.len() == 0 || h.committed.len() == 0 {
		return
	}
	if math.Abs(h.incoming.front().Start-h.lastCommittedTime) >= dedupWindow {
		return
	}
	limit := min(h.committed.len(), h.incoming.len(), maxDedupWords)
	for n := 1; n <= limit; n++ {
		tail := strings.Join(h.committed.tailTexts(n), " ")
		head := strings.Join(h.incoming.headTexts(n), " ")
		if tail != head {
			continue
		}
		removed := make([]string, 0, n)
		for range n {
			removed = append(removed, h.incoming.popFront().Text)
		}
		h.logger.Debug("dropped words repeating committed tail", "count", n, "words", removed)
		return
	}
}

// flush commits the longest common prefix of incoming and pending, then makes
// the rest of incoming the new pending tail. It returns the newly committed
// words.
func (h *hypothesis) flush() []asr.Word {
	var commit []asr.Word
	for h.incoming.len() > 0 && h.pending.len() > 0 {
		next := h.incoming.front()
		if next.Text != h.pending.front().Text {
			break
		}
		commit = append(commit, next)
		h.lastCommittedWord = next.Text
		h.lastCommittedTime = next.End
		h.pending.popFront()
		h.incoming.popFront()
	}
	h.pending = h.incoming
	h.incoming = newWordQueue()
	h.committed.pushBack(commit...)
	return commit
}

// popCommitted drops committed words that end at or before t.
func (h *hypothesis) popCommitted(t float64) {
	for h.committed.len() > 0 && h.committed.front().End <= t {
		h.committed.popFront()
	}
}

// complete returns the tentative tail.
func (h *hypothesis) complete() []asr.Word {
	return h.pending.slice()
}
