package stream

import (
	list "github.com/bahlo/generic-list-go"

	"github.com/MrWong99/streamscribe/pkg/provider/asr"
)

// wordQueue is an ordered word list with explicit pop-from-front.
type wordQueue struct {
	l *list.List[asr.Word]
}

func newWordQueue(words ...asr.Word) *wordQueue {
	q := &wordQueue{l: list.New[asr.Word]()}
	q.pushBack(words...)
	return q
}

func (q *wordQueue) len() int { return q.l.Len() }

func (q *wordQueue) pushBack(words ...asr.Word) {
	for _, w := range words {
		q.l.PushBack(w)
	}
}

// front returns the first word. The queue must not be empty.
func (q *wordQueue) front() asr.Word { return q.l.Front().Value }

// popFront removes and returns the first word. The queue must not be empty.
func (q *wordQueue) popFront() asr.Word { return q.l.Remove(q.l.Front()) }

// headTexts returns the texts of the first n words in order.
func (q *wordQueue) headTexts(n int) []string {
	out := make([]string, 0, n)
	for e := q.l.Front(); e != nil && len(out) < n; e = e.Next() {
		out = append(out, e.Value.Text)
	}
	return out
}

// tailTexts returns the texts of the last n words in original order.
func (q *wordQueue) tailTexts(n int) []string {
	out := make([]string, n)
	i := n - 1
	for e := q.l.Back(); e != nil && i >= 0; e = e.Prev() {
		out[i] = e.Value.Text
		i--
	}
	return out[i+1:]
}

// slice copies the queue into a slice.
func (q *wordQueue) slice() []asr.Word {
	if q.l.Len() == 0 {
		return nil
	}
	out := make([]asr.Word, 0, q.l.Len())
	for e := q.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	return out
}
