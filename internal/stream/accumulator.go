package stream

import "math"

// accumulator is the growing audio window. offset is the absolute session
// time of samples[0]; lastChunkedAt is the time of the most recent cut.
type accumulator struct {
	sampleRate    int
	samples       []float32
	offset        float64
	lastChunkedAt float64
}

func newAccumulator(sampleRate int) *accumulator {
	return &accumulator{sampleRate: sampleRate}
}

func (a *accumulator) reset() {
	a.samples = nil
	a.offset = 0
	a.lastChunkedAt = 0
}

func (a *accumulator) append(samples []float32) {
	a.samples = append(a.samples, samples...)
}

// cutAt drops the audio before t, an absolute session time, and records t as
// both the new offset and the latest cut. The remaining samples are copied so
// the discarded prefix can be collected. It returns the seconds dropped, or 0
// when t is not past the offset.
func (a *accumulator) cutAt(t float64) float64 {
	cut := t - a.offset
	if cut <= 0 {
		return 0
	}
	n := int(math.Round(cut * float64(a.sampleRate)))
	if n > len(a.samples) {
		n = len(a.samples)
	}
	rest := make([]float32, len(a.samples)-n)
	copy(rest, a.samples[n:])
	a.samples = rest
	a.offset = t
	a.lastChunkedAt = t
	return cut
}

func (a *accumulator) durationSeconds() float64 {
	if a.sampleRate <= 0 {
		return 0
	}
	return float64(len(a.samples)) / float64(a.sampleRate)
}
