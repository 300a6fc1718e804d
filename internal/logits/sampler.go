package logits

import (
	"math"
	"math/rand"
)

// Source supplies uniform draws in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSource returns a seeded, instance-local random source.
func NewSource(seed int64) Source {
	return rand.New(rand.NewSource(seed))
}

// Sampler picks the next token id from a logits vector. A Sampler owns
// scratch buffers and its random source, so it must not be shared between
// concurrent generations.
type Sampler struct {
	rng      Source
	strategy Strategy
	topIdx   []int
	topVal   []float32
	prob     []float64
}

// NewSampler returns a sampler for strategy. rng may be nil for Greedy.
func NewSampler(strategy Strategy, rng Source) *Sampler {
	return &Sampler{
		rng:      rng,
		strategy: strategy,
	}
}

func (s *Sampler) Strategy() Strategy { return s.strategy }

// Pick returns a vocabulary id chosen from logits.
//
// Greedy returns the first maximum. TopK keeps the k largest logits (ties
// resolved by lower index), softmaxes them after subtracting the maximum,
// draws r in [0, sum) and returns the first candidate whose cumulative weight
// exceeds r, falling back to the last candidate when rounding leaves r past
// the end. k larger than the vector is clamped.
func (s *Sampler) Pick(logits []float32) int {
	if s.strategy.Kind == KindGreedy || s.strategy.K == 1 {
		return Argmax(logits)
	}

	k := min(s.strategy.K, len(logits))
	topIdx, topVal := s.topK(logits, k)

	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := softmaxInto(s.prob[:len(topVal)], topVal)

	var sum float64
	for _, p := range prob {
		sum += p
	}
	r := s.rng.Float64() * sum
	var acc float64
	for i, p := range prob {
		acc += p
		if r < acc {
			return topIdx[i]
		}
	}
	return topIdx[len(topIdx)-1]
}

// Candidates returns the ids TopK would sample from, best first.
func (s *Sampler) Candidates(logits []float32) []int {
	k := len(logits)
	if s.strategy.Kind == KindTopK {
		k = min(s.strategy.K, len(logits))
	}
	idx, _ := s.topK(logits, k)
	return append([]int(nil), idx...)
}

// Argmax returns the index of the first maximum, ignoring NaN. A row of only
// NaN yields 0, matching what TopK keeps. It panics on an empty slice.
func Argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := -1
	var bestV float32
	for i, v := range x {
		if v != v {
			continue
		}
		if bestI < 0 || v > bestV {
			bestI, bestV = i, v
		}
	}
	return max(bestI, 0)
}

// Softmax returns exp(v - max) / sum over values.
func Softmax(values []float32) []float64 {
	return softmaxInto(make([]float64, len(values)), values)
}

func softmaxInto(dst []float64, values []float32) []float64 {
	if len(values) == 0 {
		return dst[:0]
	}
	maxv := values[0]
	for _, v := range values[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range values {
		e := math.Exp(float64(v - maxv))
		dst[i] = e
		sum += e
	}
	inv := 1.0 / sum
	for i := range dst {
		dst[i] *= inv
	}
	return dst
}

// topK returns the indices and values of the k largest elements, largest
// first. Equal values keep ascending index order. O(V*K), fine for small K.
func (s *Sampler) topK(logits []float32, k int) ([]int, []float32) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, v := range logits {
		if v != v {
			continue
		}
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	if len(topIdx) == 0 {
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
