package toy

import (
	"context"
	"math/rand"
)

// ToyLM is a minimal deterministic language model: an embedding matrix, a
// projection back to vocabulary logits and a bias. Each position's logits
// depend only on the token at that position, which is enough to drive the
// generation engine in demos and tests without a real network.
type ToyLM struct {
	Vocab  int
	Hidden int

	Emb  []float32 // [Vocab x Hidden]
	W    []float32 // [Hidden x Vocab]
	Bias []float32 // [Vocab]
}

// NewToyLM builds a model whose weights are derived from seed.
func NewToyLM(vocab, hidden int, seed int64) *ToyLM {
	m := &ToyLM{
		Vocab:  vocab,
		Hidden: hidden,
		Emb:    make([]float32, vocab*hidden),
		W:      make([]float32, hidden*vocab),
		Bias:   make([]float32, vocab),
	}
	fillRand(m.Emb, seed+11)
	fillRand(m.W, seed+23)
	return m
}

func fillRand(dst []float32, seed int64) {
	r := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = r.Float32()*2 - 1
	}
}

// Forward returns the logits for a single token. Out-of-range tokens are
// reduced modulo Vocab.
func (m *ToyLM) Forward(tok int) []float32 {
	tok %= m.Vocab
	if tok < 0 {
		tok += m.Vocab
	}
	h := m.Emb[tok*m.Hidden : (tok+1)*m.Hidden]
	logits := make([]float32, m.Vocab)
	copy(logits, m.Bias)
	for i, hv := range h {
		row := m.W[i*m.Vocab : (i+1)*m.Vocab]
		for j, w := range row {
			logits[j] += hv * w
		}
	}
	return logits
}

// Infer returns one logits row per window position. Rows for repeated tokens
// share storage.
func (m *ToyLM) Infer(ctx context.Context, window []int) ([][]float32, error) {
	out := make([][]float32, len(window))
	seen := make(map[int][]float32, len(window))
	for i, tok := range window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, ok := seen[tok]
		if !ok {
			row = m.Forward(tok)
			seen[tok] = row
		}
		out[i] = row
	}
	return out, nil
}
