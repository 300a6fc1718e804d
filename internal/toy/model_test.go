package toy

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestForwardMatchesNaive(t *testing.T) {
	vocab, hidden := 8, 6
	model := NewToyLM(vocab, hidden, 5)
	tok := 3

	logits := model.Forward(tok)

	ref := make([]float32, vocab)
	for j := 0; j < vocab; j++ {
		var sum float32
		for i := 0; i < hidden; i++ {
			sum += model.Emb[tok*hidden+i] * model.W[i*vocab+j]
		}
		ref[j] = sum + model.Bias[j]
	}
	for i := range logits {
		if math.Abs(float64(logits[i]-ref[i])) > 1e-4 {
			t.Fatalf("logit mismatch at %d: got %f, want %f", i, logits[i], ref[i])
		}
	}
}

func TestForwardWrapsTokens(t *testing.T) {
	model := NewToyLM(5, 3, 2)
	a := model.Forward(1)
	b := model.Forward(6)
	c := model.Forward(-4)
	for i := range a {
		if a[i] != b[i] || a[i] != c[i] {
			t.Fatalf("wrapped token logits differ at %d", i)
		}
	}
}

func TestSameSeedSameWeights(t *testing.T) {
	a := NewToyLM(7, 4, 9)
	b := NewToyLM(7, 4, 9)
	for i := range a.Emb {
		if a.Emb[i] != b.Emb[i] {
			t.Fatalf("embedding %d differs", i)
		}
	}
}

func TestInferShape(t *testing.T) {
	model := NewToyLM(11, 4, 1)
	window := []int{3, 3, 0, 0, 7}
	out, err := model.Infer(context.Background(), window)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if len(out) != len(window) {
		t.Fatalf("rows: got %d want %d", len(out), len(window))
	}
	for i, row := range out {
		if len(row) != 11 {
			t.Fatalf("row %d: got %d logits want 11", i, len(row))
		}
	}
}

func TestInferHonoursContext(t *testing.T) {
	model := NewToyLM(4, 2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := model.Infer(ctx, []int{1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
