package inference

import (
	"context"
	"time"

	"github.com/samcharles93/quill/internal/logits"
)

// Model is the opaque inference function. Infer receives a window of exactly
// the engine's context width and returns one logits row per position. The
// window slice is reused between calls and must not be retained.
type Model interface {
	Infer(ctx context.Context, window []int) ([][]float32, error)
}

// InferFunc adapts a plain function to Model.
type InferFunc func(ctx context.Context, window []int) ([][]float32, error)

func (f InferFunc) Infer(ctx context.Context, window []int) ([][]float32, error) {
	return f(ctx, window)
}

// Fragment is one emitted piece of generated text. Token is -1 for the
// trailing flush of a rune buffer.
type Fragment struct {
	Step  int
	Token int
	Text  string
}

type StreamFunc func(Fragment)

type Request struct {
	// ID names the generation in logs and results; empty selects a
	// generated "gen_" id.
	ID     string
	Prompt string
	// Budget is the number of tokens to generate; 0 selects the engine
	// default.
	Budget   int
	Strategy logits.Strategy
	// Source drives Top-K draws. When nil a source is seeded from Seed, and
	// a negative Seed picks a time-based seed.
	Source logits.Source
	Seed   int64
	// BufferPartialRunes holds back bytes of an incomplete UTF-8 sequence
	// until a later token completes it. Result.Text is unaffected.
	BufferPartialRunes bool
}

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

type Result struct {
	ID       string
	State    State
	Strategy logits.Strategy
	// Sequence is the full token sequence: prompt followed by generated ids.
	Sequence []int
	// Tokens holds only the generated ids.
	Tokens       []int
	PromptTokens int
	Text         string
	Stats        Stats

	err error
}

// Err reports why the generation did not complete: the failure for Failed,
// ErrCancelled for Cancelled, nil otherwise.
func (r *Result) Err() error {
	switch r.State {
	case StateFailed:
		return r.err
	case StateCancelled:
		return ErrCancelled
	default:
		return nil
	}
}
