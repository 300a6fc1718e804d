package inference

import (
	"fmt"

	"github.com/samcharles93/quill/internal/logits"
)

// RequestOptions carries caller overrides; nil fields fall back to Defaults.
type RequestOptions struct {
	Prompt string

	Budget   *int
	Strategy *string
	TopK     *int
	Seed     *int64

	BufferPartialRunes *bool
}

type Defaults struct {
	Budget   int
	Strategy logits.Strategy
	Seed     int64
}

// DefaultRequestDefaults mirrors the engine constants: 10 tokens, Top-K 40,
// random seed.
func DefaultRequestDefaults() Defaults {
	return Defaults{
		Budget:   DefaultBudget,
		Strategy: logits.Default(),
		Seed:     -1,
	}
}

func ResolveRequest(opts RequestOptions, defaults Defaults) (Request, error) {
	req := Request{
		Prompt:   opts.Prompt,
		Budget:   defaults.Budget,
		Strategy: defaults.Strategy,
		Seed:     defaults.Seed,
	}

	if opts.Budget != nil {
		if *opts.Budget < 0 {
			return Request{}, fmt.Errorf("token budget must be >= 0, got %d", *opts.Budget)
		}
		req.Budget = *opts.Budget
	}

	switch {
	case opts.Strategy != nil:
		k := 0
		if opts.TopK != nil {
			k = *opts.TopK
		}
		s, err := logits.ParseStrategy(*opts.Strategy, k)
		if err != nil {
			return Request{}, err
		}
		req.Strategy = s
	case opts.TopK != nil:
		req.Strategy = logits.TopK(*opts.TopK)
	}

	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	if opts.BufferPartialRunes != nil {
		req.BufferPartialRunes = *opts.BufferPartialRunes
	}
	return req, nil
}
