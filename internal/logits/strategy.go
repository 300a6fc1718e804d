package logits

import (
	"fmt"
	"strings"
)

type Kind int

const (
	KindGreedy Kind = iota
	KindTopK
)

func (k Kind) String() string {
	switch k {
	case KindGreedy:
		return "greedy"
	case KindTopK:
		return "top_k"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DefaultTopK is the candidate count used when TopK is selected without k.
const DefaultTopK = 40

// Strategy selects how the next token is chosen. K is only meaningful for
// KindTopK.
type Strategy struct {
	Kind Kind
	K    int
}

func Greedy() Strategy { return Strategy{Kind: KindGreedy} }

func TopK(k int) Strategy { return Strategy{Kind: KindTopK, K: k} }

// Default is the strategy used when a request does not choose one.
func Default() Strategy { return TopK(DefaultTopK) }

func (s Strategy) String() string {
	if s.Kind == KindTopK {
		return fmt.Sprintf("top_k(%d)", s.K)
	}
	return s.Kind.String()
}

// Validate checks s against a vocabulary of vocabSize ids.
func (s Strategy) Validate(vocabSize int) error {
	switch s.Kind {
	case KindGreedy:
		return nil
	case KindTopK:
		if s.K < 1 {
			return fmt.Errorf("top_k must be >= 1, got %d", s.K)
		}
		if vocabSize > 0 && s.K > vocabSize {
			return fmt.Errorf("top_k must be <= vocabulary size %d, got %d", vocabSize, s.K)
		}
		return nil
	default:
		return fmt.Errorf("unknown strategy kind %d", int(s.Kind))
	}
}

// ParseStrategy maps a user-facing name to a Strategy. k <= 0 with a top-k
// name selects DefaultTopK.
func ParseStrategy(name string, k int) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "greedy", "argmax":
		return Greedy(), nil
	case "", "topk", "top_k", "top-k":
		if k <= 0 {
			k = DefaultTopK
		}
		return TopK(k), nil
	default:
		return Strategy{}, fmt.Errorf("unknown strategy %q (want greedy or top_k)", name)
	}
}
