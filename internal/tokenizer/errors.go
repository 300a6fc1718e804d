package tokenizer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSymbol is matched when a merged symbol has no vocabulary id.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrInvalidToken is matched when Decode receives an id outside [0, V).
	ErrInvalidToken = errors.New("invalid token")
)

type UnknownSymbolError struct {
	Symbol string
	Chunk  string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("tokenizer: unknown symbol %q in chunk %q", e.Symbol, e.Chunk)
}

func (e *UnknownSymbolError) Unwrap() error { return ErrUnknownSymbol }

type InvalidTokenError struct {
	ID        int
	VocabSize int
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("tokenizer: token id %d out of range [0,%d)", e.ID, e.VocabSize)
}

func (e *InvalidTokenError) Unwrap() error { return ErrInvalidToken }
