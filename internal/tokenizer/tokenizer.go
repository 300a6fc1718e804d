package tokenizer

// Tokenizer is the minimal surface the generation engine depends on.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// Sized is implemented by tokenizers that know their vocabulary size.
type Sized interface {
	VocabSize() int
}
