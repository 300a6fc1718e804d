package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/samcharles93/quill/internal/vocab"
)

// DefaultCacheSize bounds the per-chunk merge cache.
const DefaultCacheSize = 8192

// BPE is a byte-level BPE tokenizer over a GPT-2 style vocabulary.
// It is safe for concurrent use.
type BPE struct {
	vocab *vocab.Vocabulary
	cache *lru.Cache[string, []string]
	pre   *pretokenizer
}

// NewBPE builds a tokenizer over v. cacheSize <= 0 selects DefaultCacheSize.
func NewBPE(v *vocab.Vocabulary, cacheSize int) (*BPE, error) {
	if v == nil {
		return nil, fmt.Errorf("tokenizer: vocabulary is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: create cache: %w", err)
	}
	pre, err := newPretokenizer(GPT2SplitPattern)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: compile split pattern: %w", err)
	}
	return &BPE{
		vocab: v,
		cache: cache,
		pre:   pre,
	}, nil
}

func (t *BPE) Encode(text string) ([]int, error) {
	chunks, err := t.pre.split(text)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: pre-tokenize: %w", err)
	}
	ids := make([]int, 0, len(chunks))
	for _, chunk := range chunks {
		for _, sym := range t.bpe(byteEncode(chunk)) {
			id, ok := t.vocab.ID(sym)
			if !ok {
				return nil, &UnknownSymbolError{Symbol: sym, Chunk: chunk}
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *BPE) Decode(ids []int) (string, error) {
	b := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		tok, ok := t.vocab.Token(id)
		if !ok {
			return "", &InvalidTokenError{ID: id, VocabSize: t.vocab.Size()}
		}
		for _, r := range tok {
			if by, ok := runeToByte[r]; ok {
				b = append(b, by)
			} else {
				b = utf8.AppendRune(b, r)
			}
		}
	}
	return string(b), nil
}

// Chunks exposes the pre-tokenization of text.
func (t *BPE) Chunks(text string) ([]string, error) {
	return t.pre.split(text)
}

func (t *BPE) VocabSize() int { return t.vocab.Size() }

func (t *BPE) TokenString(id int) string {
	tok, _ := t.vocab.Token(id)
	return tok
}

func byteEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		b.WriteRune(byteToRune[s[i]])
	}
	return b.String()
}

// bpe merges the symbols of one byte-encoded chunk to a fixpoint: each round
// picks the lowest-ranked adjacent pair and merges all of its
// non-overlapping occurrences. The returned slice is shared with the cache.
func (t *BPE) bpe(chunk string) []string {
	if word, ok := t.cache.Get(chunk); ok {
		return word
	}
	word := splitRunes(chunk)
	for len(word) > 1 {
		best, ok := t.lowestRankedPair(word)
		if !ok {
			break
		}
		word = mergePair(word, best)
	}
	t.cache.Add(chunk, word)
	return word
}

func (t *BPE) lowestRankedPair(word []string) (vocab.Pair, bool) {
	var (
		best  vocab.Pair
		rank  int
		found bool
	)
	for i := 0; i+1 < len(word); i++ {
		p := vocab.Pair{Left: word[i], Right: word[i+1]}
		r, ok := t.vocab.Rank(p)
		if ok && (!found || r < rank) {
			best, rank, found = p, r, true
		}
	}
	return best, found
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func mergePair(word []string, pair vocab.Pair) []string {
	out := make([]string, 0, len(word))
	for i := 0; i < len(word); i++ {
		if i < len(word)-1 && word[i] == pair.Left && word[i+1] == pair.Right {
			out = append(out, word[i]+word[i+1])
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}
