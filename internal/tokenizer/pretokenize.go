package tokenizer

import (
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// GPT2SplitPattern is the pre-tokenization rule baked into GPT-2 style
// vocabularies. The (?!\S) branch keeps the last space of a whitespace run
// attached to the following word.
const GPT2SplitPattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

type pretokenizer struct {
	re *regexp2.Regexp
}

func newPretokenizer(pattern string) (*pretokenizer, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	return &pretokenizer{re: re}, nil
}

// split returns the chunks of text in order. Chunks are sliced from the
// original string, so invalid UTF-8 bytes survive untouched.
func (p *pretokenizer) split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	// regexp2 reports rune offsets; map them back to byte offsets.
	offsets := make([]int, 0, len(text)+1)
	for i := 0; i < len(text); {
		offsets = append(offsets, i)
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	offsets = append(offsets, len(text))

	var out []string
	m, err := p.re.FindStringMatch(text)
	for m != nil && err == nil {
		start := offsets[m.Index]
		end := offsets[m.Index+m.Length]
		out = append(out, text[start:end])
		m, err = p.re.FindNextMatch(m)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
