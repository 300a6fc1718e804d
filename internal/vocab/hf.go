package vocab

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

const sourceTokenizerJSON = "tokenizer.json"

type tokenizerJSON struct {
	Model struct {
		Type   string            `json:"type"`
		Vocab  map[string]int    `json:"vocab"`
		Merges []json.RawMessage `json:"merges"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// LoadTokenizerJSON reads a Hugging Face tokenizer.json holding a BPE model.
// Merges may be "left right" strings or two-element arrays; added tokens
// join the vocabulary under their declared ids.
func LoadTokenizerJSON(r io.Reader) (*Vocabulary, error) {
	var tj tokenizerJSON
	if err := json.NewDecoder(r).Decode(&tj); err != nil {
		return nil, loadErr(sourceTokenizerJSON, 0, err, "decode")
	}
	if !strings.EqualFold(tj.Model.Type, "BPE") {
		return nil, loadErr(sourceTokenizerJSON, 0, nil, "unsupported tokenizer model %q", tj.Model.Type)
	}

	tokens := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	for tok, id := range tj.Model.Vocab {
		tokens[tok] = id
	}
	for _, at := range tj.AddedTokens {
		if id, ok := tokens[at.Content]; ok && id != at.ID {
			return nil, loadErr(sourceTokenizerJSON, 0, nil, "added token %q has id %d, vocabulary has %d", at.Content, at.ID, id)
		}
		tokens[at.Content] = at.ID
	}

	pairs := make([]Pair, 0, len(tj.Model.Merges))
	for i, raw := range tj.Model.Merges {
		p, err := parseMergeEntry(raw)
		if err != nil {
			return nil, loadErr(sourceTokenizerJSON, 0, err, "merge %d", i)
		}
		pairs = append(pairs, p)
	}
	return New(tokens, pairs)
}

func LoadTokenizerJSONFile(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadErr(path, 0, err, "open")
	}
	defer func() { _ = f.Close() }()
	return LoadTokenizerJSON(f)
}

func parseMergeEntry(raw json.RawMessage) (Pair, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var parts []string
		if err := json.Unmarshal(raw, &parts); err != nil {
			return Pair{}, err
		}
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Pair{}, loadErr(sourceTokenizerJSON, 0, nil, "malformed merge %s", raw)
		}
		return Pair{Left: parts[0], Right: parts[1]}, nil
	}
	var line string
	if err := json.Unmarshal(raw, &line); err != nil {
		return Pair{}, err
	}
	parts := strings.Split(line, " ")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, loadErr(sourceTokenizerJSON, 0, nil, "malformed merge %q", line)
	}
	return Pair{Left: parts[0], Right: parts[1]}, nil
}
