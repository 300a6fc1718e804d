package vocab

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const (
	sourceTokens = "tokens"
	sourceMerges = "merges"
)

// Pair is an ordered pair of adjacent BPE symbols.
type Pair struct {
	Left  string
	Right string
}

// Vocabulary holds the token/id tables and the merge precedence table.
// It is immutable after construction and safe for concurrent readers.
type Vocabulary struct {
	tokenToID map[string]int
	idToToken []string
	ranks     map[Pair]int
}

// New builds a Vocabulary from an in-memory token table and an ordered merge
// list. merges[i] receives rank i unless the pair already appeared earlier.
func New(tokenToID map[string]int, merges []Pair) (*Vocabulary, error) {
	idToToken, err := invert(tokenToID, sourceTokens)
	if err != nil {
		return nil, err
	}
	enc := make(map[string]int, len(tokenToID))
	for tok, id := range tokenToID {
		enc[tok] = id
	}

	ranks := make(map[Pair]int, len(merges))
	rank := 0
	for i, p := range merges {
		if p.Left == "" || p.Right == "" {
			return nil, loadErr(sourceMerges, i+1, nil, "empty symbol in merge %q %q", p.Left, p.Right)
		}
		if _, ok := ranks[p]; ok {
			continue
		}
		ranks[p] = rank
		rank++
	}

	return &Vocabulary{
		tokenToID: enc,
		idToToken: idToToken,
		ranks:     ranks,
	}, nil
}

// Load reads a token→id JSON object and a merges file whose first line is a
// version header.
func Load(tokens io.Reader, merges io.Reader) (*Vocabulary, error) {
	tokenToID, err := ParseTokens(tokens)
	if err != nil {
		return nil, err
	}
	pairs, err := ParseMerges(merges)
	if err != nil {
		return nil, err
	}
	return New(tokenToID, pairs)
}

// LoadFiles is Load over two paths on disk.
func LoadFiles(tokensPath, mergesPath string) (*Vocabulary, error) {
	tf, err := os.Open(tokensPath)
	if err != nil {
		return nil, loadErr(tokensPath, 0, err, "open")
	}
	defer func() { _ = tf.Close() }()

	mf, err := os.Open(mergesPath)
	if err != nil {
		return nil, loadErr(mergesPath, 0, err, "open")
	}
	defer func() { _ = mf.Close() }()

	return Load(tf, mf)
}

// ParseTokens decodes a JSON object of string keys to integer ids.
func ParseTokens(r io.Reader) (map[string]int, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, loadErr(sourceTokens, 0, err, "decode token object")
	}
	if raw == nil {
		return nil, loadErr(sourceTokens, 0, nil, "expected a JSON object")
	}
	out := make(map[string]int, len(raw))
	for tok, msg := range raw {
		v := string(bytes.TrimSpace(msg))
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, loadErr(sourceTokens, 0, err, "token %q has non-integer id %s", tok, v)
		}
		out[tok] = id
	}
	return out, nil
}

// ParseMerges reads merge lines after the header line. Blank lines are
// skipped and do not consume a rank.
func ParseMerges(r io.Reader) ([]Pair, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pairs []Pair
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, loadErr(sourceMerges, lineNo, nil, "malformed merge line %q", line)
		}
		pairs = append(pairs, Pair{Left: parts[0], Right: parts[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, loadErr(sourceMerges, lineNo, err, "read")
	}
	return pairs, nil
}

func invert(tokenToID map[string]int, source string) ([]string, error) {
	if len(tokenToID) == 0 {
		return nil, loadErr(source, 0, nil, "empty vocabulary")
	}
	n := len(tokenToID)
	idToToken := make([]string, n)
	seen := make([]bool, n)
	for tok, id := range tokenToID {
		if id < 0 || id >= n {
			return nil, loadErr(source, 0, nil, "token %q has id %d outside dense range [0,%d)", tok, id, n)
		}
		if seen[id] {
			return nil, loadErr(source, 0, nil, "id %d assigned to both %q and %q", id, idToToken[id], tok)
		}
		seen[id] = true
		idToToken[id] = tok
	}
	return idToToken, nil
}

// Size returns V, the number of ids.
func (v *Vocabulary) Size() int { return len(v.idToToken) }

// MergeCount returns the number of ranked merge pairs.
func (v *Vocabulary) MergeCount() int { return len(v.ranks) }

func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.tokenToID[token]
	return id, ok
}

func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.idToToken) {
		return "", false
	}
	return v.idToToken[id], true
}

// Rank reports the merge precedence of p. Lower ranks merge first.
func (v *Vocabulary) Rank(p Pair) (int, bool) {
	r, ok := v.ranks[p]
	return r, ok
}

// Merges returns the merge pairs ordered by rank.
func (v *Vocabulary) Merges() []Pair {
	out := make([]Pair, len(v.ranks))
	for p, r := range v.ranks {
		out[r] = p
	}
	return out
}
