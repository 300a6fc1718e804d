package main

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logits"
	"github.com/samcharles93/quill/internal/tokenizer"
	"github.com/samcharles93/quill/internal/vocab"
)

func byteTokenizer(t *testing.T) *tokenizer.BPE {
	t.Helper()
	tokens := make(map[string]int, 256)
	for b := 0; b < 256; b++ {
		tokens[tokenizer.ByteSymbol(byte(b))] = b
	}
	v, err := vocab.New(tokens, nil)
	if err != nil {
		t.Fatalf("vocab: %v", err)
	}
	tok, err := tokenizer.NewBPE(v, 0)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	return tok
}

// favour returns a model whose every row peaks at id.
func favour(id int) inference.InferFunc {
	return func(_ context.Context, window []int) ([][]float32, error) {
		rows := make([][]float32, len(window))
		for i := range rows {
			rows[i] = make([]float32, 256)
			rows[i][id] = 10
		}
		return rows, nil
	}
}

func TestRequestOptionsForwardsSetFlags(t *testing.T) {
	var (
		o   samplingOptions
		got inference.RequestOptions
	)
	cmd := &cli.Command{
		Name:  "test",
		Flags: samplingFlags(&o),
		Action: func(ctx context.Context, c *cli.Command) error {
			got = requestOptions(c, "hi", o)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"test", "--top-k", "5", "--seed", "3"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Prompt != "hi" {
		t.Fatalf("unexpected prompt %q", got.Prompt)
	}
	if got.Budget != nil || got.Strategy != nil || got.BufferPartialRunes != nil {
		t.Fatalf("unset flags must stay nil: %+v", got)
	}
	if got.TopK == nil || *got.TopK != 5 {
		t.Fatalf("unexpected top-k: %v", got.TopK)
	}
	if got.Seed == nil || *got.Seed != 3 {
		t.Fatalf("unexpected seed: %v", got.Seed)
	}

	req, err := inference.ResolveRequest(got, inference.DefaultRequestDefaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if req.Strategy != logits.TopK(5) || req.Budget != inference.DefaultBudget {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestPromptRunnerOnce(t *testing.T) {
	t.Parallel()

	tok := byteTokenizer(t)
	eng, err := inference.New(tok, favour('a'), inference.Config{Window: 4})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	var stdout, stderr bytes.Buffer
	run := promptRunner{
		engine:     eng,
		defaults:   inference.Defaults{Budget: 3, Strategy: logits.Greedy()},
		stdout:     &stdout,
		stderr:     &stderr,
		mode:       StreamInstant,
		showTokens: true,
		tokenize:   tok.Encode,
	}
	res, err := run.once(context.Background(), inference.RequestOptions{Prompt: "hi"})
	if err != nil {
		t.Fatalf("once: %v", err)
	}
	if res.State != inference.StateCompleted {
		t.Fatalf("unexpected state %s", res.State)
	}
	if stdout.String() != "aaa\n" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	for _, want := range []string{"Input tokens (2): [104, 105]", "Output tokens (3): [97, 97, 97]", "Stats:"} {
		if !strings.Contains(stderr.String(), want) {
			t.Fatalf("stderr missing %q: %q", want, stderr.String())
		}
	}
}

func TestPromptRunnerRejectsBadRequest(t *testing.T) {
	t.Parallel()

	tok := byteTokenizer(t)
	eng, err := inference.New(tok, favour('a'), inference.Config{Window: 4})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	var out bytes.Buffer
	run := promptRunner{engine: eng, defaults: inference.DefaultRequestDefaults(), stdout: &out, stderr: &out}

	negative := -1
	if _, err := run.once(context.Background(), inference.RequestOptions{Prompt: "x", Budget: &negative}); err == nil {
		t.Fatalf("expected error for negative budget")
	}
	if _, err := run.once(context.Background(), inference.RequestOptions{Prompt: ""}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestParseIDs(t *testing.T) {
	t.Parallel()

	cases := map[string][]int{
		"[1, 2, 3]":   {1, 2, 3},
		"4 5\n6":      {4, 5, 6},
		"7,8, 9":      {7, 8, 9},
		"  ":          {},
		"[]":          {},
		"\t10\r\n11 ": {10, 11},
	}
	for in, want := range cases {
		got, err := parseIDs(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if len(got) != len(want) || (len(want) > 0 && !reflect.DeepEqual(got, want)) {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
	for _, bad := range []string{"1 two", "[1,"} {
		if _, err := parseIDs(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestWriteTokens(t *testing.T) {
	t.Parallel()

	tok := byteTokenizer(t)
	ids, err := tok.Encode("a b")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var plain bytes.Buffer
	if err := writeTokens(&plain, tok, ids, false, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if plain.String() != "97 32 98\n" {
		t.Fatalf("unexpected plain output %q", plain.String())
	}

	var pieces bytes.Buffer
	if err := writeTokens(&pieces, tok, ids, false, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if want := `97="a" 32="Ġ" 98="b"` + "\n"; pieces.String() != want {
		t.Fatalf("unexpected pieces output: got %q want %q", pieces.String(), want)
	}

	var js bytes.Buffer
	if err := writeTokens(&js, tok, nil, true, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(js.String(), `"ids": []`) || !strings.Contains(js.String(), `"count": 0`) {
		t.Fatalf("unexpected json output %q", js.String())
	}
}

func TestJoinInts(t *testing.T) {
	t.Parallel()

	if got := joinInts(nil); got != "[]" {
		t.Fatalf("got %q", got)
	}
	if got := joinInts([]int{1, 22}); got != "[1, 22]" {
		t.Fatalf("got %q", got)
	}
}
