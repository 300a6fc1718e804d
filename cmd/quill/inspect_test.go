package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/samcharles93/quill/internal/vocab"
)

func TestPrintVocabSummary(t *testing.T) {
	t.Parallel()

	v, err := vocab.New(map[string]int{"a": 0, "b": 1, "ab": 2}, []vocab.Pair{{Left: "a", Right: "b"}})
	if err != nil {
		t.Fatalf("vocab: %v", err)
	}
	var out bytes.Buffer
	printVocabSummary(&out, "test.json", v)
	printMerges(&out, v, 10)
	printVocabEntries(&out, v, 2)

	for _, want := range []string{
		fmt.Sprintf("%-24s %s", "vocab_size:", "3"),
		fmt.Sprintf("%-24s %s", "merges:", "1"),
		fmt.Sprintf("%-24s %s", "byte_symbols:", "2/256"),
		fmt.Sprintf("%-24s %s", "pad (id 0):", `"a"`),
		fmt.Sprintf("%-8d %s", 0, "a b"),
		fmt.Sprintf("%-8d %s", 1, `"b"`),
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), `"ab"`) {
		t.Fatalf("vocab limit not applied:\n%s", out.String())
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	cases := map[uint64]string{
		12:                     "12 B",
		2048:                   "2.00 KiB",
		5 * 1024 * 1024:        "5.00 MiB",
		3 * 1024 * 1024 * 1024: "3.00 GiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d): got %q want %q", in, got, want)
		}
	}
}

func TestPrintModelList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "a.onnx", "b.onnx")
	models, err := scanModels(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var out bytes.Buffer
	printModelList(&out, dir, models)
	for _, want := range []string{" 1. a.onnx", " 2. b.onnx", "1 B", "2 model(s) found"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintBenchResults(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printBenchResults(&out, []benchRun{
		{TPS: 10, Duration: time.Second, Tokens: 10},
		{TPS: 20, Duration: 500 * time.Millisecond, Tokens: 10},
	})
	if !strings.Contains(out.String(), fmt.Sprintf("%-6s %10.2f", "Avg", 15.0)) {
		t.Fatalf("missing average:\n%s", out.String())
	}
}
