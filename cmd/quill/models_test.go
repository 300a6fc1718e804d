package main

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestScanModels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "b.onnx", "a.ONNX", "ignore.txt")

	got, err := scanModels(dir)
	if err != nil {
		t.Fatalf("scanModels returned error: %v", err)
	}
	want := []string{"a.ONNX", "b.onnx"}
	if len(got) != len(want) {
		t.Fatalf("unexpected model count: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] || got[i].Path != filepath.Join(dir, want[i]) || got[i].Size != 1 {
			t.Fatalf("entry %d: got %+v want %s", i, got[i], want[i])
		}
	}

	if _, err := scanModels(filepath.Join(dir, "b.onnx")); err == nil {
		t.Fatalf("expected error for a file passed as models dir")
	}
}

func TestPickModel(t *testing.T) {
	t.Run("toy wins over configured model", func(t *testing.T) {
		got, err := pickModel(modelOptions{toy: true, model: "m.onnx"}, nil, io.Discard)
		if err != nil || !got.Toy {
			t.Fatalf("expected toy model, got %+v %v", got, err)
		}
	})

	t.Run("model flag bypasses env", func(t *testing.T) {
		t.Setenv(envModelsDir, t.TempDir())
		got, err := pickModel(modelOptions{model: "/tmp/model.onnx"}, nil, io.Discard)
		if err != nil {
			t.Fatalf("pickModel returned error: %v", err)
		}
		if got.Path != filepath.Clean("/tmp/model.onnx") || got.Toy {
			t.Fatalf("unexpected model: %+v", got)
		}
	})

	t.Run("nothing configured is an error", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		if _, err := pickModel(modelOptions{}, nil, io.Discard); err == nil || !strings.Contains(err.Error(), "--toy") {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("empty models dir suggests toy", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		_, err := pickModel(modelOptions{modelsDir: t.TempDir()}, nil, io.Discard)
		if err == nil || !strings.Contains(err.Error(), "--toy") {
			t.Fatalf("expected empty directory error, got %v", err)
		}
	})

	t.Run("single model selects automatically", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "only.onnx")
		t.Setenv(envModelsDir, dir)
		withTTY(t, false)

		var stderr bytes.Buffer
		got, err := pickModel(modelOptions{}, nil, &stderr)
		if err != nil {
			t.Fatalf("pickModel returned error: %v", err)
		}
		if want := filepath.Join(dir, "only.onnx"); got.Path != want {
			t.Fatalf("unexpected model path: got %q want %q", got.Path, want)
		}
		if !strings.Contains(stderr.String(), "using model only.onnx") {
			t.Fatalf("expected selection notice, got %q", stderr.String())
		}
	})

	t.Run("multiple models requires tty", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "a.onnx", "b.onnx")
		t.Setenv(envModelsDir, dir)
		withTTY(t, false)

		if _, err := pickModel(modelOptions{}, nil, io.Discard); err == nil {
			t.Fatalf("expected error when multiple models and stdin is not a tty")
		}
	})

	t.Run("prompt lists models and accepts an index", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "b.onnx", "a.onnx")
		t.Setenv(envModelsDir, "")
		withTTY(t, true)

		var stderr bytes.Buffer
		got, err := pickModel(modelOptions{modelsDir: dir}, strings.NewReader("x\n9\n2\n"), &stderr)
		if err != nil {
			t.Fatalf("pickModel returned error: %v", err)
		}
		if want := filepath.Join(dir, "b.onnx"); got.Path != want {
			t.Fatalf("unexpected model selection: got %q want %q", got.Path, want)
		}
		for _, want := range []string{" 1. a.onnx", " 2. b.onnx", " 0. toy", `no model "x"`, `no model "9"`} {
			if !strings.Contains(stderr.String(), want) {
				t.Fatalf("prompt output missing %q:\n%s", want, stderr.String())
			}
		}
	})

	t.Run("prompt fails on eof", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "a.onnx", "b.onnx")
		t.Setenv(envModelsDir, "")
		withTTY(t, true)

		if _, err := pickModel(modelOptions{modelsDir: dir}, strings.NewReader("7"), io.Discard); err == nil {
			t.Fatalf("expected error for invalid selection at eof")
		}
	})
}

func TestMatchModel(t *testing.T) {
	t.Parallel()

	models := []modelEntry{
		{Path: "/m/gpt2.onnx", Name: "gpt2.onnx"},
		{Path: "/m/distil.onnx", Name: "distil.onnx"},
	}
	cases := []struct {
		answer string
		want   modelSource
		ok     bool
	}{
		{answer: "1", want: modelSource{Path: "/m/gpt2.onnx"}, ok: true},
		{answer: "2", want: modelSource{Path: "/m/distil.onnx"}, ok: true},
		{answer: "0", want: modelSource{Toy: true}, ok: true},
		{answer: "TOY", want: modelSource{Toy: true}, ok: true},
		{answer: "distil", want: modelSource{Path: "/m/distil.onnx"}, ok: true},
		{answer: "gpt2.onnx", want: modelSource{Path: "/m/gpt2.onnx"}, ok: true},
		{answer: "3"},
		{answer: "-1"},
		{answer: "llama"},
	}
	for _, tc := range cases {
		got, ok := matchModel(models, tc.answer)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%q: got %+v,%v want %+v,%v", tc.answer, got, ok, tc.want, tc.ok)
		}
	}
}
