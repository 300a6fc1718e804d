package main

import (
	"bytes"
	"testing"

	"github.com/samcharles93/quill/internal/inference"
)

func newTestPrinter(out *bytes.Buffer, mode StreamMode, raw bool) *fragmentPrinter {
	p := newFragmentPrinter(out, mode, raw)
	p.delay = 0
	return p
}

func emitAll(p *fragmentPrinter, texts ...string) {
	for i, s := range texts {
		p.Emit(inference.Fragment{Step: i, Token: i, Text: s})
	}
}

func TestFragmentPrinterModes(t *testing.T) {
	t.Parallel()

	for _, mode := range []StreamMode{StreamInstant, StreamSmooth, StreamTypewriter, StreamQuiet} {
		var out bytes.Buffer
		p := newTestPrinter(&out, mode, false)
		emitAll(p, "Hel", "lo", "\n", "wörld")
		p.Emit(inference.Fragment{Step: 4, Token: -1, Text: "!"})
		got := p.Close()
		if got != "Hello\nwörld!" {
			t.Fatalf("%s: unexpected text %q", mode, got)
		}
		if out.String() != got {
			t.Fatalf("%s: output %q differs from text %q", mode, out.String(), got)
		}
	}
}

func TestFragmentPrinterQuietHoldsOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newTestPrinter(&out, StreamQuiet, false)
	emitAll(p, "abc")
	if out.Len() != 0 {
		t.Fatalf("quiet mode wrote before close: %q", out.String())
	}
	p.Close()
	if out.String() != "abc" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestFragmentPrinterSmoothFlushesFullBatch(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newTestPrinter(&out, StreamSmooth, false)
	emitAll(p, "a", "b", "c", "d", "e")

	p.mu.Lock()
	got, pending, timer := out.String(), len(p.pending), p.timer
	p.mu.Unlock()
	if got != "abcde" || pending != 0 || timer != nil {
		t.Fatalf("after a full batch: output=%q pending=%d timer=%v", got, pending, timer)
	}
	if text := p.Close(); text != "abcde" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestFragmentPrinterRawOutput(t *testing.T) {
	t.Parallel()

	for _, mode := range []StreamMode{StreamInstant, StreamTypewriter, StreamQuiet} {
		var out bytes.Buffer
		p := newTestPrinter(&out, mode, true)
		emitAll(p, "a\tb\n", "\\\x01")
		if got := p.Close(); got != "a\tb\n\\\x01" {
			t.Fatalf("%s: text must stay unescaped, got %q", mode, got)
		}
		if want := `a\tb\n\\\u0001`; out.String() != want {
			t.Fatalf("%s: got %q want %q", mode, out.String(), want)
		}
	}
}

func TestParseStreamMode(t *testing.T) {
	t.Parallel()

	cases := map[string]StreamMode{
		"":           StreamInstant,
		"Smooth":     StreamSmooth,
		" quiet ":    StreamQuiet,
		"typewriter": StreamTypewriter,
	}
	for in, want := range cases {
		got, err := parseStreamMode(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
	if _, err := parseStreamMode("fast"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
