package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samcharles93/quill/internal/inference"
)

type StreamMode string

const (
	StreamInstant    StreamMode = "instant"
	StreamSmooth     StreamMode = "smooth"
	StreamTypewriter StreamMode = "typewriter"
	StreamQuiet      StreamMode = "quiet"
)

const (
	smoothBatch     = 5
	smoothInterval  = 50 * time.Millisecond
	typewriterDelay = 8 * time.Millisecond
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return StreamInstant, nil
	case StreamInstant, StreamSmooth, StreamTypewriter, StreamQuiet:
		return m, nil
	}
	return "", fmt.Errorf("unknown stream mode %q (want instant, smooth, typewriter or quiet)", s)
}

// fragmentPrinter renders engine fragments on a terminal. Emit is the engine
// callback; Close writes whatever is still held back and returns the text.
//
// instant writes each fragment as it arrives, smooth groups up to smoothBatch
// fragments or smoothInterval of output, typewriter paces rune by rune and
// quiet prints everything on Close.
type fragmentPrinter struct {
	mode  StreamMode
	raw   bool
	delay time.Duration

	mu      sync.Mutex
	w       *bufio.Writer
	text    strings.Builder
	pending []inference.Fragment
	timer   *time.Timer
}

func newFragmentPrinter(w io.Writer, mode StreamMode, raw bool) *fragmentPrinter {
	return &fragmentPrinter{
		mode:  mode,
		raw:   raw,
		delay: typewriterDelay,
		w:     bufio.NewWriter(w),
	}
}

func (p *fragmentPrinter) Emit(f inference.Fragment) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.text.WriteString(f.Text)
	switch p.mode {
	case StreamInstant:
		p.put(f.Text)
		_ = p.w.Flush()
	case StreamTypewriter:
		for _, r := range f.Text {
			p.put(string(r))
			_ = p.w.Flush()
			if p.delay > 0 {
				time.Sleep(p.delay)
			}
		}
	case StreamSmooth:
		p.pending = append(p.pending, f)
		switch {
		case len(p.pending) >= smoothBatch:
			p.flushPending()
		case p.timer == nil:
			p.timer = time.AfterFunc(smoothInterval, func() {
				p.mu.Lock()
				defer p.mu.Unlock()
				p.flushPending()
			})
		}
	}
}

func (p *fragmentPrinter) Close() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.mode {
	case StreamQuiet:
		p.put(p.text.String())
	case StreamSmooth:
		p.flushPending()
	}
	_ = p.w.Flush()
	return p.text.String()
}

// flushPending must be called with mu held.
func (p *fragmentPrinter) flushPending() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if len(p.pending) == 0 {
		return
	}
	for _, f := range p.pending {
		p.put(f.Text)
	}
	p.pending = p.pending[:0]
	_ = p.w.Flush()
}

func (p *fragmentPrinter) put(s string) {
	if p.raw {
		s = escapeRawOutput(s)
	}
	_, _ = p.w.WriteString(s)
}

// escapeRawOutput makes control characters visible for --raw-output.
func escapeRawOutput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\\':
			b.WriteString(`\\`)
		default:
			if strconv.IsPrint(r) {
				b.WriteRune(r)
			} else {
				fmt.Fprintf(&b, `\u%04x`, r)
			}
		}
	}
	return b.String()
}
