//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/sys/unix"
)

var (
	interactiveHistory []string
	stdinReader        = bufio.NewReader(os.Stdin)
)

// readInteractiveLine reads one prompt line. On a terminal it switches stdin
// to non-canonical mode and supports cursor movement, word deletion and
// history; otherwise it reads a plain line.
func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		_, _ = io.WriteString(os.Stderr, prompt)
		s, err := stdinReader.ReadString('\n')
		if err != nil && (err != io.EOF || s == "") {
			return "", err
		}
		return trimTrailingNewline(s), nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO | unix.ISIG
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &newState); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	e := &lineEditor{prompt: prompt, out: os.Stderr, histPos: len(interactiveHistory)}
	fmt.Fprint(e.out, prompt)

	var buf [16]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		if line, done, err := e.feed(buf[:n]); done {
			if err == nil && strings.TrimSpace(line) != "" {
				interactiveHistory = append(interactiveHistory, line)
			}
			return line, err
		}
	}
}

type lineEditor struct {
	prompt string
	out    io.Writer

	line   []rune
	cursor int

	escState int
	escBuf   strings.Builder
	pending  []byte

	histPos      int
	histBrowsing bool
	histDraft    string
}

// feed consumes raw input bytes. done is true once the line is finished or
// aborted.
func (e *lineEditor) feed(p []byte) (line string, done bool, err error) {
	for _, b := range p {
		if e.escState != 0 {
			e.escape(b)
			continue
		}
		if len(e.pending) > 0 || b >= utf8.RuneSelf {
			e.pending = append(e.pending, b)
			if utf8.FullRune(e.pending) {
				r, _ := utf8.DecodeRune(e.pending)
				e.pending = e.pending[:0]
				e.insert(r)
			}
			continue
		}

		switch b {
		case 27: // ESC
			e.escState = 1
		case '\r', '\n':
			fmt.Fprint(e.out, "\r\n")
			return string(e.line), true, nil
		case 3: // Ctrl+C
			fmt.Fprint(e.out, "^C\r\n")
			return "", true, io.EOF
		case 4: // Ctrl+D
			if len(e.line) == 0 {
				fmt.Fprint(e.out, "\r\n")
				return "", true, io.EOF
			}
		case 127, 8:
			if e.cursor > 0 {
				e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
				e.cursor--
				e.redraw()
			}
		case 1: // Ctrl+A
			e.cursor = 0
			e.redraw()
		case 5: // Ctrl+E
			e.cursor = len(e.line)
			e.redraw()
		case 23: // Ctrl+W
			e.deleteWordBack()
		default:
			if b >= 32 {
				e.insert(rune(b))
			}
		}
	}
	return "", false, nil
}

func (e *lineEditor) escape(b byte) {
	switch e.escState {
	case 1:
		switch b {
		case '[':
			e.escState = 2
			e.escBuf.Reset()
			return
		case 'b', 'B':
			e.moveWordLeft()
		case 'f', 'F':
			e.moveWordRight()
		case 127:
			e.deleteWordBack()
		}
		e.escState = 0
	case 2:
		e.escBuf.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			e.csi(e.escBuf.String())
			e.escState = 0
		}
	}
}

func (e *lineEditor) csi(seq string) {
	switch seq {
	case "A":
		e.historyPrev()
	case "B":
		e.historyNext()
	case "D":
		if e.cursor > 0 {
			e.cursor--
			e.redraw()
		}
	case "C":
		if e.cursor < len(e.line) {
			e.cursor++
			e.redraw()
		}
	case "H":
		e.cursor = 0
		e.redraw()
	case "F":
		e.cursor = len(e.line)
		e.redraw()
	case "3~":
		if e.cursor < len(e.line) {
			e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
			e.redraw()
		}
	case "1;5D", "5D":
		e.moveWordLeft()
	case "1;5C", "5C":
		e.moveWordRight()
	}
}

func (e *lineEditor) insert(r rune) {
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = r
	e.cursor++
	e.redraw()
}

func (e *lineEditor) redraw() {
	fmt.Fprintf(e.out, "\r%s%s\x1b[K", e.prompt, string(e.line))
	if e.cursor < len(e.line) {
		fmt.Fprintf(e.out, "\r%s%s", e.prompt, string(e.line[:e.cursor]))
	}
}

func (e *lineEditor) historyPrev() {
	if len(interactiveHistory) == 0 {
		return
	}
	if !e.histBrowsing {
		e.histDraft = string(e.line)
		e.histBrowsing = true
		e.histPos = len(interactiveHistory)
	}
	if e.histPos > 0 {
		e.histPos--
		e.line = []rune(interactiveHistory[e.histPos])
		e.cursor = len(e.line)
		e.redraw()
	}
}

func (e *lineEditor) historyNext() {
	if !e.histBrowsing {
		return
	}
	if e.histPos < len(interactiveHistory)-1 {
		e.histPos++
		e.line = []rune(interactiveHistory[e.histPos])
	} else {
		e.histPos = len(interactiveHistory)
		e.line = []rune(e.histDraft)
		e.histBrowsing = false
	}
	e.cursor = len(e.line)
	e.redraw()
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

func (e *lineEditor) moveWordLeft() {
	for e.cursor > 0 && isSpace(e.line[e.cursor-1]) {
		e.cursor--
	}
	for e.cursor > 0 && !isSpace(e.line[e.cursor-1]) {
		e.cursor--
	}
	e.redraw()
}

func (e *lineEditor) moveWordRight() {
	for e.cursor < len(e.line) && isSpace(e.line[e.cursor]) {
		e.cursor++
	}
	for e.cursor < len(e.line) && !isSpace(e.line[e.cursor]) {
		e.cursor++
	}
	e.redraw()
}

func (e *lineEditor) deleteWordBack() {
	start := e.cursor
	for start > 0 && isSpace(e.line[start-1]) {
		start--
	}
	for start > 0 && !isSpace(e.line[start-1]) {
		start--
	}
	e.line = append(e.line[:start], e.line[e.cursor:]...)
	e.cursor = start
	e.redraw()
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
