//go:build !linux

package main

import (
	"bufio"
	"io"
	"os"
)

var stdinReader = bufio.NewReader(os.Stdin)

func readInteractiveLine(prompt string) (string, error) {
	_, _ = io.WriteString(os.Stderr, prompt)
	s, err := stdinReader.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return trimTrailingNewline(s), nil
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
