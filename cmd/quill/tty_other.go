//go:build !linux

package main

import "os"

func isTTY() bool {
	return isTerminal(os.Stdin)
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
