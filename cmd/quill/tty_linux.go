//go:build linux

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

func isTTY() bool {
	return isTerminal(os.Stdin)
}

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}
