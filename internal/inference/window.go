package inference

import "unicode/utf8"

// fillWindow writes the last len(window) tokens of seq into window,
// right-pads the remainder with pad, and returns the number of real tokens.
func fillWindow(window, seq []int, pad int) int {
	n := min(len(seq), len(window))
	copy(window, seq[len(seq)-n:])
	for i := n; i < len(window); i++ {
		window[i] = pad
	}
	return n
}

// runeBuffer holds back a trailing incomplete UTF-8 sequence so emitted
// fragments always end on a character boundary.
type runeBuffer struct {
	pending []byte
}

func (b *runeBuffer) push(s string) string {
	b.pending = append(b.pending, s...)
	cut := completePrefix(b.pending)
	out := string(b.pending[:cut])
	b.pending = append(b.pending[:0], b.pending[cut:]...)
	return out
}

func (b *runeBuffer) flush() string {
	out := string(b.pending)
	b.pending = b.pending[:0]
	return out
}

func completePrefix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}
