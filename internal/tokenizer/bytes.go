package tokenizer

var byteToRune, runeToByte = byteAlphabet()

// byteAlphabet maps every byte to a visible rune so merges never operate on
// whitespace or control characters. Printable Latin-1 bytes map to
// themselves; the remaining 68 bytes are shifted to 256+n.
func byteAlphabet() ([256]rune, map[rune]byte) {
	var enc [256]rune
	dec := make(map[rune]byte, 256)

	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}

	n := 0
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + n)
			n++
		}
		enc[b] = r
		dec[r] = byte(b)
	}
	return enc, dec
}

// ByteSymbol returns the visible symbol standing for b.
func ByteSymbol(b byte) string {
	return string(byteToRune[b])
}
