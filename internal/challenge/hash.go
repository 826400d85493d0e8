package challenge

import "strings"

const upperHex = "0123456789ABCDEF"

// QuoteAll percent-encodes every UTF-8 byte of s outside the unreserved set
// A-Z a-z 0-9 _ . - ~. Unlike url.QueryEscape it keeps no other characters
// and never turns spaces into '+'.
func QuoteAll(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '~':
		return true
	}
	return false
}

// SimpleHash is the 31-multiplier rolling hash over the code points of s,
// wrapped to a signed 32-bit value. Code points >= 256 are skipped.
func SimpleHash(s string) int32 {
	var acc uint32
	for _, r := range s {
		if r >= 256 {
			continue
		}
		acc = acc<<5 - acc + uint32(r)
	}
	return int32(acc)
}
