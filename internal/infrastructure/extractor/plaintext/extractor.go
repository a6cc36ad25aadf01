package plaintext

import (
	"strings"
	"unicode"
)

// Decode reads bytes as UTF-8 best-effort. Invalid sequences and control
// characters other than newlines and tabs are dropped, so binary
// word-processing files degrade to whatever readable text they carry.
func Decode(raw []byte) string {
	text := strings.ToValidUTF8(string(raw), "")
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, text)
	return strings.TrimSpace(text)
}
