package caption

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize cleans raw generated text into a caption sentence: surrounding
// whitespace is trimmed, a leading lowercase letter is capitalised and a
// period is appended unless the text already ends in terminal punctuation.
// Empty input stays empty. Normalize is idempotent.
func Normalize(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(text)
	if unicode.IsLower(first) {
		text = string(unicode.ToUpper(first)) + text[size:]
	}

	last, _ := utf8.DecodeLastRuneInString(text)
	if !isTerminal(last) {
		text += "."
	}
	return text
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
