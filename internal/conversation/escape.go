package conversation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EscapeCurrency escapes dollar signs used as currency so markdown renderers
// do not read them as math delimiters. Block math ($$...$$) and inline math
// ($...$ whose body is on one line and neither starts nor ends with
// whitespace) are kept as is.
func EscapeCurrency(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)

	i := 0
	for i < len(text) {
		d := strings.IndexByte(text[i:], '$')
		if d < 0 {
			b.WriteString(text[i:])
			break
		}
		b.WriteString(text[i : i+d])
		i += d

		if n := mathSpan(text[i:]); n > 0 {
			b.WriteString(text[i : i+n])
			i += n
			continue
		}
		b.WriteString(`\$`)
		i++
	}
	return b.String()
}

// mathSpan returns the length of the math expression starting at the dollar
// sign s[0], or 0 when that sign is a bare dollar.
func mathSpan(s string) int {
	if strings.HasPrefix(s, "$$") {
		if end := strings.Index(s[2:], "$$"); end >= 0 {
			return 2 + end + 2
		}
		return 0
	}
	end := strings.IndexByte(s[1:], '$')
	if end <= 0 {
		return 0
	}
	body := s[1 : 1+end]
	if strings.ContainsRune(body, '\n') {
		return 0
	}
	first, _ := utf8.DecodeRuneInString(body)
	last, _ := utf8.DecodeLastRuneInString(body)
	if unicode.IsSpace(first) || unicode.IsSpace(last) {
		return 0
	}
	return 1 + end + 1
}
