// Package textutil holds small text helpers shared by command handlers and
// adapters.
package textutil

import "unicode/utf8"

// MessageLimit is the output-length ceiling for a single chat message.
const MessageLimit = 2000

// Split breaks s into chunks of at most limit runes. It prefers to split just
// after the last newline before the ceiling, then after the last space, and
// hard-cuts when the window contains no whitespace. The separator stays with
// the following chunk, so concatenating the chunks reproduces s exactly.
func Split(s string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	var out []string
	for len(rs) > limit {
		cut := -1
		for i := limit; i > 0; i-- {
			if rs[i] == '\n' {
				cut = i
				break
			}
		}
		if cut <= 0 {
			for i := limit; i > 0; i-- {
				if rs[i] == ' ' {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = limit
		}
		out = append(out, string(rs[:cut]))
		rs = rs[cut:]
	}
	if len(rs) > 0 {
		out = append(out, string(rs))
	}
	return out
}

// TruncRunes returns s truncated to at most n runes, with an ellipsis
// appended when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}
