package command

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"eventbot/internal/transport"
)

// ErrEndOfInput is returned by Next when the input is exhausted.
var ErrEndOfInput = errors.New("command: end of input")

var numberRe = regexp.MustCompile(`^-?\d+$`)

// Tokenizer walks a command line token by token. It keeps one checkpoint:
// Mark remembers the current position and Revert jumps back to it, so clause
// parsers can probe a token and hand it back.
type Tokenizer struct {
	input  string
	prefix string

	pos   int
	count int

	markPos   int
	markCount int
}

func NewTokenizer(input, prefix string) *Tokenizer {
	return &Tokenizer{input: input, prefix: prefix}
}

// HasNext reports whether another token remains.
func (t *Tokenizer) HasNext() bool {
	return t.skipSpace() < len(t.input)
}

// Mark sets the checkpoint to the current position, replacing any earlier one.
func (t *Tokenizer) Mark() {
	t.markPos, t.markCount = t.pos, t.count
}

// Revert rewinds to the checkpoint. Without a prior Mark it rewinds to the
// start of the input.
func (t *Tokenizer) Revert() {
	t.pos, t.count = t.markPos, t.markCount
}

// Next consumes and classifies one token.
func (t *Tokenizer) Next() (Token, error) {
	start := t.skipSpace()
	if start >= len(t.input) {
		return Token{}, ErrEndOfInput
	}
	t.pos = start

	if t.input[t.pos] == '"' {
		return t.quoted()
	}

	end := t.pos
	for end < len(t.input) {
		r, size := utf8.DecodeRuneInString(t.input[end:])
		if unicode.IsSpace(r) {
			break
		}
		end += size
	}
	raw := t.input[t.pos:end]
	t.pos = end
	first := t.count == 0
	t.count++
	return t.classify(raw, first), nil
}

// Remaining consumes everything left, surrounding whitespace trimmed, as one
// Word token. An empty remainder yields ErrEndOfInput.
func (t *Tokenizer) Remaining() (Token, error) {
	start := t.skipSpace()
	if start >= len(t.input) {
		return Token{}, ErrEndOfInput
	}
	rest := strings.TrimRightFunc(t.input[start:], unicode.IsSpace)
	t.pos = len(t.input)
	t.count++
	return Token{Kind: Word, Raw: rest, Value: rest}, nil
}

func (t *Tokenizer) quoted() (Token, error) {
	end := t.pos + 1
	for end < len(t.input) && t.input[end] != '"' {
		end++
	}
	if end >= len(t.input) {
		// Unterminated quote swallows the rest of the line.
		raw := t.input[t.pos:]
		t.pos = len(t.input)
		t.count++
		return Token{Kind: Quoted, Raw: raw, Value: raw[1:]}, nil
	}
	raw := t.input[t.pos : end+1]
	t.pos = end + 1
	t.count++
	return Token{Kind: Quoted, Raw: raw, Value: raw[1 : len(raw)-1]}, nil
}

func (t *Tokenizer) classify(raw string, first bool) Token {
	if first && t.prefix != "" && len(raw) > len(t.prefix) && strings.HasPrefix(raw, t.prefix) {
		return Token{Kind: Command, Raw: raw, Value: strings.ToLower(raw[len(t.prefix):])}
	}
	if id, ok := transport.ParseUserMention(raw); ok {
		return Token{Kind: UserMention, Raw: raw, Value: raw, Entity: id}
	}
	if id, ok := transport.ParseChannelMention(raw); ok {
		return Token{Kind: ChannelMention, Raw: raw, Value: raw, Entity: id}
	}
	if id, ok := transport.ParseGroupMention(raw); ok {
		return Token{Kind: GroupMention, Raw: raw, Value: raw, Entity: id}
	}
	if numberRe.MatchString(raw) {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Token{Kind: Number, Raw: raw, Value: raw, Num: n}
		}
	}
	return Token{Kind: Word, Raw: raw, Value: raw}
}

// skipSpace walks rune by rune; input is UTF-8 and a byte-wise scan would
// mistake continuation bytes like 0xA0 for whitespace.
func (t *Tokenizer) skipSpace() int {
	i := t.pos
	for i < len(t.input) {
		r, size := utf8.DecodeRuneInString(t.input[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}
