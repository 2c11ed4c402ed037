// Package command parses and dispatches chat commands. Parsing is a
// hand-rolled tokenizer with a single mark/revert checkpoint, which the
// clause parsers use to probe ahead and back out of unrecognized input.
package command

import (
	"github.com/google/uuid"
)

type TokenKind int

const (
	// Word is any bare token that matched nothing more specific.
	Word TokenKind = iota
	// Number is an integer token; Num carries the parsed value.
	Number
	// Quoted is a double-quoted string with the quotes stripped.
	Quoted
	// Command is the first token when it carries the command prefix;
	// Value holds the lowercased name without the prefix.
	Command
	// UserMention, ChannelMention and GroupMention carry the referenced
	// id in Entity.
	UserMention
	ChannelMention
	GroupMention
)

func (k TokenKind) String() string {
	switch k {
	case Word:
		return "word"
	case Number:
		return "number"
	case Quoted:
		return "quoted string"
	case Command:
		return "command"
	case UserMention:
		return "user mention"
	case ChannelMention:
		return "channel mention"
	case GroupMention:
		return "group mention"
	default:
		return "token"
	}
}

type Token struct {
	Kind TokenKind
	// Raw is the token exactly as typed, quotes and prefix included.
	Raw string
	// Value is the useful text: unquoted, unprefixed, otherwise Raw.
	Value string
	// Num is set for Number tokens.
	Num int64
	// Entity is set for mention tokens.
	Entity int64
}

// AsUUID parses the token's value as a uuid.
func (t Token) AsUUID() (uuid.UUID, bool) {
	id, err := uuid.Parse(t.Value)
	return id, err == nil
}
