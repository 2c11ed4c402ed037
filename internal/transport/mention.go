package transport

import (
	"regexp"
	"strconv"
)

// Canonical entity-mention syntax used in command text, independent of how a
// concrete adapter renders mentions on the wire:
//
//	<@123>   user
//	<#123>   channel
//	<@&123>  group
var (
	userMentionRe    = regexp.MustCompile(`^<@(\d+)>$`)
	channelMentionRe = regexp.MustCompile(`^<#(\d+)>$`)
	groupMentionRe   = regexp.MustCompile(`^<@&(\d+)>$`)
)

func UserMention(id int64) string    { return "<@" + strconv.FormatInt(id, 10) + ">" }
func ChannelMention(id int64) string { return "<#" + strconv.FormatInt(id, 10) + ">" }

// ParseUserMention returns the entity id of a user mention token.
func ParseUserMention(s string) (int64, bool) { return parseMention(userMentionRe, s) }

// ParseChannelMention returns the entity id of a channel mention token.
func ParseChannelMention(s string) (int64, bool) { return parseMention(channelMentionRe, s) }

// ParseGroupMention returns the entity id of a group mention token.
func ParseGroupMention(s string) (int64, bool) { return parseMention(groupMentionRe, s) }

func parseMention(re *regexp.Regexp, s string) (int64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
