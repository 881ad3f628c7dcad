package models

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	dmPrefix    = "dm:"
	groupPrefix = "group:"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{2,32}$`)

// ValidUsername reports whether name can be used as an account key.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// DMPair returns the canonical (sorted) pair for a DM edge.
func DMPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// DMChannel returns the channel key for the direct messages between a and b.
// The self pair is the user's private notepad.
func DMChannel(a, b string) string {
	u1, u2 := DMPair(a, b)
	return dmPrefix + u1 + ":" + u2
}

// GroupChannel returns the channel key for a group.
func GroupChannel(id int64) string {
	return groupPrefix + strconv.FormatInt(id, 10)
}

// ChannelKind classifies a channel key.
type ChannelKind int

const (
	ChannelPublic ChannelKind = iota
	ChannelDM
	ChannelGroup
	ChannelInvalid
)

// ParsedChannel is a decoded channel key.
type ParsedChannel struct {
	Kind    ChannelKind
	Members [2]string
	GroupID int64
}

// ParseChannel decodes a channel key.
func ParseChannel(channel string) ParsedChannel {
	switch {
	case channel == "":
		return ParsedChannel{Kind: ChannelInvalid}
	case strings.HasPrefix(channel, dmPrefix):
		parts := strings.Split(strings.TrimPrefix(channel, dmPrefix), ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] > parts[1] {
			return ParsedChannel{Kind: ChannelInvalid}
		}
		return ParsedChannel{Kind: ChannelDM, Members: [2]string{parts[0], parts[1]}}
	case strings.HasPrefix(channel, groupPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(channel, groupPrefix), 10, 64)
		if err != nil || id <= 0 {
			return ParsedChannel{Kind: ChannelInvalid}
		}
		return ParsedChannel{Kind: ChannelGroup, GroupID: id}
	default:
		return ParsedChannel{Kind: ChannelPublic}
	}
}

// Involves reports whether username is one side of a DM channel.
func (p ParsedChannel) Involves(username string) bool {
	return p.Kind == ChannelDM && (p.Members[0] == username || p.Members[1] == username)
}
