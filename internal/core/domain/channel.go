package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelID is the broadcast scope key: one private conversation or one group.
type ChannelID string

type ChannelKind string

const (
	ChannelPrivate ChannelKind = "private"
	ChannelGroup   ChannelKind = "group"
)

// PrivateChannel derives the conversation key for an unordered pair of users.
func PrivateChannel(a, b int64) ChannelID {
	if a > b {
		a, b = b, a
	}
	return ChannelID(fmt.Sprintf("private_%d_%d", a, b))
}

func GroupChannel(groupID int64) ChannelID {
	return ChannelID(fmt.Sprintf("group_%d", groupID))
}

func (c ChannelID) String() string { return string(c) }

func (c ChannelID) Kind() ChannelKind {
	if strings.HasPrefix(string(c), "group_") {
		return ChannelGroup
	}
	return ChannelPrivate
}

// GroupID returns the group id of a group channel.
func (c ChannelID) GroupID() (int64, bool) {
	rest, ok := strings.CutPrefix(string(c), "group_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
