package attendance

import (
	"fmt"
	"strconv"
	"strings"

	"conference-balancer/pkg/bbb"
)

// UserPrefix marks a backend user id that belongs to an internal user,
// e.g. "1_42" for user 42.
const UserPrefix = "1"

const prefixSeparator = "_"

type Kind int

const (
	KindUnrecognized Kind = iota
	KindUser
	KindGuest
)

// Identity is the parsed form of a backend attendee identifier. Exactly the
// fields of its Kind are set.
type Identity struct {
	Kind Kind

	// KindUser. UserRef is the raw id after the prefix; UserID is set once
	// it parsed as a number.
	UserRef string
	UserID  int64

	// KindGuest
	Name      string
	SessionID string

	// KindUnrecognized
	Prefix string
}

// ParseIdentity splits "<prefix>_<value>" identifiers. Identifiers without a
// separator belong to guests and are their session id.
func ParseIdentity(a bbb.Attendee) Identity {
	raw := strings.TrimSpace(a.UserID)
	prefix, value, found := strings.Cut(raw, prefixSeparator)
	if !found {
		if raw == "" {
			return Identity{Kind: KindUnrecognized}
		}
		return Identity{Kind: KindGuest, Name: a.FullName, SessionID: raw}
	}

	if prefix != UserPrefix {
		return Identity{Kind: KindUnrecognized, Prefix: prefix}
	}

	id := Identity{Kind: KindUser, UserRef: value}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
		id.UserID = n
	}
	return id
}

// key identifies a session owner within one meeting.
func (i Identity) key() string {
	switch i.Kind {
	case KindUser:
		return fmt.Sprintf("user:%d", i.UserID)
	case KindGuest:
		return "guest:" + i.SessionID
	}
	return ""
}
