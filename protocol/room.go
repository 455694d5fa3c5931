package protocol

import (
	"strings"

	"PMarket/tools/errs"
)

// Identity is the user bound to a connection by authenticate.
type Identity struct {
	ID          string `json:"identity"`
	DisplayName string `json:"displayName"`
}

func (i Identity) Empty() bool { return i.ID == "" }

// Room is a parsed `<namespace>:<subtype>:<entityId>` key.
type Room struct {
	Namespace string
	Subtype   string
	EntityID  string
}

func (r Room) Key() string { return r.Namespace + ":" + r.Subtype + ":" + r.EntityID }

// ParseRoom accepts exactly three non-empty colon separated segments.
func ParseRoom(key string) (Room, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return Room{}, errs.ErrInvalidRoom.WrapMsg("room key must have three segments", "room", key)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Room{}, errs.ErrInvalidRoom.WrapMsg("empty room key segment", "room", key)
		}
	}
	return Room{Namespace: parts[0], Subtype: parts[1], EntityID: parts[2]}, nil
}

func ValidRoom(key string) bool {
	_, err := ParseRoom(key)
	return err == nil
}

const maxEventName = 128

// ValidEventName reports whether name can be used as an envelope tag.
func ValidEventName(name string) bool {
	if name == "" || len(name) > maxEventName {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n")
}
