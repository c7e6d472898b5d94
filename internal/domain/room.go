package domain

import (
	"errors"
	"strings"
)

type RoomKind string

const (
	RoomPlaylist RoomKind = "playlist"
	RoomUser     RoomKind = "user"
)

var ErrBadRoomKey = errors.New("malformed room key")

// RoomKey names a broadcast scope: "playlist:<id>" or "user:<id>".
type RoomKey string

func PlaylistRoom(id PlaylistID) RoomKey { return RoomKey(string(RoomPlaylist) + ":" + string(id)) }
func UserRoom(id UserID) RoomKey         { return RoomKey(string(RoomUser) + ":" + string(id)) }

// ParseRoomKey splits a key into its kind and id.
func ParseRoomKey(key string) (RoomKind, string, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return "", "", ErrBadRoomKey
	}
	switch RoomKind(kind) {
	case RoomPlaylist, RoomUser:
		return RoomKind(kind), id, nil
	default:
		return "", "", ErrBadRoomKey
	}
}

func (k RoomKey) Kind() RoomKind {
	kind, _, err := ParseRoomKey(string(k))
	if err != nil {
		return ""
	}
	return kind
}

func (k RoomKey) ID() string {
	_, id, err := ParseRoomKey(string(k))
	if err != nil {
		return ""
	}
	return id
}

// PlaylistID returns the playlist id of a playlist room, or "" for other kinds.
func (k RoomKey) PlaylistID() PlaylistID {
	if k.Kind() != RoomPlaylist {
		return ""
	}
	return PlaylistID(k.ID())
}
