package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/validation"
)

// Envelope is the wire shape of every frame.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Validate checks an event's payload. *Unknown always passes.
func Validate(ev Event) error {
	if _, ok := ev.(*Unknown); ok {
		return nil
	}
	if err := validation.Struct(ev); err != nil {
		return core.E(core.KindValidation, "protocol.validate "+string(ev.EventType()), err)
	}
	return nil
}

// Encode validates ev and wraps it in an envelope.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, core.E(core.KindValidation, "protocol.encode", fmt.Errorf("nil event"))
	}
	if err := Validate(ev); err != nil {
		return nil, err
	}
	var data []byte
	if u, ok := ev.(*Unknown); ok {
		data = u.Raw
	} else {
		b, err := json.Marshal(ev)
		if err != nil {
			return nil, core.E(core.KindInternal, "protocol.encode", err)
		}
		data = b
	}
	return json.Marshal(Envelope{Type: ev.EventType(), Data: data})
}

func newEvent(t Type) Event {
	switch t {
	case TypePlaylistUpdated:
		return &PlaylistUpdated{}
	case TypeItemAdded:
		return &ItemAdded{}
	case TypeItemRemoved:
		return &ItemRemoved{}
	case TypeItemsReordered:
		return &ItemsReordered{}
	case TypeItemUpdated:
		return &ItemUpdated{}
	case TypeScreensAssigned:
		return &ScreensAssigned{}
	case TypeScreensUnassigned:
		return &ScreensUnassigned{}
	case TypeUserJoined:
		return &UserJoined{}
	case TypeUserLeft:
		return &UserLeft{}
	case TypeJoinPlaylist:
		return &JoinPlaylist{}
	case TypeLeavePlaylist:
		return &LeavePlaylist{}
	case TypeJoinUser:
		return &JoinUser{}
	case TypeLeaveUser:
		return &LeaveUser{}
	case TypeHeartbeat:
		return &Heartbeat{}
	case TypeError:
		return &ErrorNotice{}
	default:
		return nil
	}
}

// Decode parses a frame. Unknown types yield *Unknown and no error; a
// malformed envelope or payload yields a validation error.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, core.E(core.KindValidation, "protocol.decode", err)
	}
	if env.Type == "" {
		return nil, core.E(core.KindValidation, "protocol.decode", fmt.Errorf("missing type"))
	}
	ev := newEvent(env.Type)
	if ev == nil {
		return &Unknown{Type: env.Type, Raw: env.Data}, nil
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, core.E(core.KindValidation, "protocol.decode "+string(env.Type), err)
		}
	}
	return ev, nil
}

// Known reports whether t is part of the catalogue.
func Known(t Type) bool { return newEvent(t) != nil }
