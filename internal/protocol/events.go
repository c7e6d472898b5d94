// Package protocol defines the closed catalogue of real-time events exchanged
// between clients and the relay, and the envelope codec that carries them.
//
// Every frame is an envelope:
//
//	{"type": "playlist:item:added", "data": {...}}
//
// Unrecognized types decode to *Unknown so newer servers can add events
// without breaking older clients.
package protocol

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/dkeye/Signage/internal/domain"
)

type Type string

const (
	TypePlaylistUpdated   Type = "playlist:updated"
	TypeItemAdded         Type = "playlist:item:added"
	TypeItemRemoved       Type = "playlist:item:removed"
	TypeItemsReordered    Type = "playlist:item:reordered"
	TypeItemUpdated       Type = "playlist:item:updated"
	TypeScreensAssigned   Type = "playlist:assigned"
	TypeScreensUnassigned Type = "playlist:unassigned"
	TypeUserJoined        Type = "user:joined:playlist"
	TypeUserLeft          Type = "user:left:playlist"
	TypeJoinPlaylist      Type = "join:playlist"
	TypeLeavePlaylist     Type = "leave:playlist"
	TypeJoinUser          Type = "join:user"
	TypeLeaveUser         Type = "leave:user"
	TypeHeartbeat         Type = "heartbeat"
	TypeError             Type = "error"
)

// Event is implemented by every catalogued event and by *Unknown.
type Event interface {
	EventType() Type
}

// PlaylistEvent is an event that changes one playlist.
type PlaylistEvent interface {
	Event
	Playlist() domain.PlaylistID
	Actor() domain.UserID
	At() time.Time
	// Category is the kind of playlist state the event touches.
	Category() domain.ChangeType
	// Stamp overwrites the actor; the relay uses it to attribute frames
	// to the authenticated sender.
	Stamp(actor domain.UserID)
}

type PlaylistUpdated struct {
	PlaylistID domain.PlaylistID    `json:"playlistId" validate:"required"`
	Patch      domain.PlaylistPatch `json:"playlist"`
	UpdatedBy  domain.UserID        `json:"updatedBy" validate:"required"`
	Timestamp  time.Time            `json:"timestamp" validate:"required"`
	ChangeType domain.ChangeType    `json:"changeType" validate:"required,oneof=metadata items assignment"`
}

type ItemAdded struct {
	PlaylistID domain.PlaylistID   `json:"playlistId" validate:"required"`
	Item       domain.PlaylistItem `json:"item"`
	Position   *int                `json:"position,omitempty" validate:"omitempty,min=0"`
	UpdatedBy  domain.UserID       `json:"updatedBy" validate:"required"`
	Timestamp  time.Time           `json:"timestamp" validate:"required"`
}

type ItemRemoved struct {
	PlaylistID domain.PlaylistID `json:"playlistId" validate:"required"`
	ItemID     domain.ItemID     `json:"itemId" validate:"required"`
	RemovedBy  domain.UserID     `json:"removedBy" validate:"required"`
	Timestamp  time.Time         `json:"timestamp" validate:"required"`
}

type ItemsReordered struct {
	PlaylistID domain.PlaylistID  `json:"playlistId" validate:"required"`
	Items      []domain.ItemOrder `json:"items" validate:"required,min=1,dive"`
	UpdatedBy  domain.UserID      `json:"updatedBy" validate:"required"`
	Timestamp  time.Time          `json:"timestamp" validate:"required"`
}

type ItemUpdated struct {
	PlaylistID domain.PlaylistID   `json:"playlistId" validate:"required"`
	Item       domain.PlaylistItem `json:"item"`
	UpdatedBy  domain.UserID       `json:"updatedBy" validate:"required"`
	Timestamp  time.Time           `json:"timestamp" validate:"required"`
}

// ScreenAssignment is the payload of both assignment events.
type ScreenAssignment struct {
	PlaylistID domain.PlaylistID `json:"playlistId" validate:"required"`
	ScreenIDs  []domain.ScreenID `json:"screenIds" validate:"required,min=1,dive,required"`
	ActorID    domain.UserID     `json:"actorId" validate:"required"`
	Timestamp  time.Time         `json:"timestamp" validate:"required"`
}

type ScreensAssigned struct{ ScreenAssignment }
type ScreensUnassigned struct{ ScreenAssignment }

// PresenceChange is the payload of both presence events.
type PresenceChange struct {
	UserID     domain.UserID     `json:"userId" validate:"required"`
	UserEmail  string            `json:"userEmail,omitempty"`
	PlaylistID domain.PlaylistID `json:"playlistId" validate:"required"`
	Timestamp  time.Time         `json:"timestamp" validate:"required"`
}

type UserJoined struct{ PresenceChange }
type UserLeft struct{ PresenceChange }

type JoinPlaylist struct {
	PlaylistID domain.PlaylistID `json:"playlistId" validate:"required"`
}

type LeavePlaylist struct {
	PlaylistID domain.PlaylistID `json:"playlistId" validate:"required"`
}

type JoinUser struct {
	UserID domain.UserID `json:"userId" validate:"required"`
}

type LeaveUser struct {
	UserID domain.UserID `json:"userId" validate:"required"`
}

type Heartbeat struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// ErrorNotice is sent by the relay when it rejects a frame.
type ErrorNotice struct {
	Code    string `json:"code" validate:"required"`
	Message string `json:"message,omitempty"`
}

// Unknown carries a frame of an unrecognized type.
type Unknown struct {
	Type Type
	Raw  json.RawMessage
}

func (*PlaylistUpdated) EventType() Type   { return TypePlaylistUpdated }
func (*ItemAdded) EventType() Type         { return TypeItemAdded }
func (*ItemRemoved) EventType() Type       { return TypeItemRemoved }
func (*ItemsReordered) EventType() Type    { return TypeItemsReordered }
func (*ItemUpdated) EventType() Type       { return TypeItemUpdated }
func (*ScreensAssigned) EventType() Type   { return TypeScreensAssigned }
func (*ScreensUnassigned) EventType() Type { return TypeScreensUnassigned }
func (*UserJoined) EventType() Type        { return TypeUserJoined }
func (*UserLeft) EventType() Type          { return TypeUserLeft }
func (*JoinPlaylist) EventType() Type      { return TypeJoinPlaylist }
func (*LeavePlaylist) EventType() Type     { return TypeLeavePlaylist }
func (*JoinUser) EventType() Type          { return TypeJoinUser }
func (*LeaveUser) EventType() Type         { return TypeLeaveUser }
func (*Heartbeat) EventType() Type         { return TypeHeartbeat }
func (*ErrorNotice) EventType() Type       { return TypeError }
func (u *Unknown) EventType() Type         { return u.Type }

func (e *PlaylistUpdated) Playlist() domain.PlaylistID { return e.PlaylistID }
func (e *PlaylistUpdated) Actor() domain.UserID        { return e.UpdatedBy }
func (e *PlaylistUpdated) At() time.Time               { return e.Timestamp }
func (e *PlaylistUpdated) Category() domain.ChangeType { return e.ChangeType }
func (e *PlaylistUpdated) Stamp(a domain.UserID)       { e.UpdatedBy = a }

func (e *ItemAdded) Playlist() domain.PlaylistID { return e.PlaylistID }
func (e *ItemAdded) Actor() domain.UserID        { return e.UpdatedBy }
func (e *ItemAdded) At() time.Time               { return e.Timestamp }
func (e *ItemAdded) Category() domain.ChangeType { return domain.ChangeItems }
func (e *ItemAdded) Stamp(a domain.UserID)       { e.UpdatedBy = a }

func (e *ItemRemoved) Playlist() domain.PlaylistID { return e.PlaylistID }
func (e *ItemRemoved) Actor() domain.UserID        { return e.RemovedBy }
func (e *ItemRemoved) At() time.Time               { return e.Timestamp }
func (e *ItemRemoved) Category() domain.ChangeType { return domain.ChangeItems }
func (e *ItemRemoved) Stamp(a domain.UserID)       { e.RemovedBy = a }

func (e *ItemsReordered) Playlist() domain.PlaylistID { return e.PlaylistID }
func (e *ItemsReordered) Actor() domain.UserID        { return e.UpdatedBy }
func (e *ItemsReordered) At() time.Time               { return e.Timestamp }
func (e *ItemsReordered) Category() domain.ChangeType { return domain.ChangeItems }
func (e *ItemsReordered) Stamp(a domain.UserID)       { e.UpdatedBy = a }

func (e *ItemUpdated) Playlist() domain.PlaylistID { return e.PlaylistID }
func (e *ItemUpdated) Actor() domain.UserID        { return e.UpdatedBy }
func (e *ItemUpdated) At() time.Time               { return e.Timestamp }
func (e *ItemUpdated) Category() domain.ChangeType { return domain.ChangeItems }
func (e *ItemUpdated) Stamp(a domain.UserID)       { e.UpdatedBy = a }

func (e *ScreenAssignment) Playlist() domain.PlaylistID { return e.PlaylistID }
func (e *ScreenAssignment) Actor() domain.UserID        { return e.ActorID }
func (e *ScreenAssignment) At() time.Time               { return e.Timestamp }
func (e *ScreenAssignment) Category() domain.ChangeType { return domain.ChangeAssignment }
func (e *ScreenAssignment) Stamp(a domain.UserID)       { e.ActorID = a }

var (
	_ PlaylistEvent = (*PlaylistUpdated)(nil)
	_ PlaylistEvent = (*ItemAdded)(nil)
	_ PlaylistEvent = (*ItemRemoved)(nil)
	_ PlaylistEvent = (*ItemsReordered)(nil)
	_ PlaylistEvent = (*ItemUpdated)(nil)
	_ PlaylistEvent = (*ScreensAssigned)(nil)
	_ PlaylistEvent = (*ScreensUnassigned)(nil)
)
