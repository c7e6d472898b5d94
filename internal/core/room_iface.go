package core

import (
	"github.com/dkeye/Signage/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a relay room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Key() domain.RoomKey
	MemberCount() int
	MembersSnapshot() []domain.Presence
	Members() []SessionID
	HasMember(sid SessionID) bool
	UserSessions(u domain.UserID) int

	// AddMember reports false when sid was already a member.
	AddMember(sid SessionID, ms MemberSession) bool
	// RemoveMember reports false when sid was not a member.
	RemoveMember(sid SessionID) bool
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Key         domain.RoomKey `json:"key"`
	MemberCount int            `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(key domain.RoomKey) RoomService
	Get(key domain.RoomKey) (RoomService, bool)
	List() []RoomInfo
	StopRoom(key domain.RoomKey)
}
