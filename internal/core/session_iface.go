package core

import "github.com/dkeye/Signage/internal/domain"

type SessionID string

// MemberSession binds an authenticated member and its transport endpoint.
// This is what a relay room stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
}
