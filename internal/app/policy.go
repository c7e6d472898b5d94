package app

import (
	"sync"

	"github.com/dkeye/Signage/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
	// Forget clears per-session state once the session is gone.
	Forget(sid core.SessionID)
}

// SimplePolicy drops frames for a slow member and kicks it once it has
// dropped more than MaxDrops frames. MaxDrops <= 0 kicks on the first drop.
type SimplePolicy struct {
	MaxDrops int

	mu    sync.Mutex
	drops map[core.SessionID]int
}

func (p *SimplePolicy) OnBackPressure(_ core.RoomService, member core.MemberSession) BackpressureAction {
	if p.MaxDrops <= 0 {
		return KickMember
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drops == nil {
		p.drops = make(map[core.SessionID]int)
	}
	p.drops[member.ID()]++
	if p.drops[member.ID()] > p.MaxDrops {
		delete(p.drops, member.ID())
		return KickMember
	}
	return DropFrame
}

func (p *SimplePolicy) Forget(sid core.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.drops, sid)
}
