package app

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a subscriber whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, who core.Identity) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, core.Identity) BackpressureAction {
	return KickMember
}

// DropPolicy loses the frame and keeps the subscriber.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomID, core.Identity) BackpressureAction {
	return DropFrame
}
