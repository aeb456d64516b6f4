package domain

import "time"

// RoomWallet is the stored virtual-currency state of a room. Holdings is the
// room's total virtual currency; LockedMargin is the portion committed to open
// positions; Available = Holdings - LockedMargin is maintained by the store.
type RoomWallet struct {
	RoomID       string
	Holdings     float64
	LockedMargin float64
	Available    float64
	UpdatedAt    time.Time
}

// RoomBalance is the derived balance view: stored wallet figures combined with
// the live unrealized P&L of all open positions. Never persisted.
type RoomBalance struct {
	RoomID        string
	Holdings      float64
	LockedMargin  float64
	Available     float64
	UnrealizedPnl float64
	Valuation     float64 // Holdings + UnrealizedPnl
}
