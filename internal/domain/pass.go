package domain

import "time"

// PassStatus is the lifecycle state of a pass. The only legal paths are
// CONFIRMED -> ENTERED -> EXITED and CONFIRMED -> CANCELLED; EXITED and
// CANCELLED are terminal.
type PassStatus string

const (
	PassConfirmed PassStatus = "CONFIRMED"
	PassEntered   PassStatus = "ENTERED"
	PassExited    PassStatus = "EXITED"
	PassCancelled PassStatus = "CANCELLED"
)

func ParsePassStatus(s string) (PassStatus, bool) {
	switch PassStatus(s) {
	case PassConfirmed, PassEntered, PassExited, PassCancelled:
		return PassStatus(s), true
	default:
		return "", false
	}
}

// CanTransitionTo reports whether the edge from s to next is part of the
// pass lifecycle. Every edge is traversed at most once, enforced by the
// ledger's conditional update.
func (s PassStatus) CanTransitionTo(next PassStatus) bool {
	switch s {
	case PassConfirmed:
		return next == PassEntered || next == PassCancelled
	case PassEntered:
		return next == PassExited
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s PassStatus) Terminal() bool {
	return s == PassExited || s == PassCancelled
}

// Pass is a confirmed booking entitlement, identified by the opaque PassID
// token encoded in the QR code scanned at temple gates.
type Pass struct {
	ID           int64      `json:"id"`
	PassID       string     `json:"pass_id"`
	TempleID     int64      `json:"temple_id"`
	VisitorName  string     `json:"visitor_name"`
	VisitorEmail string     `json:"visitor_email"`
	Date         time.Time  `json:"date"`
	Slot         string     `json:"slot"`
	Visitors     int        `json:"visitors"`
	Status       PassStatus `json:"status"`
	EnteredAt    *time.Time `json:"entered_at,omitempty"`
	ExitedAt     *time.Time `json:"exited_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Business rules
const (
	MinVisitors           = 1
	MaxVisitorsPerBooking = 10
	DefaultSlotCapacity   = 500
	DefaultWarningPct     = 85
	DefaultCriticalPct    = 95
)

// ValidOn reports whether the pass may be admitted at the given time.
// A pass is valid for its booked calendar day in loc, stretched by grace
// on both ends of the day.
func (p *Pass) ValidOn(now time.Time, grace time.Duration, loc *time.Location) bool {
	day := p.Date.In(loc)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)
	return !now.Before(dayStart.Add(-grace)) && now.Before(dayEnd.Add(grace))
}

type PassRequest struct {
	TempleID     int64  `json:"temple_id"`
	VisitorName  string `json:"visitor_name"`
	VisitorEmail string `json:"visitor_email"`
	Date         string `json:"date"`
	Slot         string `json:"slot"`
	Visitors     int    `json:"visitors"`
}

type PassDTO struct {
	PassID    string     `json:"pass_id"`
	TempleID  int64      `json:"temple_id"`
	Date      string     `json:"date"`
	Slot      string     `json:"slot"`
	Visitors  int        `json:"visitors"`
	Status    string     `json:"status"`
	EnteredAt *time.Time `json:"entered_at,omitempty"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (p *Pass) DTO() PassDTO {
	return PassDTO{
		PassID:    p.PassID,
		TempleID:  p.TempleID,
		Date:      p.Date.Format("2006-01-02"),
		Slot:      p.Slot,
		Visitors:  p.Visitors,
		Status:    string(p.Status),
		EnteredAt: p.EnteredAt,
		ExitedAt:  p.ExitedAt,
		CreatedAt: p.CreatedAt,
	}
}
