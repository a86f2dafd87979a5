package domain

import (
	"regexp"
	"time"
)

type TempleStatus string

const (
	TempleOpen        TempleStatus = "OPEN"
	TempleClosed      TempleStatus = "CLOSED"
	TempleMaintenance TempleStatus = "MAINTENANCE"
)

func ParseTempleStatus(s string) (TempleStatus, bool) {
	switch TempleStatus(s) {
	case TempleOpen, TempleClosed, TempleMaintenance:
		return TempleStatus(s), true
	default:
		return "", false
	}
}

// Temple is read-only to this service; the admin collaborator owns it.
type Temple struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	City              string       `json:"city"`
	CapacityTotal     int          `json:"capacity_total"`
	CapacityPerSlot   int          `json:"capacity_per_slot"`
	ThresholdWarning  int          `json:"threshold_warning"`
	ThresholdCritical int          `json:"threshold_critical"`
	Status            TempleStatus `json:"status"`
	Slots             []string     `json:"slots"`
	ClosesAt          string       `json:"closes_at"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (t *Temple) IsOpen() bool {
	return t.Status == TempleOpen
}

// SlotCapacity returns the per-slot capacity, falling back to the given
// default when the admin has not configured one.
func (t *Temple) SlotCapacity(fallback int) int {
	if t.CapacityPerSlot > 0 {
		return t.CapacityPerSlot
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultSlotCapacity
}

func (t *Temple) WarningPct() int {
	if t.ThresholdWarning > 0 {
		return t.ThresholdWarning
	}
	return DefaultWarningPct
}

func (t *Temple) CriticalPct() int {
	if t.ThresholdCritical > 0 {
		return t.ThresholdCritical
	}
	return DefaultCriticalPct
}

// HasSlot reports whether slot is one of the temple's enumerated ranges.
// Temples without configured slots accept any well-formed "HH:MM-HH:MM"
// range.
func (t *Temple) HasSlot(slot string) bool {
	if len(t.Slots) == 0 {
		return ValidSlotRange(slot)
	}
	for _, s := range t.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

var slotRangeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]-([01][0-9]|2[0-3]):[0-5][0-9]$`)

func ValidSlotRange(slot string) bool {
	return slotRangeRe.MatchString(slot)
}

// PastClosing reports whether now is past the temple's closing hour on the
// current day. Temples without a configured closing hour never roll over.
func (t *Temple) PastClosing(now time.Time, loc *time.Location) bool {
	if t.ClosesAt == "" {
		return false
	}
	closes, err := time.Parse("15:04", t.ClosesAt)
	if err != nil {
		return false
	}
	local := now.In(loc)
	closing := time.Date(local.Year(), local.Month(), local.Day(), closes.Hour(), closes.Minute(), 0, 0, loc)
	return local.After(closing)
}
