package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPassStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to PassStatus
		ok       bool
	}{
		{PassConfirmed, PassEntered, true},
		{PassConfirmed, PassCancelled, true},
		{PassConfirmed, PassExited, false},
		{PassEntered, PassExited, true},
		{PassEntered, PassCancelled, false},
		{PassEntered, PassConfirmed, false},
		{PassExited, PassEntered, false},
		{PassExited, PassConfirmed, false},
		{PassCancelled, PassEntered, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPassStatusTerminal(t *testing.T) {
	assert.False(t, PassConfirmed.Terminal())
	assert.False(t, PassEntered.Terminal())
	assert.True(t, PassExited.Terminal())
	assert.True(t, PassCancelled.Terminal())
}

func TestParsePassStatus(t *testing.T) {
	st, ok := ParsePassStatus("ENTERED")
	assert.True(t, ok)
	assert.Equal(t, PassEntered, st)

	_, ok = ParsePassStatus("entered")
	assert.False(t, ok)
	_, ok = ParsePassStatus("")
	assert.False(t, ok)
}

func TestPassValidOn(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, loc)
	pass := &Pass{Date: day}
	grace := time.Hour

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"midday of booked day", day.Add(12 * time.Hour), true},
		{"just inside leading grace", day.Add(-30 * time.Minute), true},
		{"before leading grace", day.Add(-2 * time.Hour), false},
		{"just inside trailing grace", day.Add(24*time.Hour + 30*time.Minute), true},
		{"after trailing grace", day.Add(26 * time.Hour), false},
		{"day before", day.AddDate(0, 0, -1).Add(12 * time.Hour), false},
		{"day after", day.AddDate(0, 0, 1).Add(12 * time.Hour), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pass.ValidOn(tc.now, grace, loc))
		})
	}
}

func TestPassDTO(t *testing.T) {
	entered := time.Date(2026, 8, 31, 10, 15, 0, 0, time.UTC)
	p := &Pass{
		PassID:    "p-1",
		TempleID:  3,
		Date:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		Slot:      "10:00-12:00",
		Visitors:  4,
		Status:    PassEntered,
		EnteredAt: &entered,
	}
	dto := p.DTO()
	assert.Equal(t, "2026-08-31", dto.Date)
	assert.Equal(t, "ENTERED", dto.Status)
	assert.Equal(t, &entered, dto.EnteredAt)
	assert.Nil(t, dto.ExitedAt)
}
