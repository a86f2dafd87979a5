package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/devalaya/temple-darshan/internal/domain"
	"github.com/devalaya/temple-darshan/internal/metrics"
	"github.com/devalaya/temple-darshan/internal/repo/postgres"
	"github.com/devalaya/temple-darshan/pkg/config"
	"github.com/devalaya/temple-darshan/pkg/events"
	"github.com/devalaya/temple-darshan/pkg/logger"
)

const (
	SlotAvailable = "AVAILABLE"
	SlotFull      = "FULL"
)

// Availability is the booking-time view of a (temple, date, slot) key.
// Remaining can go to zero but never below.
type Availability struct {
	Status    string `json:"status"`
	Capacity  int    `json:"capacity"`
	Reserved  int    `json:"reserved"`
	Remaining int    `json:"remaining"`
}

// CapacityService gates new bookings against per-slot capacity.
// CheckAvailability is advisory; BookPass re-validates inside the ledger's
// serialized reservation, so two racing bookings can never both fit into
// the last seat.
type CapacityService interface {
	CheckAvailability(ctx context.Context, templeID int64, date, slot string, visitors int) (*Availability, error)
	BookPass(ctx context.Context, req *domain.PassRequest) (*domain.Pass, *Availability, error)
}

type capacityService struct {
	passes  postgres.PassRepository
	temples postgres.TempleRepository
	bus     events.Publisher
	cfg     *config.Config
}

func NewCapacityService(
	passes postgres.PassRepository,
	temples postgres.TempleRepository,
	bus events.Publisher,
	cfg *config.Config,
) CapacityService {
	return &capacityService{
		passes:  passes,
		temples: temples,
		bus:     bus,
		cfg:     cfg,
	}
}

func (s *capacityService) CheckAvailability(ctx context.Context, templeID int64, date, slot string, visitors int) (*Availability, error) {
	temple, day, err := s.validateSlotRequest(ctx, templeID, date, slot, visitors)
	if err != nil {
		return nil, err
	}

	reserved, err := s.passes.SumVisitors(ctx, templeID, day, slot,
		[]domain.PassStatus{domain.PassConfirmed, domain.PassEntered})
	if err != nil {
		return nil, err
	}

	capacity := temple.SlotCapacity(s.cfg.Admission.DefaultSlotCapacity)
	avail := &Availability{
		Capacity:  capacity,
		Reserved:  reserved,
		Remaining: max(capacity-reserved, 0),
	}
	if reserved+visitors > capacity {
		avail.Status = SlotFull
	} else {
		avail.Status = SlotAvailable
	}
	return avail, nil
}

func (s *capacityService) BookPass(ctx context.Context, req *domain.PassRequest) (*domain.Pass, *Availability, error) {
	temple, day, err := s.validateSlotRequest(ctx, req.TempleID, req.Date, req.Slot, req.Visitors)
	if err != nil {
		return nil, nil, err
	}
	if req.VisitorEmail == "" {
		return nil, nil, domain.NewError(domain.CodeInvalidInput, "visitor_email is required")
	}

	capacity := temple.SlotCapacity(s.cfg.Admission.DefaultSlotCapacity)

	pass, remaining, err := s.passes.CreateConfirmed(ctx, req, day, uuid.NewString(), capacity)
	if err != nil {
		if domain.HasCode(err, domain.CodeCapacityExceeded) {
			metrics.IncCapacityRejection()
		}
		return nil, nil, err
	}

	event := events.PassBookedEvent{
		TempleID:  pass.TempleID,
		PassID:    pass.PassID,
		Date:      pass.Date.Format("2006-01-02"),
		Slot:      pass.Slot,
		Visitors:  pass.Visitors,
		Remaining: remaining,
		CreatedAt: pass.CreatedAt,
	}
	if err := s.bus.Publish(ctx, events.PassBooked, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish pass booked event", "error", err, "pass_id", pass.PassID)
	}

	return pass, &Availability{
		Status:    SlotAvailable,
		Capacity:  capacity,
		Reserved:  capacity - remaining,
		Remaining: remaining,
	}, nil
}

func (s *capacityService) validateSlotRequest(ctx context.Context, templeID int64, date, slot string, visitors int) (*domain.Temple, time.Time, error) {
	if visitors < domain.MinVisitors || visitors > s.cfg.Admission.MaxVisitorsPerBooking {
		return nil, time.Time{}, domain.NewError(domain.CodeInvalidVisitorCount, "visitors out of allowed range")
	}

	day, err := time.ParseInLocation("2006-01-02", date, s.cfg.Location())
	if err != nil {
		return nil, time.Time{}, domain.NewError(domain.CodeInvalidInput, "date must be YYYY-MM-DD")
	}

	temple, err := s.temples.GetByID(ctx, templeID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if temple == nil {
		return nil, time.Time{}, domain.NewError(domain.CodeTempleNotFound, "temple not found")
	}
	if !temple.IsOpen() {
		return nil, time.Time{}, domain.NewError(domain.CodeTempleClosed, "temple is not open for booking")
	}
	if !temple.HasSlot(slot) {
		return nil, time.Time{}, domain.NewError(domain.CodeInvalidSlot, "slot is not offered by this temple")
	}

	return temple, day, nil
}
