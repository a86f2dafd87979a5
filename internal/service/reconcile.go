package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/devalaya/temple-darshan/internal/domain"
	"github.com/devalaya/temple-darshan/internal/livecount"
	"github.com/devalaya/temple-darshan/internal/metrics"
	"github.com/devalaya/temple-darshan/internal/repo/postgres"
	"github.com/devalaya/temple-darshan/pkg/config"
	"github.com/devalaya/temple-darshan/pkg/events"
	"github.com/devalaya/temple-darshan/pkg/logger"
)

// ReconcileService heals drift between the ephemeral counter tier and the
// durable ledger. The ledger is always authoritative: the counter is
// overwritten, never merged.
type ReconcileService interface {
	Reconciler
	ReconcileAll(ctx context.Context, trigger string) error
	CloseoutTemple(ctx context.Context, templeID int64) error
	RunRollover(ctx context.Context)
}

type reconcileService struct {
	passes  postgres.PassRepository
	temples postgres.TempleRepository
	counter livecount.Store
	bus     events.Publisher
	cfg     *config.Config

	mu           sync.Mutex
	lastRollover map[int64]string // temple -> day already rolled over
}

func NewReconcileService(
	passes postgres.PassRepository,
	temples postgres.TempleRepository,
	counter livecount.Store,
	bus events.Publisher,
	cfg *config.Config,
) ReconcileService {
	return &reconcileService{
		passes:       passes,
		temples:      temples,
		counter:      counter,
		bus:          bus,
		cfg:          cfg,
		lastRollover: make(map[int64]string),
	}
}

func (s *reconcileService) ReconcileTemple(ctx context.Context, templeID int64, trigger string) (int64, error) {
	previous, err := s.counter.Get(ctx, templeID)
	if err != nil {
		// The counter may be gone entirely (store restart); that is
		// exactly what reconciliation exists to recover from.
		logger.WarnContext(ctx, "counter unreadable before reconcile", "temple_id", templeID, "error", err)
		previous = 0
	}

	authoritative, err := s.passes.SumEntered(ctx, templeID)
	if err != nil {
		return 0, err
	}

	if err := s.counter.Set(ctx, templeID, authoritative); err != nil {
		return 0, err
	}

	metrics.IncReconcileRun(trigger)
	metrics.SetLiveOccupancy(strconv.FormatInt(templeID, 10), authoritative)
	logger.InfoContext(ctx, "reconciled live counter",
		"temple_id", templeID, "previous", previous, "authoritative", authoritative, "trigger", trigger)

	event := events.CounterReconciledEvent{
		TempleID:      templeID,
		Previous:      previous,
		Authoritative: authoritative,
		Trigger:       trigger,
		ReconciledAt:  time.Now(),
	}
	if err := s.bus.Publish(ctx, events.CounterReconciled, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish counter reconciled event", "error", err, "temple_id", templeID)
	}

	return authoritative, nil
}

func (s *reconcileService) ReconcileAll(ctx context.Context, trigger string) error {
	temples, err := s.temples.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range temples {
		if _, err := s.ReconcileTemple(ctx, t.ID, trigger); err != nil {
			logger.ErrorContext(ctx, "reconcile failed", "temple_id", t.ID, "error", err)
		}
	}
	return nil
}

// CloseoutTemple is the closing-time rollover: every still-ENTERED pass is
// force-exited and the counter zeroed, so the next day starts clean.
func (s *reconcileService) CloseoutTemple(ctx context.Context, templeID int64) error {
	temple, err := s.temples.GetByID(ctx, templeID)
	if err != nil {
		return err
	}
	if temple == nil {
		return domain.NewError(domain.CodeTempleNotFound, "temple not found")
	}

	flipped, err := s.passes.ForceExitEntered(ctx, templeID)
	if err != nil {
		return err
	}
	if err := s.counter.Set(ctx, templeID, 0); err != nil {
		return err
	}

	metrics.IncReconcileRun("closing_rollover")
	metrics.SetLiveOccupancy(strconv.FormatInt(templeID, 10), 0)
	logger.InfoContext(ctx, "closing rollover completed",
		"temple_id", templeID, "force_exited", flipped)

	event := events.CounterReconciledEvent{
		TempleID:      templeID,
		Authoritative: 0,
		Trigger:       "closing_rollover",
		ReconciledAt:  time.Now(),
	}
	if err := s.bus.Publish(ctx, events.CounterReconciled, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish counter reconciled event", "error", err, "temple_id", templeID)
	}
	return nil
}

// RunRollover periodically closes out temples past their closing hour,
// once per temple per day. Blocks until ctx is cancelled.
func (s *reconcileService) RunRollover(ctx context.Context) {
	interval := s.cfg.Reconcile.RolloverInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rolloverDue(ctx)
		}
	}
}

func (s *reconcileService) rolloverDue(ctx context.Context) {
	temples, err := s.temples.List(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "rollover temple listing failed", "error", err)
		return
	}

	loc := s.cfg.Location()
	now := time.Now()
	today := now.In(loc).Format("2006-01-02")

	for _, t := range temples {
		if !t.PastClosing(now, loc) {
			continue
		}

		s.mu.Lock()
		done := s.lastRollover[t.ID] == today
		if !done {
			s.lastRollover[t.ID] = today
		}
		s.mu.Unlock()
		if done {
			continue
		}

		if err := s.CloseoutTemple(ctx, t.ID); err != nil {
			logger.ErrorContext(ctx, "closing rollover failed", "temple_id", t.ID, "error", err)
			s.mu.Lock()
			delete(s.lastRollover, t.ID)
			s.mu.Unlock()
		}
	}
}
