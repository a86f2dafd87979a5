package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/devalaya/temple-darshan/internal/domain"
	"github.com/devalaya/temple-darshan/internal/livecount"
	"github.com/devalaya/temple-darshan/internal/metrics"
	"github.com/devalaya/temple-darshan/internal/repo/postgres"
	"github.com/devalaya/temple-darshan/internal/status"
	"github.com/devalaya/temple-darshan/pkg/config"
	"github.com/devalaya/temple-darshan/pkg/events"
	"github.com/devalaya/temple-darshan/pkg/logger"
)

// GateResult is returned to the gate device after a successful scan.
type GateResult struct {
	Pass               domain.PassDTO `json:"pass"`
	TempleName         string         `json:"temple_name"`
	LiveCount          int64          `json:"live_count"`
	Capacity           int64          `json:"capacity"`
	CapacityPercentage float64        `json:"capacity_percentage"`
	TrafficStatus      status.Level   `json:"traffic_status"`
}

// TempleLiveStatus is the dashboard view of one temple.
type TempleLiveStatus struct {
	TempleID           int64        `json:"temple_id"`
	TempleName         string       `json:"temple_name"`
	City               string       `json:"city"`
	LiveCount          int64        `json:"live_count"`
	Capacity           int64        `json:"capacity"`
	AvailableSpace     int64        `json:"available_space"`
	CapacityPercentage float64      `json:"capacity_percentage"`
	TrafficStatus      status.Level `json:"traffic_status"`
	Status             string       `json:"status"`
	ThresholdWarning   int          `json:"threshold_warning"`
	ThresholdCritical  int          `json:"threshold_critical"`
}

// LiveSummary is the all-temples dashboard overview.
type LiveSummary struct {
	Temples []TempleLiveStatus `json:"temples"`
	Summary struct {
		TotalTemples      int     `json:"total_temples"`
		TotalVisitors     int64   `json:"total_visitors"`
		TotalCapacity     int64   `json:"total_capacity"`
		OverallPercentage float64 `json:"overall_percentage"`
	} `json:"summary"`
	LastUpdated time.Time `json:"last_updated"`
}

// DailyGateStats combines today's ledger aggregates with the live counter.
type DailyGateStats struct {
	Date      string              `json:"date"`
	LiveCount int64               `json:"live_count"`
	Stats     *postgres.GateStats `json:"stats"`
}

// Reconciler restores a temple's counter from the ledger; the admission
// controller invokes it when it detects drift.
type Reconciler interface {
	ReconcileTemple(ctx context.Context, templeID int64, trigger string) (int64, error)
}

// AdmissionService is the entry/exit state machine. All serialization lives
// in the ledger's compare-and-set on pass status; the counter only ever
// sees atomic adds.
type AdmissionService interface {
	RecordEntry(ctx context.Context, templeID int64, passID string) (*GateResult, error)
	RecordExit(ctx context.Context, templeID int64, passID string) (*GateResult, error)
	Cancel(ctx context.Context, passID, reason string) error
	LiveStatus(ctx context.Context, templeID int64) (*TempleLiveStatus, error)
	LiveStatusAll(ctx context.Context) (*LiveSummary, error)
	CurrentEntries(ctx context.Context, templeID int64) ([]domain.Pass, error)
	DailyStats(ctx context.Context, templeID int64) (*DailyGateStats, error)
}

type admissionService struct {
	passes     postgres.PassRepository
	temples    postgres.TempleRepository
	counter    livecount.Store
	reconciler Reconciler
	bus        events.Publisher
	cfg        *config.Config
}

func NewAdmissionService(
	passes postgres.PassRepository,
	temples postgres.TempleRepository,
	counter livecount.Store,
	reconciler Reconciler,
	bus events.Publisher,
	cfg *config.Config,
) AdmissionService {
	return &admissionService{
		passes:     passes,
		temples:    temples,
		counter:    counter,
		reconciler: reconciler,
		bus:        bus,
		cfg:        cfg,
	}
}

func (s *admissionService) RecordEntry(ctx context.Context, templeID int64, passID string) (*GateResult, error) {
	temple, pass, err := s.lookupScan(ctx, templeID, passID)
	if err != nil {
		return nil, err
	}
	if !temple.IsOpen() {
		return nil, domain.NewError(domain.CodeTempleClosed, "temple is not admitting visitors")
	}

	switch pass.Status {
	case domain.PassConfirmed:
		// proceed
	case domain.PassCancelled:
		return nil, domain.NewError(domain.CodePassCancelled, "this pass has been cancelled")
	default:
		return nil, domain.NewError(domain.CodePassAlreadyUsed, "this pass has already been used for entry")
	}

	if !pass.ValidOn(time.Now(), s.cfg.Admission.GracePeriod, s.cfg.Location()) {
		return nil, domain.NewError(domain.CodePassExpired, "pass is not valid for today's admission window")
	}

	// The compare-and-set is the only admission decision: of N concurrent
	// scans of the same QR exactly one sees CONFIRMED flip to ENTERED.
	ok, err := s.passes.UpdateStatusIf(ctx, passID, domain.PassConfirmed, domain.PassEntered)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.IncScanConflict()
		return nil, domain.NewError(domain.CodePassAlreadyUsed, "pass was admitted by a concurrent scan")
	}

	now := time.Now()
	pass.Status = domain.PassEntered
	pass.EnteredAt = &now

	count := s.applyCounterDelta(ctx, temple, int64(pass.Visitors))
	metrics.IncEntry(strconv.FormatInt(templeID, 10))

	result := s.gateResult(temple, pass, count)
	s.publishGateEvent(ctx, events.EntryRecorded, temple, pass, count, result)
	return result, nil
}

func (s *admissionService) RecordExit(ctx context.Context, templeID int64, passID string) (*GateResult, error) {
	temple, pass, err := s.lookupScan(ctx, templeID, passID)
	if err != nil {
		return nil, err
	}

	switch pass.Status {
	case domain.PassEntered:
		// proceed
	case domain.PassExited:
		return nil, domain.NewError(domain.CodePassAlreadyUsed, "this pass has already recorded an exit")
	default:
		return nil, domain.NewError(domain.CodeConflict, "this pass was not used for entry")
	}

	ok, err := s.passes.UpdateStatusIf(ctx, passID, domain.PassEntered, domain.PassExited)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.IncScanConflict()
		return nil, domain.NewError(domain.CodeConflict, "pass exit was recorded by a concurrent scan")
	}

	now := time.Now()
	pass.Status = domain.PassExited
	pass.ExitedAt = &now

	count := s.applyCounterDelta(ctx, temple, -int64(pass.Visitors))
	metrics.IncExit(strconv.FormatInt(templeID, 10))

	result := s.gateResult(temple, pass, count)
	s.publishGateEvent(ctx, events.ExitRecorded, temple, pass, count, result)
	return result, nil
}

func (s *admissionService) Cancel(ctx context.Context, passID, reason string) error {
	pass, err := s.passes.FindByPassID(ctx, passID)
	if err != nil {
		return err
	}
	if pass == nil {
		return domain.NewError(domain.CodePassNotFound, "pass not found")
	}
	if pass.Status != domain.PassConfirmed {
		return domain.NewError(domain.CodeConflict, "only confirmed passes can be cancelled")
	}

	// Racing against a concurrent entry scan: whichever conditional update
	// wins, the loser fails here; never both.
	ok, err := s.passes.UpdateStatusIf(ctx, passID, domain.PassConfirmed, domain.PassCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.CodeConflict, "pass state changed concurrently")
	}

	event := events.PassCanceledEvent{
		TempleID:   pass.TempleID,
		PassID:     pass.PassID,
		Reason:     reason,
		CanceledAt: time.Now(),
	}
	if err := s.bus.Publish(ctx, events.PassCanceled, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish pass canceled event", "error", err, "pass_id", passID)
	}
	return nil
}

func (s *admissionService) LiveStatus(ctx context.Context, templeID int64) (*TempleLiveStatus, error) {
	temple, err := s.temples.GetByID(ctx, templeID)
	if err != nil {
		return nil, err
	}
	if temple == nil {
		return nil, domain.NewError(domain.CodeTempleNotFound, "temple not found")
	}

	count, err := s.counter.Get(ctx, templeID)
	if err != nil {
		return nil, err
	}
	st := s.templeStatus(temple, count)
	return &st, nil
}

func (s *admissionService) LiveStatusAll(ctx context.Context) (*LiveSummary, error) {
	temples, err := s.temples.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &LiveSummary{LastUpdated: time.Now()}
	for i := range temples {
		count, err := s.counter.Get(ctx, temples[i].ID)
		if err != nil {
			// One unreachable counter should not blank the whole
			// dashboard; report zero and keep going.
			logger.WarnContext(ctx, "live count unavailable", "temple_id", temples[i].ID, "error", err)
			count = 0
		}
		st := s.templeStatus(&temples[i], count)
		summary.Temples = append(summary.Temples, st)
		summary.Summary.TotalVisitors += count
		summary.Summary.TotalCapacity += st.Capacity
	}
	summary.Summary.TotalTemples = len(summary.Temples)
	summary.Summary.OverallPercentage = status.Percentage(summary.Summary.TotalVisitors, summary.Summary.TotalCapacity)
	return summary, nil
}

func (s *admissionService) CurrentEntries(ctx context.Context, templeID int64) ([]domain.Pass, error) {
	temple, err := s.temples.GetByID(ctx, templeID)
	if err != nil {
		return nil, err
	}
	if temple == nil {
		return nil, domain.NewError(domain.CodeTempleNotFound, "temple not found")
	}
	return s.passes.ListEntered(ctx, templeID)
}

func (s *admissionService) DailyStats(ctx context.Context, templeID int64) (*DailyGateStats, error) {
	temple, err := s.temples.GetByID(ctx, templeID)
	if err != nil {
		return nil, err
	}
	if temple == nil {
		return nil, domain.NewError(domain.CodeTempleNotFound, "temple not found")
	}

	loc := s.cfg.Location()
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	stats, err := s.passes.DailyStats(ctx, templeID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	count, err := s.counter.Get(ctx, templeID)
	if err != nil {
		logger.WarnContext(ctx, "live count unavailable", "temple_id", templeID, "error", err)
		count = 0
	}

	return &DailyGateStats{
		Date:      dayStart.Format("2006-01-02"),
		LiveCount: count,
		Stats:     stats,
	}, nil
}

// lookupScan resolves temple and pass for a gate scan, producing the
// pre-mutation error set.
func (s *admissionService) lookupScan(ctx context.Context, templeID int64, passID string) (*domain.Temple, *domain.Pass, error) {
	if passID == "" {
		return nil, nil, domain.NewError(domain.CodeInvalidInput, "pass_id is required")
	}

	temple, err := s.temples.GetByID(ctx, templeID)
	if err != nil {
		return nil, nil, err
	}
	if temple == nil {
		return nil, nil, domain.NewError(domain.CodeTempleNotFound, "temple not found")
	}

	pass, err := s.passes.FindByPassID(ctx, passID)
	if err != nil {
		return nil, nil, err
	}
	if pass == nil {
		return nil, nil, domain.NewError(domain.CodePassNotFound, "invalid pass - booking not found")
	}
	if pass.TempleID != templeID {
		return nil, nil, domain.NewError(domain.CodeTempleMismatch, "pass belongs to a different temple")
	}
	return temple, pass, nil
}

// applyCounterDelta mutates the live counter after a successful status
// flip. The pass is already admitted (or released) at this point, so
// counter failures are repaired asynchronously, never rolled back, and a
// negative result is clamped to zero as an anomaly.
func (s *admissionService) applyCounterDelta(ctx context.Context, temple *domain.Temple, delta int64) int64 {
	count, err := s.counter.Increment(ctx, temple.ID, delta)
	if err != nil {
		metrics.IncCounterAnomaly()
		logger.WarnContext(ctx, "counter increment failed, repairing asynchronously",
			"temple_id", temple.ID, "delta", delta, "error", err)
		go s.repairIncrement(temple.ID, delta)

		if current, gerr := s.counter.Get(ctx, temple.ID); gerr == nil {
			return current
		}
		return 0
	}

	if count < 0 {
		metrics.IncCounterAnomaly()
		logger.WarnContext(ctx, "live counter went negative, clamping to zero",
			"temple_id", temple.ID, "raw_count", count, "delta", delta)
		if err := s.counter.Set(ctx, temple.ID, 0); err != nil {
			logger.ErrorContext(ctx, "failed to clamp negative counter", "temple_id", temple.ID, "error", err)
		}
		go s.reconcileAsync(temple.ID, "negative_counter")
		count = 0
	}

	metrics.SetLiveOccupancy(strconv.FormatInt(temple.ID, 10), count)
	return count
}

func (s *admissionService) repairIncrement(templeID, delta int64) {
	type retrier interface {
		IncrementRetry(templeID, delta int64) (int64, error)
	}

	if r, ok := s.counter.(retrier); ok {
		if _, err := r.IncrementRetry(templeID, delta); err == nil {
			return
		}
	}
	// Retries exhausted (or the store has no retry path): rebuild the
	// counter from the ledger instead of losing the delta.
	s.reconcileAsync(templeID, "failed_increment")
}

func (s *admissionService) reconcileAsync(templeID int64, trigger string) {
	if s.reconciler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.reconciler.ReconcileTemple(ctx, templeID, trigger); err != nil {
		logger.Error("anomaly reconciliation failed", "temple_id", templeID, "trigger", trigger, "error", err)
	}
}

func (s *admissionService) templeStatus(temple *domain.Temple, count int64) TempleLiveStatus {
	capacity := int64(temple.CapacityTotal)
	return TempleLiveStatus{
		TempleID:           temple.ID,
		TempleName:         temple.Name,
		City:               temple.City,
		LiveCount:          count,
		Capacity:           capacity,
		AvailableSpace:     max(capacity-count, 0),
		CapacityPercentage: status.Percentage(count, capacity),
		TrafficStatus:      status.Classify(count, capacity, temple.WarningPct(), temple.CriticalPct()),
		Status:             string(temple.Status),
		ThresholdWarning:   temple.WarningPct(),
		ThresholdCritical:  temple.CriticalPct(),
	}
}

func (s *admissionService) gateResult(temple *domain.Temple, pass *domain.Pass, count int64) *GateResult {
	capacity := int64(temple.CapacityTotal)
	return &GateResult{
		Pass:               pass.DTO(),
		TempleName:         temple.Name,
		LiveCount:          count,
		Capacity:           capacity,
		CapacityPercentage: status.Percentage(count, capacity),
		TrafficStatus:      status.Classify(count, capacity, temple.WarningPct(), temple.CriticalPct()),
	}
}

func (s *admissionService) publishGateEvent(ctx context.Context, subject string, temple *domain.Temple, pass *domain.Pass, count int64, result *GateResult) {
	now := time.Now()

	var gateEvent any
	switch subject {
	case events.EntryRecorded:
		gateEvent = events.EntryRecordedEvent{
			TempleID: temple.ID, PassID: pass.PassID, Visitors: pass.Visitors,
			LiveCount: count, RecordedAt: now,
		}
	case events.ExitRecorded:
		gateEvent = events.ExitRecordedEvent{
			TempleID: temple.ID, PassID: pass.PassID, Visitors: pass.Visitors,
			LiveCount: count, RecordedAt: now,
		}
	}
	if err := s.bus.Publish(ctx, subject, gateEvent); err != nil {
		logger.ErrorContext(ctx, "Failed to publish gate event", "error", err, "subject", subject, "pass_id", pass.PassID)
	}

	changed := events.CounterChangedEvent{
		TempleID:      temple.ID,
		LiveCount:     count,
		Percentage:    result.CapacityPercentage,
		TrafficStatus: string(result.TrafficStatus),
		ChangedAt:     now,
	}
	if err := s.bus.Publish(ctx, events.CounterChanged, changed); err != nil {
		logger.ErrorContext(ctx, "Failed to publish counter changed event", "error", err, "temple_id", temple.ID)
	}

	if result.TrafficStatus != status.Green {
		level := "WARNING"
		if result.TrafficStatus == status.Red {
			level = "CRITICAL"
		}
		alert := events.CapacityAlertEvent{
			TempleID:   temple.ID,
			Level:      level,
			Percentage: result.CapacityPercentage,
			LiveCount:  count,
			Message:    fmt.Sprintf("%s at %.1f%% capacity", temple.Name, result.CapacityPercentage),
			RaisedAt:   now,
		}
		if err := s.bus.Publish(ctx, events.CapacityAlert, alert); err != nil {
			logger.ErrorContext(ctx, "Failed to publish capacity alert", "error", err, "temple_id", temple.ID)
		}
	}
}
