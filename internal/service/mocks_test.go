package service

import (
	"context"
	"sync"
	"time"

	"github.com/devalaya/temple-darshan/internal/domain"
	"github.com/devalaya/temple-darshan/internal/repo/postgres"
	"github.com/devalaya/temple-darshan/pkg/config"
)

// ---------- Mocks ----------

// mockLedger mimics the postgres pass repository, including the
// compare-and-set semantics the concurrency tests depend on.
type mockLedger struct {
	mu      sync.Mutex
	nextID  int64
	byPass  map[string]*domain.Pass
	slotCap map[int64]int // temple -> per-slot capacity override
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		nextID:  1,
		byPass:  make(map[string]*domain.Pass),
		slotCap: make(map[int64]int),
	}
}

func (m *mockLedger) insert(p domain.Pass) *domain.Pass {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID
	m.nextID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = p.CreatedAt
	m.byPass[p.PassID] = &p
	return &p
}

func (m *mockLedger) CreateConfirmed(_ context.Context, req *domain.PassRequest, date time.Time, passID string, defaultSlotCap int) (*domain.Pass, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := defaultSlotCap
	if c, ok := m.slotCap[req.TempleID]; ok && c > 0 {
		capacity = c
	}

	reserved := 0
	for _, p := range m.byPass {
		if p.TempleID == req.TempleID && p.Date.Equal(date) && p.Slot == req.Slot &&
			(p.Status == domain.PassConfirmed || p.Status == domain.PassEntered) {
			reserved += p.Visitors
		}
	}
	if reserved+req.Visitors > capacity {
		return nil, capacity - reserved, domain.NewError(domain.CodeCapacityExceeded, "slot is full or has insufficient space")
	}

	now := time.Now()
	p := &domain.Pass{
		ID:           m.nextID,
		PassID:       passID,
		TempleID:     req.TempleID,
		VisitorName:  req.VisitorName,
		VisitorEmail: req.VisitorEmail,
		Date:         date,
		Slot:         req.Slot,
		Visitors:     req.Visitors,
		Status:       domain.PassConfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.nextID++
	m.byPass[passID] = p
	return p, capacity - reserved - req.Visitors, nil
}

func (m *mockLedger) FindByPassID(_ context.Context, passID string) (*domain.Pass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byPass[passID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockLedger) UpdateStatusIf(_ context.Context, passID string, from, to domain.PassStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byPass[passID]
	if !ok || p.Status != from {
		return false, nil
	}
	now := time.Now()
	p.Status = to
	p.UpdatedAt = now
	switch to {
	case domain.PassEntered:
		p.EnteredAt = &now
	case domain.PassExited:
		p.ExitedAt = &now
	}
	return true, nil
}

func (m *mockLedger) SumVisitors(_ context.Context, templeID int64, date time.Time, slot string, statuses []domain.PassStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, p := range m.byPass {
		if p.TempleID != templeID || !p.Date.Equal(date) || p.Slot != slot {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				sum += p.Visitors
				break
			}
		}
	}
	return sum, nil
}

func (m *mockLedger) SumEntered(_ context.Context, templeID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.byPass {
		if p.TempleID == templeID && p.Status == domain.PassEntered {
			sum += int64(p.Visitors)
		}
	}
	return sum, nil
}

func (m *mockLedger) ListEntered(_ context.Context, templeID int64) ([]domain.Pass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Pass
	for _, p := range m.byPass {
		if p.TempleID == templeID && p.Status == domain.PassEntered {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockLedger) ListByEmail(_ context.Context, email string, _, _ int) ([]domain.Pass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Pass
	for _, p := range m.byPass {
		if p.VisitorEmail == email {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockLedger) ForceExitEntered(_ context.Context, templeID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for _, p := range m.byPass {
		if p.TempleID == templeID && p.Status == domain.PassEntered {
			p.Status = domain.PassExited
			p.ExitedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *mockLedger) DailyStats(_ context.Context, templeID int64, from, to time.Time) (*postgres.GateStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &postgres.GateStats{}
	inWindow := func(t *time.Time) bool {
		return t != nil && !t.Before(from) && t.Before(to)
	}
	for _, p := range m.byPass {
		if p.TempleID != templeID {
			continue
		}
		if inWindow(p.EnteredAt) {
			s.Entries++
			s.VisitorsEntered += int64(p.Visitors)
		}
		if inWindow(p.ExitedAt) {
			s.Exits++
			s.VisitorsExited += int64(p.Visitors)
		}
	}
	return s, nil
}

type mockTempleRepo struct {
	mu      sync.Mutex
	temples map[int64]*domain.Temple
}

func newMockTempleRepo(temples ...*domain.Temple) *mockTempleRepo {
	m := &mockTempleRepo{temples: make(map[int64]*domain.Temple)}
	for _, t := range temples {
		m.temples[t.ID] = t
	}
	return m
}

func (m *mockTempleRepo) GetByID(_ context.Context, id int64) (*domain.Temple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.temples[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTempleRepo) List(_ context.Context) ([]domain.Temple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Temple
	for _, t := range m.temples {
		out = append(out, *t)
	}
	return out, nil
}

// memCounter is an in-memory live counter store.
type memCounter struct {
	mu      sync.Mutex
	counts  map[int64]int64
	failing bool
}

func newMemCounter() *memCounter {
	return &memCounter{counts: make(map[int64]int64)}
}

func (c *memCounter) Get(_ context.Context, templeID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, domain.NewError(domain.CodeServiceUnavailable, "counter store down")
	}
	return c.counts[templeID], nil
}

func (c *memCounter) Increment(_ context.Context, templeID int64, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, domain.NewError(domain.CodeServiceUnavailable, "counter store down")
	}
	c.counts[templeID] += delta
	return c.counts[templeID], nil
}

func (c *memCounter) Set(_ context.Context, templeID int64, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return domain.NewError(domain.CodeServiceUnavailable, "counter store down")
	}
	c.counts[templeID] = value
	return nil
}

func (c *memCounter) Reset(_ context.Context, templeID int64) error {
	return c.Set(context.Background(), templeID, 0)
}

func (c *memCounter) setFailing(f bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = f
}

// mockBus records published events.
type mockBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Subject string
	Data    any
}

func (b *mockBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{Subject: subject, Data: data})
	return nil
}

func (b *mockBus) Close() error { return nil }

func (b *mockBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Subject
	}
	return out
}

func (b *mockBus) count(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Subject == subject {
			n++
		}
	}
	return n
}

// mockReconciler records reconcile triggers on a channel so tests can wait
// for the async anomaly path.
type mockReconciler struct {
	triggers chan string
}

func newMockReconciler() *mockReconciler {
	return &mockReconciler{triggers: make(chan string, 8)}
}

func (m *mockReconciler) ReconcileTemple(_ context.Context, _ int64, trigger string) (int64, error) {
	m.triggers <- trigger
	return 0, nil
}

// ---------- Fixtures ----------

func testConfig() *config.Config {
	return &config.Config{
		Admission: config.AdmissionConfig{
			GracePeriod:           time.Hour,
			MaxVisitorsPerBooking: 10,
			DefaultSlotCapacity:   500,
			Timezone:              "UTC",
		},
		Reconcile: config.ReconcileConfig{
			RolloverInterval: time.Minute,
			RolloverEnabled:  true,
		},
	}
}

func testTemple(id int64) *domain.Temple {
	return &domain.Temple{
		ID:                id,
		Name:              "Somnath",
		City:              "Veraval",
		CapacityTotal:     100,
		CapacityPerSlot:   10,
		ThresholdWarning:  85,
		ThresholdCritical: 95,
		Status:            domain.TempleOpen,
	}
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func confirmedPass(passID string, templeID int64, visitors int) domain.Pass {
	return domain.Pass{
		PassID:   passID,
		TempleID: templeID,
		Date:     today(),
		Slot:     "10:00-12:00",
		Visitors: visitors,
		Status:   domain.PassConfirmed,
	}
}
